// Package metrics collects and exposes Prometheus metrics for the reader
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the service and server layers record through.
type Recorder interface {
	RecordDownloadSuccess(language string)
	RecordDownloadFailure(language string)
	RecordPurchase(result string)
	RecordRestore(result string)
	RecordChapterDenied()
	RecordPackUpload(language string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	downloadSuccess *prometheus.CounterVec
	downloadFail    *prometheus.CounterVec
	purchases       *prometheus.CounterVec
	restores        *prometheus.CounterVec
	chapterDenied   prometheus.Counter
	packUploads     *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		downloadSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riverreader_download_success_total",
			Help: "Completed language pack downloads.",
		}, []string{"language"}),
		downloadFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riverreader_download_fail_total",
			Help: "Failed language pack downloads.",
		}, []string{"language"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riverreader_purchase_total",
			Help: "Full access purchase attempts by result.",
		}, []string{"result"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riverreader_restore_total",
			Help: "Purchase restore attempts by result.",
		}, []string{"result"}),
		chapterDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riverreader_chapter_denied_total",
			Help: "Chapter opens denied by the access gate.",
		}),
		packUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riverreader_pack_upload_total",
			Help: "Language pack uploads accepted by the catalog.",
		}, []string{"language"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riverreader_http_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riverreader_request_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.downloadSuccess,
		c.downloadFail,
		c.purchases,
		c.restores,
		c.chapterDenied,
		c.packUploads,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

func (c *Collector) RecordDownloadSuccess(language string) {
	c.downloadSuccess.WithLabelValues(language).Inc()
}

func (c *Collector) RecordDownloadFailure(language string) {
	c.downloadFail.WithLabelValues(language).Inc()
}

func (c *Collector) RecordPurchase(result string) {
	c.purchases.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRestore(result string) {
	c.restores.WithLabelValues(result).Inc()
}

func (c *Collector) RecordChapterDenied() {
	c.chapterDenied.Inc()
}

func (c *Collector) RecordPackUpload(language string) {
	c.packUploads.WithLabelValues(language).Inc()
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for the registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop is a Recorder that discards everything; used when metrics are
// disabled and in tests.
type Nop struct{}

func (Nop) RecordDownloadSuccess(string)       {}
func (Nop) RecordDownloadFailure(string)       {}
func (Nop) RecordPurchase(string)              {}
func (Nop) RecordRestore(string)               {}
func (Nop) RecordChapterDenied()               {}
func (Nop) RecordPackUpload(string)            {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
