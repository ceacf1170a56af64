package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"riverreader/internal/admintoken"
	"riverreader/internal/app"
	"riverreader/internal/catalog"
	"riverreader/internal/config"
	"riverreader/internal/content"
	"riverreader/internal/metrics"
	"riverreader/internal/ratelimit"
	"riverreader/internal/server"
	"riverreader/internal/util"
	"riverreader/pkg/kv"
	"riverreader/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	store, err := openKV(cfg)
	if err != nil {
		log.Fatalf("failed to open kv backend: %v", err)
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to open blob storage: %v", err)
	}

	packStore, err := openPackStore(cfg)
	if err != nil {
		log.Fatalf("failed to open pack store: %v", err)
	}
	packs := catalog.NewService(packStore, blobs)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)

	cacheDir := filepath.Join(cfg.DataDir, "content")
	resolver := content.NewResolver(cacheDir, nil)
	var acquisition *content.Service
	if cfg.ContentBaseURL != "" {
		acquisition, err = content.NewService(cfg.ContentBaseURL, cacheDir, nil)
		if err != nil {
			log.Fatalf("failed to init content service: %v", err)
		}
	}

	appCore, err := app.New(ctx, app.Options{
		Store:    store,
		Resolver: resolver,
		Content:  acquisition,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	tokens, err := admintoken.NewManager(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to init admin tokens: %v", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.DownloadRateLimit > 0 {
		window := time.Duration(cfg.DownloadRateWindowSeconds) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		limiter, err = ratelimit.NewLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.DownloadRateLimit, window)
		if err != nil {
			log.Fatalf("failed to init download rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:               appCore,
		Catalog:           packs,
		Tokens:            tokens,
		AdminUser:         cfg.AdminUser,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Recorder:          recorder,
		MetricsHandler:    metrics.Handler(registry),
		DownloadLimiter:   limiter,
		TrustedProxies:    trustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("reader server listening", "addr", addr, "kvBackend", cfg.KVBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func openKV(cfg config.FileConfig) (kv.Store, error) {
	switch cfg.KVBackend {
	case "redis":
		return kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, "")
	case "postgres":
		return kv.NewGormStore(cfg.DatabaseURL)
	default:
		return kv.NewMemoryStore(), nil
	}
}

func openBlobStore(cfg config.FileConfig) (storage.ObjectStore, error) {
	if cfg.MinioEndpoint != "" {
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	return storage.NewFileStore(filepath.Join(cfg.DataDir, "packs"))
}

func openPackStore(cfg config.FileConfig) (catalog.Store, error) {
	if cfg.DatabaseURL != "" {
		return catalog.NewGormStore(cfg.DatabaseURL)
	}
	return catalog.NewMemoryStore(), nil
}
