// Package ratelimit throttles pack downloads per client. Counters live in
// Redis so the limit holds across service replicas.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const keyPrefix = "riverreader:downloads"

// Limiter counts pack downloads per client address in fixed windows.
type Limiter struct {
	limit  int
	window time.Duration
	client *redis.Client
}

// NewLimiter connects the download limiter to Redis.
func NewLimiter(addr, password string, limit int, window time.Duration) (*Limiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("download limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("download limiter requires a redis addr")
	}
	return &Limiter{
		limit:  limit,
		window: window,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}, nil
}

// Allow reports whether the client may start another pack download in the
// current window. retryAfter is the time left until the window resets, for
// the Retry-After header on refusals. Redis failures refuse the download;
// an unreachable limiter must not leave the endpoint unthrottled.
func (l *Limiter) Allow(clientKey string) (ok bool, retryAfter time.Duration) {
	if l == nil {
		return false, 0
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}

	windowMs := l.window.Milliseconds()
	nowMs := time.Now().UTC().UnixMilli()
	slot := nowMs / windowMs
	retryAfter = time.Duration((slot+1)*windowMs-nowMs) * time.Millisecond

	key := fmt.Sprintf("%s:%s:%d", keyPrefix, clientKey, slot)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	count, err := windowScript.Run(ctx, l.client, []string{key}, windowMs).Int64()
	if err != nil {
		return false, retryAfter
	}
	return count <= int64(l.limit), retryAfter
}
