// Package timeouts holds the deadlines applied to storage work done on
// behalf of requests and background jobs.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults used until Configure is called.
const (
	DefaultPing    = 2 * time.Second
	DefaultRequest = 5 * time.Second
	DefaultSweep   = 60 * time.Second
)

var (
	mu      sync.RWMutex
	ping    = DefaultPing
	request = DefaultRequest
	sweep   = DefaultSweep
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Request returns the timeout for the store calls behind one auth request.
func Request() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return request
}

// Sweep returns the timeout for one background sweep run.
func Sweep() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return sweep
}

// Config holds timeout configuration values. Zero fields keep the current value.
type Config struct {
	Ping    time.Duration
	Request time.Duration
	Sweep   time.Duration
}

// Configure sets custom timeout values.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Request > 0 {
		request = cfg.Request
	}
	if cfg.Sweep > 0 {
		sweep = cfg.Sweep
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	request = DefaultRequest
	sweep = DefaultSweep
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Request: request, Sweep: sweep}
}

// WithTimeout derives a context with timeout. The returned cancel func logs
// a warning when the deadline was hit.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
