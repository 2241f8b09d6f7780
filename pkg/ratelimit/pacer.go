// Package ratelimit paces the ingest loop against the upstream API.
//
// The upstream publishes no rate-limit headers, so the only protection is a
// fixed minimum interval between consecutive iterations of the sequential
// fetch loop.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultInterval is the delay between upstream requests.
const DefaultInterval = 500 * time.Millisecond

// Prometheus metrics for pacing.
var (
	pacerWaitSeconds = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "dexmirror_pacer_wait_seconds",
		Help:    "Time spent waiting for the upstream pacer",
		Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})

	pacerCancelledTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "dexmirror_pacer_cancelled_total",
		Help: "Total pacer waits aborted by context cancellation",
	})
)

// Pacer enforces a fixed minimum interval between calls to Wait.
// The first Wait returns immediately.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
	logger   zerolog.Logger
}

// NewPacer creates a pacer. An interval <= 0 disables pacing.
func NewPacer(interval time.Duration, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		logger:   logger,
	}
}

// Wait blocks until the next slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()

	if err := p.limiter.Wait(ctx); err != nil {
		pacerCancelledTotal.Inc()
		p.logger.Debug().Err(err).Msg("Pacer wait aborted")
		return fmt.Errorf("pacer wait: %w", err)
	}

	waited := time.Since(start)
	pacerWaitSeconds.Observe(waited.Seconds())
	if waited > 0 {
		p.logger.Debug().Dur("waited", waited).Dur("interval", p.interval).Msg("Paced upstream request")
	}
	return nil
}
