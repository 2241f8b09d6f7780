// Package ingest fills the store from the upstream API.
//
// A run visits ids sequentially. Each iteration waits for the pacer, skips
// ids the store already has without calling upstream, and otherwise fetches,
// transforms and upserts the record. Failures of a single id are logged and
// skipped; failing to learn the total count aborts the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/client"
	"github.com/Sternrassler/dexmirror/pkg/cursor"
	"github.com/Sternrassler/dexmirror/pkg/metrics"
	"github.com/Sternrassler/dexmirror/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrCountUnavailable wraps any failure to obtain the upstream total.
var ErrCountUnavailable = errors.New("upstream count unavailable")

// Prometheus metrics for ingest runs.
var (
	ingestRecordsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dexmirror_ingest_records_total",
		Help: "Records visited by the ingester by outcome",
	}, []string{"outcome"})

	ingestRunsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dexmirror_ingest_runs_total",
		Help: "Ingest runs by result",
	}, []string{"result"})

	ingestRunDuration = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "dexmirror_ingest_run_duration_seconds",
		Help:    "Duration of ingest runs",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// RecordStore is the part of the store the ingester writes through.
type RecordStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Upsert(ctx context.Context, rec record.Record) error
	Count(ctx context.Context, category string) (int, error)
	MaxID(ctx context.Context) (int64, error)
}

// Upstream is the source API.
type Upstream interface {
	Count(ctx context.Context) (int, error)
	Detail(ctx context.Context, id int64) (client.Detail, error)
}

// Pacer delays loop iterations.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config wires an Ingester.
type Config struct {
	Store    RecordStore
	Upstream Upstream
	Pacer    Pacer

	// Cursor is optional; a nil Cursor behaves like cursor.NopStore.
	Cursor cursor.Store

	// Policy defaults to PolicyMaxID.
	Policy Policy

	Logger zerolog.Logger
}

// Summary reports what a run did.
type Summary struct {
	Total   int
	Start   int64
	Added   int
	Skipped int
	Failed  int
}

// Ingester drives the sequential fetch loop.
type Ingester struct {
	store    RecordStore
	upstream Upstream
	pacer    Pacer
	cursor   cursor.Store
	policy   Policy
	logger   zerolog.Logger
}

// New validates cfg and creates an Ingester.
func New(cfg Config) (*Ingester, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Upstream == nil {
		return nil, fmt.Errorf("upstream is required")
	}
	if cfg.Pacer == nil {
		return nil, fmt.Errorf("pacer is required")
	}
	if cfg.Cursor == nil {
		cfg.Cursor = cursor.NopStore{}
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyMaxID
	}
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}

	return &Ingester{
		store:    cfg.Store,
		upstream: cfg.Upstream,
		pacer:    cfg.Pacer,
		cursor:   cfg.Cursor,
		policy:   cfg.Policy,
		logger:   cfg.Logger,
	}, nil
}

// Run ingests ids up to total. A total <= 0 asks the upstream for it.
//
// The returned error is non-nil only when the count could not be obtained,
// the resume point could not be determined, or ctx was cancelled; per-id
// failures are reported in the Summary.
func (i *Ingester) Run(ctx context.Context, total int) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		ingestRunDuration.Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "error"
		}
		ingestRunsTotal.WithLabelValues(result).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if total <= 0 {
		total, err = i.upstream.Count(ctx)
		if err != nil {
			i.logger.Error().Err(err).Msg("Failed to fetch upstream record count")
			return summary, fmt.Errorf("%w: %w", ErrCountUnavailable, err)
		}
	}
	summary.Total = total

	if total == 0 {
		i.logger.Info().Msg("Upstream reports no records, nothing to ingest")
		return summary, nil
	}

	first, err := i.startID(ctx, total)
	if err != nil {
		return summary, fmt.Errorf("determine resume point: %w", err)
	}
	summary.Start = first

	i.logger.Info().
		Int("total", total).
		Int64("start_id", first).
		Str("policy", string(i.policy)).
		Msg("Starting ingest run")

	// The cursor only advances while every visited id succeeded, so a
	// failed id is revisited by the next cursor-based run. A run that starts
	// above 1 without the cursor policy has not checked the ids below its
	// start and must leave the cursor alone.
	contiguous := first == 1 || i.policy == PolicyCursor

	for id := first; id <= int64(total); id++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := i.pacer.Wait(ctx); err != nil {
			return summary, err
		}

		outcome := i.visit(ctx, id, total)
		ingestRecordsTotal.WithLabelValues(string(outcome)).Inc()

		switch outcome {
		case outcomeAdded:
			summary.Added++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
			contiguous = false
		}

		if contiguous {
			if err := i.cursor.Save(ctx, id); err != nil {
				i.logger.Warn().Err(err).Int64("id", id).Msg("Failed to save resume cursor")
			}
		}
	}

	i.logger.Info().
		Int("total", summary.Total).
		Int("added", summary.Added).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(start)).
		Msg("Ingest run complete")

	return summary, nil
}

type outcome string

const (
	outcomeAdded   outcome = "added"
	outcomeSkipped outcome = "skipped"
	outcomeFailed  outcome = "failed"
)

// visit processes one id. Errors are logged here and never abort the run.
func (i *Ingester) visit(ctx context.Context, id int64, total int) outcome {
	logger := i.logger.With().Int64("id", id).Int("total", total).Logger()

	exists, err := i.store.Exists(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("Presence check failed")
		return outcomeFailed
	}
	if exists {
		logger.Info().Msg("Record already stored, skipping")
		return outcomeSkipped
	}

	detail, err := i.upstream.Detail(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch upstream record")
		return outcomeFailed
	}

	rec := Transform(id, detail)
	if err := i.store.Upsert(ctx, rec); err != nil {
		logger.Error().Err(err).Str("name", rec.Name).Msg("Failed to store record")
		return outcomeFailed
	}

	logger.Info().Str("name", rec.Name).Msg("Added record")
	return outcomeAdded
}
