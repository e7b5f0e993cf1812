package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
)

// Refresh retry bounds: start at 1s, double each failure, cap at 1m.
const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// clock drives refresh intervals and backoff sleeps; tests swap it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for the refresh loop. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Extractor fetches the raw feeds.
type Extractor interface {
	Extract(ctx context.Context) (domain.Sources, error)
}

// Transformer builds a snapshot from the raw feeds.
type Transformer interface {
	Transform(ctx context.Context, src domain.Sources) (*domain.Snapshot, error)
}

// Loader receives every newly built snapshot.
type Loader interface {
	Load(ctx context.Context, snap *domain.Snapshot) error
}

// Pipeline orchestrates the extract-transform-load refresh loop.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	interval    time.Duration
}

// New creates a Pipeline with the given stages and observability. An interval
// of 0 loads once and then idles until the context is cancelled.
func New(e Extractor, t Transformer, l Loader, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
	}
}

// Run refreshes until the context is cancelled. Failed refreshes keep the
// previous snapshot and retry with exponential backoff.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "refresh_interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		if err := p.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("refresh failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, backoff) {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if p.interval <= 0 {
			<-ctx.Done()
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
		if !sleepWithContext(ctx, p.interval) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// Refresh runs one extract-transform-load cycle.
func (p *Pipeline) Refresh(ctx context.Context) error {
	start := time.Now()

	src, err := p.extractor.Extract(ctx)
	if err != nil {
		return p.fail(err)
	}
	snap, err := p.transformer.Transform(ctx, src)
	if err != nil {
		return p.fail(err)
	}
	if err := p.loader.Load(ctx, snap); err != nil {
		return p.fail(err)
	}

	p.metrics.Refreshes.WithLabelValues("success").Inc()
	p.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("snapshot refreshed",
		"snapshot_id", snap.ID,
		"regions", snap.Stats.Regions,
		"observations", snap.Stats.Rows,
		"duration", time.Since(start),
	)
	return nil
}

func (p *Pipeline) fail(err error) error {
	p.metrics.Refreshes.WithLabelValues("error").Inc()
	return err
}

// Loaders fans a snapshot out to several loaders in order, stopping at the
// first failure.
type Loaders []Loader

func (ls Loaders) Load(ctx context.Context, snap *domain.Snapshot) error {
	for _, l := range ls {
		if err := l.Load(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
