package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPurgeInterval = 6 * time.Hour
	defaultRetention     = 6 * time.Hour
)

type SignalPurger interface {
	PurgeSignals(ctx context.Context, olderThan time.Time) (int64, error)
}

// SignalPurge deletes stored signals older than the retention window.
type SignalPurge struct {
	tracer    trace.Tracer
	logger    zerolog.Logger
	purger    SignalPurger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewSignalPurge(tracer trace.Tracer, logger zerolog.Logger, purger SignalPurger, interval, retention time.Duration) *SignalPurge {
	if interval <= 0 {
		interval = defaultPurgeInterval
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &SignalPurge{
		tracer:    tracer,
		logger:    logger.With().Str("component", "signal-purge").Logger(),
		purger:    purger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (j *SignalPurge) Start(ctx context.Context) {
	if j == nil || j.purger == nil {
		<-ctx.Done()
		return
	}

	j.logger.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("signal purge starting")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runPurge(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("signal purge stopped")
			return
		case <-ticker.C:
			j.runPurge(ctx)
		}
	}
}

func (j *SignalPurge) runPurge(ctx context.Context) {
	cutoff := j.now().Add(-j.retention)
	if j.tracer != nil {
		var span trace.Span
		ctx, span = j.tracer.Start(ctx, "signal-purge.run")
		span.SetAttributes(attribute.String("cutoff", cutoff.UTC().Format(time.RFC3339)))
		defer span.End()
	}
	deleted, err := j.purger.PurgeSignals(ctx, cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("signal purge failed")
		return
	}
	if deleted > 0 {
		j.logger.Info().Int64("deleted", deleted).Msg("purged expired signals")
	}
}
