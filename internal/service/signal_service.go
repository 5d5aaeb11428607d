package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	sinkTimeout      = 10 * time.Second
)

var (
	ErrStorageUnavailable = errors.New("signal storage is not configured")
	ErrInvalidFilter      = errors.New("invalid signal filter")
)

type SignalRepository interface {
	InsertSignals(ctx context.Context, signals []domain.TradeSignal) error
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error)
}

type LatestSignalStore interface {
	StoreLatest(ctx context.Context, key domain.ProcessorKey, sig domain.TradeSignal) error
}

type SignalNotifier interface {
	NotifySignal(ctx context.Context, sig domain.TradeSignal) error
}

// SignalService formats signal changes and fans them out to persistence,
// the latest-signal cache and alert subscribers. Any sink may be nil.
type SignalService struct {
	tracer   trace.Tracer
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	repo     SignalRepository
	latest   LatestSignalStore
	notifier SignalNotifier
	now      func() time.Time
}

func NewSignalService(
	tracer trace.Tracer,
	logger zerolog.Logger,
	m *metrics.Metrics,
	repo SignalRepository,
	latest LatestSignalStore,
	notifier SignalNotifier,
) *SignalService {
	return &SignalService{
		tracer:   tracer,
		logger:   logger.With().Str("component", "signal-service").Logger(),
		metrics:  m,
		repo:     repo,
		latest:   latest,
		notifier: notifier,
		now:      time.Now,
	}
}

// HandleSignalChange is the processor change callback. HOLD transitions are
// logged only. Sink failures are isolated from each other and returned
// joined.
func (s *SignalService) HandleSignalChange(ctx context.Context, change domain.SignalChange) error {
	ctx, span := s.tracer.Start(ctx, "signal-service.handle-change")
	defer span.End()
	span.SetAttributes(
		attribute.String("processor", change.Key.String()),
		attribute.String("signal", string(change.Result.Signal)),
	)

	if !change.Result.Signal.IsDirectional() {
		s.logger.Info().
			Str("instrument", change.Instrument.Name).
			Str("timeframe", domain.TimeframeName(change.Key.CandleSize)).
			Str("previous", string(change.Previous)).
			Msg("signal returned to HOLD")
		return nil
	}

	created := change.At
	if created.IsZero() {
		created = s.now()
	}
	formatted := FormatSignal(change, created.UTC())
	s.logger.Info().
		Str("channel_timeframe", formatted.Data.Timeframe).
		Bool("otc", formatted.Data.IsOTC).
		Msg(FormatForLog(formatted))

	routed := RouteSignal(formatted)
	for i := range routed {
		routed[i].ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	var errs []error
	if s.repo != nil {
		if err := s.repo.InsertSignals(ctx, routed); err != nil {
			errs = append(errs, s.sinkFailed("postgres", err))
		}
	}
	if s.latest != nil {
		if err := s.latest.StoreLatest(ctx, change.Key, routed[0]); err != nil {
			errs = append(errs, s.sinkFailed("redis", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySignal(ctx, routed[0]); err != nil {
			errs = append(errs, s.sinkFailed("telegram", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *SignalService) sinkFailed(sink string, err error) error {
	s.metrics.ObserveSinkError(sink)
	return fmt.Errorf("%s sink: %w", sink, err)
}

func (s *SignalService) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error) {
	_, span := s.tracer.Start(ctx, "signal-service.list-signals")
	defer span.End()

	if s.repo == nil {
		return nil, ErrStorageUnavailable
	}

	filter.Channel = strings.TrimSpace(filter.Channel)
	if filter.Channel != "" && !validChannel(filter.Channel) {
		return nil, fmt.Errorf("%w: unsupported channel %q", ErrInvalidFilter, filter.Channel)
	}
	if filter.InstrumentID < 0 {
		return nil, fmt.Errorf("%w: instrument id %d", ErrInvalidFilter, filter.InstrumentID)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	return s.repo.ListSignals(ctx, filter)
}

func validChannel(channel string) bool {
	switch channel {
	case ChannelOneMinute, ChannelOneMinuteOTC, ChannelFiveMinutes, ChannelFiveMinutesVIP, ChannelFiveMinutesOTC:
		return true
	}
	return false
}
