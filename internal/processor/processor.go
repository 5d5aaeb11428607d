// Package processor runs the periodic evaluation loop for one
// (instrument, candle size) pair and reports signal changes.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/feed"
	"github.com/vokmon/trade-signal/internal/metrics"
)

var ErrStopped = errors.New("processor: stopped")

const (
	defaultCandleNumber   = 100
	defaultInterval       = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

type Evaluator interface {
	Evaluate(candles []domain.Candle) domain.SignalResult
}

// ChangeHandler receives reported signal changes. Errors are logged by the
// processor and never stop it.
type ChangeHandler interface {
	HandleSignalChange(ctx context.Context, change domain.SignalChange) error
}

type ChangeHandlerFunc func(ctx context.Context, change domain.SignalChange) error

func (f ChangeHandlerFunc) HandleSignalChange(ctx context.Context, change domain.SignalChange) error {
	return f(ctx, change)
}

type Config struct {
	// CandleNumber is how many of the most recent candles feed each evaluation.
	CandleNumber   int
	Interval       time.Duration
	RequestTimeout time.Duration
}

type Params struct {
	Source     feed.CandleSource
	Instrument domain.Instrument
	// CandleSize is in seconds.
	CandleSize int
	Engine     Evaluator
	OnChange   ChangeHandler
	Config     Config
	Logger     zerolog.Logger
	Tracer     trace.Tracer
	Metrics    *metrics.Metrics
}

// Status is a point-in-time view of a processor for the status API.
type Status struct {
	Key         domain.ProcessorKey `json:"key"`
	Instrument  domain.Instrument   `json:"instrument"`
	State       string              `json:"state"`
	LastSignal  domain.SignalType   `json:"last_signal,omitempty"`
	Evaluations int64               `json:"evaluations"`
}

type Processor struct {
	key      domain.ProcessorKey
	source   feed.CandleSource
	engine   Evaluator
	onChange ChangeHandler
	cfg      Config
	logger   zerolog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	now      func() time.Time

	busy        atomic.Bool
	evaluations atomic.Int64

	mu         sync.Mutex
	state      State
	instrument domain.Instrument
	sub        feed.Subscription
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  time.Time
	lastSecond int64
	lastSignal domain.SignalType
	hasSignal  bool
}

func New(p Params) *Processor {
	cfg := p.Config
	if cfg.CandleNumber <= 0 {
		cfg.CandleNumber = defaultCandleNumber
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	tracer := p.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("processor")
	}
	key := domain.ProcessorKey{InstrumentID: p.Instrument.ID, CandleSize: p.CandleSize}
	return &Processor{
		key:        key,
		source:     p.Source,
		engine:     p.Engine,
		onChange:   p.OnChange,
		cfg:        cfg,
		logger:     p.Logger.With().Str("processor", key.String()).Logger(),
		tracer:     tracer,
		metrics:    p.Metrics,
		now:        time.Now,
		instrument: p.Instrument,
		lastSecond: -1,
	}
}

func (p *Processor) Key() domain.ProcessorKey { return p.key }

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start loads instrument metadata, subscribes to last-candle updates and
// launches the evaluation loop bound to ctx. Calling Start on a processor
// that is already starting or running is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateStarting, StateRunning:
		p.mu.Unlock()
		p.logger.Debug().Msg("processor already started")
		return nil
	case StateStopped:
		p.mu.Unlock()
		return ErrStopped
	}
	p.state = StateStarting
	p.mu.Unlock()

	spanCtx, span := p.tracer.Start(ctx, "processor.start")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("instrument.id", p.key.InstrumentID),
		attribute.Int("candle.size", p.key.CandleSize),
	)

	reqCtx, cancelReq := context.WithTimeout(spanCtx, p.cfg.RequestTimeout)
	meta, metaErr := p.source.Instrument(reqCtx, p.key.InstrumentID)
	cancelReq()
	if metaErr != nil {
		p.logger.Warn().Err(metaErr).Msg("instrument metadata unavailable, using listing data")
	}

	reqCtx, cancelReq = context.WithTimeout(spanCtx, p.cfg.RequestTimeout)
	sub, err := p.source.SubscribeLastCandle(reqCtx, p.key.InstrumentID, p.key.CandleSize, p.onLastCandle)
	cancelReq()
	if err != nil {
		span.RecordError(err)
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		return fmt.Errorf("processor %s: subscribe: %w", p.key, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		cancel()
		unsubscribe(sub, p.logger)
		return ErrStopped
	}
	if metaErr == nil {
		p.instrument = mergeInstrument(p.instrument, meta)
	}
	p.sub = sub
	p.cancel = cancel
	p.done = make(chan struct{})
	p.startedAt = p.now()
	p.state = StateRunning
	done := p.done
	p.mu.Unlock()

	go p.run(runCtx, done)
	p.logger.Info().Str("instrument", p.instrument.Name).Msg("processor started")
	return nil
}

// Stop halts the loop and releases the subscription. It is idempotent and
// safe to call while a tick is in flight; a stopped processor never reports
// again.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}
	p.state = StateStopped
	cancel := p.cancel
	sub := p.sub
	p.cancel = nil
	p.sub = nil
	p.lastSecond = -1
	p.lastSignal = ""
	p.hasSignal = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		unsubscribe(sub, p.logger)
	}
	p.logger.Info().Msg("processor stopped")
}

// Done is closed when the evaluation loop has exited. It is nil before Start.
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Key:         p.key,
		Instrument:  p.instrument,
		State:       p.state.String(),
		LastSignal:  p.lastSignal,
		Evaluations: p.evaluations.Load(),
	}
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one evaluation. Overlapping calls and repeat calls within the
// same elapsed second since start are skipped.
func (p *Processor) tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	defer p.busy.Store(false)

	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	second := int64(p.now().Sub(p.startedAt) / time.Second)
	if second == p.lastSecond {
		p.mu.Unlock()
		return
	}
	p.lastSecond = second
	p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "processor.tick")
	defer span.End()

	from := p.source.ServerTime().Add(-time.Duration(p.key.CandleSize*p.cfg.CandleNumber) * time.Second)
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	candles, err := p.source.FetchCandles(reqCtx, p.key.InstrumentID, p.key.CandleSize, from)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		p.metrics.ObserveTickError(p.key.CandleSize)
		p.logger.Warn().Err(err).Msg("candle fetch failed")
		return
	}
	if len(candles) == 0 {
		return
	}
	if len(candles) > p.cfg.CandleNumber {
		candles = candles[len(candles)-p.cfg.CandleNumber:]
	}

	result := p.engine.Evaluate(candles)
	p.evaluations.Add(1)
	p.metrics.ObserveEvaluation(p.key.CandleSize)
	p.report(ctx, result)
}

// report forwards result when it differs from the last reported signal. A
// first evaluation of HOLD is remembered but not reported.
func (p *Processor) report(ctx context.Context, result domain.SignalResult) {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	previous, first := p.lastSignal, !p.hasSignal
	p.lastSignal = result.Signal
	p.hasSignal = true
	instrument := p.instrument
	p.mu.Unlock()

	if !first && result.Signal == previous {
		return
	}
	if first && result.Signal == domain.SignalHold {
		return
	}

	p.metrics.ObserveSignalChange(string(result.Signal), p.key.CandleSize)
	p.logger.Info().
		Str("instrument", instrument.Name).
		Str("previous", string(previous)).
		Str("signal", string(result.Signal)).
		Msg("signal changed")

	if p.onChange == nil {
		return
	}
	change := domain.SignalChange{
		Key:        p.key,
		Instrument: instrument,
		Result:     result,
		Previous:   previous,
		At:         p.source.ServerTime(),
	}
	if err := p.onChange.HandleSignalChange(ctx, change); err != nil {
		p.logger.Error().Err(err).Msg("signal change handler failed")
	}
}

func (p *Processor) onLastCandle(c domain.Candle) {
	p.logger.Trace().Int64("open_time", c.OpenTime).Float64("close", c.Close).Msg("last candle")
}

func unsubscribe(sub feed.Subscription, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("unsubscribe panicked")
		}
	}()
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn().Err(err).Msg("unsubscribe failed")
	}
}

// mergeInstrument overlays non-empty metadata fields on the listing data.
func mergeInstrument(base, meta domain.Instrument) domain.Instrument {
	if meta.Name != "" {
		base.Name = meta.Name
	}
	if meta.DisplayName != "" {
		base.DisplayName = meta.DisplayName
	}
	if meta.ImageURL != "" {
		base.ImageURL = meta.ImageURL
	}
	return base
}
