package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/feed"
	"github.com/vokmon/trade-signal/internal/metrics"
	"github.com/vokmon/trade-signal/internal/processor"
)

const (
	defaultRefreshInterval = time.Hour
	defaultStartLimit      = 16
	listTimeout            = 30 * time.Second
)

type ConnectionWaiter interface {
	WaitForConnection(ctx context.Context) (feed.Conn, error)
}

// Runner is the part of a processor the supervisor drives.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
	Status() processor.Status
}

// ProcessorFactory builds an unstarted processor. candleSize is in seconds.
type ProcessorFactory func(src feed.CandleSource, inst domain.Instrument, candleSize int) Runner

type SupervisorConfig struct {
	// TimeframesMinutes are the candle sizes to run, in minutes.
	TimeframesMinutes []int
	RefreshInterval   time.Duration
	// StartLimit caps concurrent processor starts within one timeframe.
	StartLimit int
}

// Supervisor keeps exactly one processor per (instrument, timeframe) for the
// currently tradable instruments, rebuilding the set on a timer and after
// every reconnect.
type Supervisor struct {
	tracer  trace.Tracer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	conn    ConnectionWaiter
	factory ProcessorFactory
	cfg     SupervisorConfig

	refreshMu sync.Mutex
	lastConn  feed.Conn

	mu         sync.RWMutex
	processors map[domain.ProcessorKey]Runner
	refreshing bool
	lastResult string
	lastAt     time.Time
}

func NewSupervisor(
	tracer trace.Tracer,
	logger zerolog.Logger,
	m *metrics.Metrics,
	conn ConnectionWaiter,
	factory ProcessorFactory,
	cfg SupervisorConfig,
) *Supervisor {
	if len(cfg.TimeframesMinutes) == 0 {
		cfg.TimeframesMinutes = append([]int(nil), domain.SupportedTimeframes...)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.StartLimit <= 0 {
		cfg.StartLimit = defaultStartLimit
	}
	return &Supervisor{
		tracer:     tracer,
		logger:     logger.With().Str("component", "supervisor").Logger(),
		metrics:    m,
		conn:       conn,
		factory:    factory,
		cfg:        cfg,
		processors: make(map[domain.ProcessorKey]Runner),
	}
}

// Start waits for the feed, performs the startup refresh and then refreshes
// on every interval. Blocks until ctx is cancelled, then stops all
// processors. It returns early only when no connection can be obtained.
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info().
		Ints("timeframes", s.cfg.TimeframesMinutes).
		Dur("interval", s.cfg.RefreshInterval).
		Msg("supervisor starting")

	if _, err := s.conn.WaitForConnection(ctx); err != nil {
		return err
	}
	if err := s.refresh(ctx, false); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("startup refresh failed")
	}

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.StopAll()
			s.logger.Info().Msg("supervisor stopped")
			return nil
		case <-ticker.C:
			if err := s.refresh(ctx, true); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}

// OnConnected rebuilds the processor set for a new session. A session the
// supervisor has already built against is skipped.
func (s *Supervisor) OnConnected(ctx context.Context, _ feed.Conn) error {
	return s.refresh(ctx, false)
}

// Refresh forces a full rebuild.
func (s *Supervisor) Refresh(ctx context.Context) error {
	return s.refresh(ctx, true)
}

// refresh is serialized: a trigger that arrives mid-refresh waits and then
// runs its own rebuild, so the registry never sees two rebuilds interleave.
func (s *Supervisor) refresh(ctx context.Context, force bool) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	conn, err := s.conn.WaitForConnection(ctx)
	if err != nil {
		s.metrics.ObserveRefresh("error")
		s.recordResult("error")
		return err
	}
	if !force && conn == s.lastConn {
		return nil
	}

	spanCtx, span := s.tracer.Start(ctx, "supervisor.refresh")
	defer span.End()

	s.setRefreshing(true)
	defer s.setRefreshing(false)

	s.StopAll()

	listCtx, cancel := context.WithTimeout(spanCtx, listTimeout)
	instruments, err := conn.TradableInstruments(listCtx, conn.ServerTime())
	cancel()
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveRefresh("error")
		s.recordResult("error")
		return err
	}
	span.SetAttributes(attribute.Int("instruments", len(instruments)))
	s.lastConn = conn

	// Processors outlive the refresh, so they run under ctx rather than the span.
	for _, minutes := range s.cfg.TimeframesMinutes {
		candleSize := minutes * 60
		var g errgroup.Group
		g.SetLimit(s.cfg.StartLimit)
		for _, inst := range instruments {
			g.Go(func() error {
				s.startProcessor(ctx, conn, inst, candleSize)
				return nil
			})
		}
		_ = g.Wait()
	}

	count := s.Count()
	s.metrics.SetActiveProcessors(count)
	s.metrics.ObserveRefresh("ok")
	s.recordResult("ok")
	s.logger.Info().Int("instruments", len(instruments)).Int("processors", count).Msg("processors refreshed")
	return nil
}

// startProcessor registers and starts one processor unless its key is
// already present. Failures are logged and the key released.
func (s *Supervisor) startProcessor(ctx context.Context, conn feed.Conn, inst domain.Instrument, candleSize int) {
	if inst.ID == 0 {
		s.logger.Warn().Str("instrument", inst.Name).Msg("skipping instrument without id")
		return
	}
	key := domain.ProcessorKey{InstrumentID: inst.ID, CandleSize: candleSize}

	s.mu.Lock()
	if _, exists := s.processors[key]; exists {
		s.mu.Unlock()
		s.logger.Debug().Str("key", key.String()).Msg("processor already registered")
		return
	}
	p := s.factory(conn, inst, candleSize)
	s.processors[key] = p
	s.mu.Unlock()

	if err := p.Start(ctx); err != nil {
		s.logger.Error().Err(err).Str("key", key.String()).Msg("processor failed to start")
		s.mu.Lock()
		if s.processors[key] == p {
			delete(s.processors, key)
		}
		s.mu.Unlock()
		p.Stop()
	}
}

// StopAll stops and deregisters every processor.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	procs := s.processors
	s.processors = make(map[domain.ProcessorKey]Runner)
	s.mu.Unlock()

	for _, p := range procs {
		p.Stop()
	}
	s.metrics.SetActiveProcessors(0)
	if len(procs) > 0 {
		s.logger.Info().Int("stopped", len(procs)).Msg("processors stopped")
	}
}

func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processors)
}

// Snapshot returns processor statuses ordered by key.
func (s *Supervisor) Snapshot() []processor.Status {
	s.mu.RLock()
	out := make([]processor.Status, 0, len(s.processors))
	for _, p := range s.processors {
		out = append(out, p.Status())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.CandleSize != out[j].Key.CandleSize {
			return out[i].Key.CandleSize < out[j].Key.CandleSize
		}
		return out[i].Key.InstrumentID < out[j].Key.InstrumentID
	})
	return out
}

type SupervisorStatus struct {
	Processors int       `json:"processors"`
	Refreshing bool      `json:"refreshing"`
	LastResult string    `json:"last_result,omitempty"`
	LastAt     time.Time `json:"last_refresh_at,omitempty"`
}

func (s *Supervisor) Status() SupervisorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SupervisorStatus{
		Processors: len(s.processors),
		Refreshing: s.refreshing,
		LastResult: s.lastResult,
		LastAt:     s.lastAt,
	}
}

func (s *Supervisor) setRefreshing(v bool) {
	s.mu.Lock()
	s.refreshing = v
	s.mu.Unlock()
}

func (s *Supervisor) recordResult(result string) {
	s.mu.Lock()
	s.lastResult = result
	s.lastAt = time.Now()
	s.mu.Unlock()
}
