// Package connection owns the single feed session: it dials, retries with a
// bounded attempt budget, hands the live session to waiters and notifies
// subscribers on every (re)connect.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vokmon/trade-signal/internal/feed"
	"github.com/vokmon/trade-signal/internal/metrics"
)

var (
	ErrRetriesExhausted = errors.New("connection: retry attempts exhausted")
	ErrClosed           = errors.New("connection: manager closed")
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 3 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler is invoked after every successful (re)connect.
type Handler func(ctx context.Context, conn feed.Conn) error

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// Status is exposed on the HTTP status API.
type Status struct {
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	LastErr  string `json:"last_error,omitempty"`
}

type Manager struct {
	dialer  feed.Dialer
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	initialized  bool
	closed       bool
	conn         feed.Conn
	state        State
	attempts     int
	reconnecting bool
	exhausted    bool
	lastErr      error
	waiter       *waiter
	subscribers  []*subscriber
}

func NewManager(dialer feed.Dialer, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Manager{
		dialer:  dialer,
		cfg:     cfg,
		logger:  logger.With().Str("component", "connection").Logger(),
		metrics: m,
	}
}

// Initialize makes the first connection attempt. A failure is not returned;
// it hands over to the retry path, whose outcome reaches callers of
// WaitForConnection.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized || m.closed {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	for _, s := range m.subscribers {
		go s.loop(runCtx)
	}
	m.setState(StateConnecting)
	m.mu.Unlock()

	if err := m.connect(runCtx); err != nil {
		m.logger.Warn().Err(err).Msg("initial connection failed")
		m.startReconnect()
	}
}

// Subscribe registers a handler for connected notifications. Handlers run on
// their own goroutine so a slow or failing one never delays the others;
// notifications that arrive while a handler is busy are coalesced.
func (m *Manager) Subscribe(name string, fn Handler) {
	s := &subscriber{name: name, fn: fn, wake: make(chan struct{}, 1), logger: m.logger}
	m.mu.Lock()
	m.subscribers = append(m.subscribers, s)
	runCtx := m.ctx
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if runCtx != nil {
		go s.loop(runCtx)
		if connected {
			s.deliver(conn)
		}
	}
}

// WaitForConnection returns the live session, blocking until one exists.
// Concurrent callers share one pending handle, which is cleared once it
// resolves.
func (m *Manager) WaitForConnection(ctx context.Context) (feed.Conn, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, ErrClosed
	case m.state == StateConnected && m.conn != nil:
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	case m.exhausted:
		err := m.exhaustedErr()
		m.mu.Unlock()
		return nil, err
	}
	if m.waiter == nil {
		m.waiter = newWaiter()
	}
	w := m.waiter
	m.mu.Unlock()

	select {
	case <-w.done:
		return w.conn, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Conn returns the live session or nil.
func (m *Manager) Conn() feed.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.conn
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state.String(), Attempts: m.attempts}
	if m.lastErr != nil {
		st.LastErr = m.lastErr.Error()
	}
	return st
}

// Close stops retries, closes the session and fails pending waiters.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	w := m.waiter
	m.conn = nil
	m.waiter = nil
	m.setState(StateDisconnected)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if w != nil {
		w.resolve(nil, ErrClosed)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	m.conn = conn
	m.attempts = 0
	m.reconnecting = false
	m.lastErr = nil
	m.setState(StateConnected)
	m.mu.Unlock()

	// The session is adopted before listening so a drop reported during
	// registration is matched against it and triggers a reconnect.
	conn.OnStateChange(func(s feed.TransportState) { m.onTransport(conn, s) })

	m.mu.Lock()
	live := m.conn == conn && m.state == StateConnected
	m.mu.Unlock()
	if !live {
		m.logger.Warn().Msg("feed session dropped right after connect")
		return nil
	}

	m.logger.Info().Msg("feed connected")
	m.notifyConnected(conn)
	return nil
}

// notifyConnected resolves the pending waiter, then notifies subscribers.
func (m *Manager) notifyConnected(conn feed.Conn) {
	m.mu.Lock()
	w := m.waiter
	m.waiter = nil
	subs := append([]*subscriber(nil), m.subscribers...)
	m.mu.Unlock()

	if w != nil {
		w.resolve(conn, nil)
	}
	for _, s := range subs {
		s.deliver(conn)
	}
}

func (m *Manager) onTransport(conn feed.Conn, s feed.TransportState) {
	m.mu.Lock()
	if m.closed || conn != m.conn {
		m.mu.Unlock()
		return
	}
	switch s {
	case feed.TransportDisconnected:
		m.conn = nil
		m.setState(StateConnecting)
		m.mu.Unlock()
		m.logger.Warn().Msg("feed transport disconnected")
		conn.Close()
		m.startReconnect()
	case feed.TransportConnected:
		if m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.attempts = 0
		m.setState(StateConnected)
		m.mu.Unlock()
		m.notifyConnected(conn)
	default:
		m.mu.Unlock()
	}
}

// startReconnect launches the retry loop unless one is already running.
func (m *Manager) startReconnect() {
	m.mu.Lock()
	if m.reconnecting || m.closed || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.exhausted = false
	ctx := m.ctx
	m.mu.Unlock()

	go m.retryLoop(ctx)
}

func (m *Manager) retryLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		if m.closed {
			m.reconnecting = false
			m.mu.Unlock()
			return
		}
		if m.attempts >= m.cfg.MaxAttempts {
			m.exhaust()
			return
		}
		m.attempts++
		attempt := m.attempts
		m.setState(StateConnecting)
		m.mu.Unlock()

		m.metrics.ObserveReconnectAttempt()
		m.logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", m.cfg.MaxAttempts).
			Dur("delay", m.cfg.RetryDelay).
			Msg("reconnecting to feed")

		timer := time.NewTimer(m.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.mu.Lock()
			m.reconnecting = false
			m.mu.Unlock()
			return
		case <-timer.C:
		}

		err := m.connect(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
}

// exhaust must be called with m.mu held; it releases it.
func (m *Manager) exhaust() {
	m.reconnecting = false
	m.exhausted = true
	m.setState(StateDisconnected)
	w := m.waiter
	m.waiter = nil
	err := m.exhaustedErr()
	m.mu.Unlock()

	m.logger.Error().Err(err).Msg("giving up on feed connection")
	if w != nil {
		w.resolve(nil, err)
	}
}

func (m *Manager) exhaustedErr() error {
	if m.lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, m.cfg.MaxAttempts, m.lastErr)
	}
	return ErrRetriesExhausted
}

func (m *Manager) setState(s State) {
	m.state = s
	m.metrics.SetConnectionState(int(s))
}

type waiter struct {
	done chan struct{}
	once sync.Once
	conn feed.Conn
	err  error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

func (w *waiter) resolve(conn feed.Conn, err error) {
	w.once.Do(func() {
		w.conn, w.err = conn, err
		close(w.done)
	})
}

type subscriber struct {
	name   string
	fn     Handler
	logger zerolog.Logger

	mu      sync.Mutex
	pending feed.Conn
	wake    chan struct{}
}

func (s *subscriber) deliver(conn feed.Conn) {
	s.mu.Lock()
	s.pending = conn
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.mu.Lock()
			conn := s.pending
			s.pending = nil
			s.mu.Unlock()
			if conn != nil {
				s.invoke(ctx, conn)
			}
		}
	}
}

func (s *subscriber) invoke(ctx context.Context, conn feed.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("subscriber", s.name).Interface("panic", r).Msg("connected handler panicked")
		}
	}()
	if err := s.fn(ctx, conn); err != nil {
		s.logger.Error().Err(err).Str("subscriber", s.name).Msg("connected handler failed")
	}
}
