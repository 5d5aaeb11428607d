package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vokmon/trade-signal/internal/domain"
)

const (
	defaultRequestTimeout = 10 * time.Second
	heartbeatInterval     = 15 * time.Second
	pongWait              = 45 * time.Second
	writeWait             = 5 * time.Second
)

type WSConfig struct {
	URL            string
	Username       string
	Password       string
	PlatformID     int
	RequestTimeout time.Duration
}

// WSDialer opens authenticated websocket sessions against the feed.
type WSDialer struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewWSDialer(cfg WSConfig, logger zerolog.Logger) *WSDialer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &WSDialer{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("component", "feed").Logger(),
	}
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	if d.cfg.URL == "" {
		return nil, errors.New("feed: websocket url is empty")
	}
	ws, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("feed: dial %s: %s: %w", d.cfg.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("feed: dial %s: %w", d.cfg.URL, err)
	}

	c := newWSConn(ws, d.cfg.RequestTimeout, d.logger)
	go c.readLoop()
	go c.heartbeatLoop()

	auth := authenticateBody{Username: d.cfg.Username, Password: d.cfg.Password, PlatformID: d.cfg.PlatformID}
	if err := c.request(ctx, msgAuthenticate, auth, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("feed: authenticate: %w", err)
	}
	d.logger.Info().Str("url", d.cfg.URL).Msg("feed session established")
	return c, nil
}

type candleKey struct {
	instrumentID int64
	candleSize   int
}

type wsConn struct {
	ws      *websocket.Conn
	timeout time.Duration
	logger  zerolog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan envelope
	handlers  map[candleKey]map[uint64]func(domain.Candle)
	listeners []func(TransportState)
	down      bool
	nextSubID uint64

	serverMillis atomic.Int64
	syncedAt     atomic.Pointer[time.Time]

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, timeout time.Duration, logger zerolog.Logger) *wsConn {
	return &wsConn{
		ws:       ws,
		timeout:  timeout,
		logger:   logger,
		pending:  make(map[string]chan envelope),
		handlers: make(map[candleKey]map[uint64]func(domain.Candle)),
		closed:   make(chan struct{}),
	}
}

// ServerTime extrapolates the last timeSync push with the local monotonic
// clock. Before the first sync it returns local time.
func (c *wsConn) ServerTime() time.Time {
	at := c.syncedAt.Load()
	if at == nil {
		return time.Now()
	}
	return time.UnixMilli(c.serverMillis.Load()).Add(time.Since(*at))
}

func (c *wsConn) TradableInstruments(ctx context.Context, asOf time.Time) ([]domain.Instrument, error) {
	var resp underlyingsResponse
	if err := c.request(ctx, msgGetUnderlyings, underlyingsRequest{AsOf: asOf.Unix()}, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Instrument, 0, len(resp.Underlyings))
	for _, u := range resp.Underlyings {
		if u.Suspended {
			continue
		}
		out = append(out, u.toDomain())
	}
	return out, nil
}

func (c *wsConn) Instrument(ctx context.Context, id int64) (domain.Instrument, error) {
	var w wireInstrument
	if err := c.request(ctx, msgGetActive, activeRequest{ActiveID: id}, &w); err != nil {
		return domain.Instrument{}, err
	}
	if w.ActiveID == 0 {
		w.ActiveID = id
	}
	return w.toDomain(), nil
}

func (c *wsConn) FetchCandles(ctx context.Context, instrumentID int64, candleSize int, from time.Time) ([]domain.Candle, error) {
	req := candlesRequest{
		ActiveID: instrumentID,
		Size:     candleSize,
		From:     from.Unix(),
		To:       c.ServerTime().Unix(),
	}
	var resp candlesResponse
	if err := c.request(ctx, msgGetCandles, req, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Candle, len(resp.Candles))
	for i, w := range resp.Candles {
		out[i] = w.toDomain()
	}
	return out, nil
}

func (c *wsConn) SubscribeLastCandle(ctx context.Context, instrumentID int64, candleSize int, fn func(domain.Candle)) (Subscription, error) {
	key := candleKey{instrumentID: instrumentID, candleSize: candleSize}

	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	first := len(c.handlers[key]) == 0
	if c.handlers[key] == nil {
		c.handlers[key] = make(map[uint64]func(domain.Candle))
	}
	c.handlers[key][id] = fn
	c.mu.Unlock()

	if first {
		body := candleSubscriptionBody{ActiveID: instrumentID, Size: candleSize}
		if err := c.request(ctx, msgSubscribeCandle, body, nil); err != nil {
			c.removeHandler(key, id)
			return nil, err
		}
	}
	return &wsSubscription{conn: c, key: key, id: id}, nil
}

// OnStateChange registers fn for transport changes. A session that has
// already dropped reports TransportDisconnected to fn immediately.
func (c *wsConn) OnStateChange(fn func(TransportState)) {
	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		fn(TransportDisconnected)
		return
	}
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// removeHandler reports whether the key has no handlers left.
func (c *wsConn) removeHandler(key candleKey, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs, ok := c.handlers[key]
	if !ok {
		return false
	}
	delete(hs, id)
	if len(hs) == 0 {
		delete(c.handlers, key)
		return true
	}
	return false
}

func (c *wsConn) request(ctx context.Context, name string, body any, out any) error {
	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("feed: encode %s: %w", name, err)
	}
	reqID := uuid.NewString()
	ch := make(chan envelope, 1)

	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	if err := c.write(envelope{Name: name, RequestID: reqID, Msg: raw}); err != nil {
		return fmt.Errorf("feed: send %s: %w", name, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Status >= 400 {
			var e errorBody
			_ = json.Unmarshal(resp.Msg, &e)
			return fmt.Errorf("feed: %s failed with status %d: %s", name, resp.Status, e.Message)
		}
		if out != nil && len(resp.Msg) > 0 {
			if err := json.Unmarshal(resp.Msg, out); err != nil {
				return fmt.Errorf("feed: decode %s: %w", name, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrTimeout, name, c.timeout)
	case <-c.closed:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) write(env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(env)
}

func (c *wsConn) readLoop() {
	defer func() {
		c.Close()
		c.emit(TransportDisconnected)
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn().Err(err).Msg("feed read loop ended")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(env)
	}
}

func (c *wsConn) dispatch(env envelope) {
	if env.RequestID != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- env:
			default:
			}
		}
		return
	}

	switch env.Name {
	case msgTimeSync:
		var ms int64
		if err := json.Unmarshal(env.Msg, &ms); err != nil {
			c.logger.Debug().Err(err).Msg("bad timeSync payload")
			return
		}
		now := time.Now()
		c.serverMillis.Store(ms)
		c.syncedAt.Store(&now)
	case msgCandleGenerated:
		var w wireCandle
		if err := json.Unmarshal(env.Msg, &w); err != nil {
			c.logger.Debug().Err(err).Msg("bad candle payload")
			return
		}
		key := candleKey{instrumentID: w.ActiveID, candleSize: w.Size}
		c.mu.Lock()
		fns := make([]func(domain.Candle), 0, len(c.handlers[key]))
		for _, fn := range c.handlers[key] {
			fns = append(fns, fn)
		}
		c.mu.Unlock()
		candle := w.toDomain()
		for _, fn := range fns {
			fn(candle)
		}
	}
}

func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn().Err(err).Msg("feed heartbeat failed")
				return
			}
		}
	}
}

func (c *wsConn) emit(state TransportState) {
	c.mu.Lock()
	if state == TransportDisconnected {
		c.down = true
	}
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range ls {
		fn(state)
	}
}

type wsSubscription struct {
	conn *wsConn
	key  candleKey
	id   uint64
	once sync.Once
}

func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		if !s.conn.removeHandler(s.key, s.id) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.conn.timeout)
		defer cancel()
		body := candleSubscriptionBody{ActiveID: s.key.instrumentID, Size: s.key.candleSize}
		err = s.conn.request(ctx, msgUnsubscribeCandle, body, nil)
		if errors.Is(err, ErrNotConnected) {
			err = nil
		}
	})
	return err
}
