package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/feed"
	"github.com/vokmon/trade-signal/internal/metrics"
)

type stubSubscription struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *stubSubscription) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSource struct {
	mu           sync.Mutex
	candles      []domain.Candle
	fetchErr     error
	subscribeErr error
	meta         domain.Instrument
	metaErr      error
	fetches      int
	lastFrom     time.Time
	subscribes   int
	sub          *stubSubscription
	block        chan struct{}
}

func (s *stubSource) ServerTime() time.Time { return time.Unix(100000, 0) }

func (s *stubSource) TradableInstruments(context.Context, time.Time) ([]domain.Instrument, error) {
	return nil, nil
}

func (s *stubSource) Instrument(context.Context, int64) (domain.Instrument, error) {
	return s.meta, s.metaErr
}

func (s *stubSource) FetchCandles(ctx context.Context, _ int64, _ int, from time.Time) ([]domain.Candle, error) {
	s.mu.Lock()
	s.fetches++
	s.lastFrom = from
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.candles, s.fetchErr
}

func (s *stubSource) SubscribeLastCandle(context.Context, int64, int, func(domain.Candle)) (feed.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.sub = &stubSubscription{}
	return s.sub, nil
}

func (s *stubSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// scriptedEngine returns the scripted signals in order, then repeats the last.
type scriptedEngine struct {
	mu      sync.Mutex
	signals []domain.SignalType
	seen    []int
}

func (e *scriptedEngine) Evaluate(candles []domain.Candle) domain.SignalResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, len(candles))
	sig := e.signals[0]
	if len(e.signals) > 1 {
		e.signals = e.signals[1:]
	}
	return domain.SignalResult{Signal: sig}
}

type recorder struct {
	mu      sync.Mutex
	changes []domain.SignalChange
	err     error
}

func (r *recorder) HandleSignalChange(_ context.Context, c domain.SignalChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return r.err
}

func (r *recorder) snapshot() []domain.SignalChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SignalChange(nil), r.changes...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleCandles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{OpenTime: int64(i * 60), Open: 1, High: 2, Low: 0.5, Close: 1.5}
	}
	return out
}

func newTestProcessor(t *testing.T, src *stubSource, engine Evaluator, onChange ChangeHandler) (*Processor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := New(Params{
		Source:     src,
		Instrument: domain.Instrument{ID: 76, Name: "EURUSD-op"},
		CandleSize: 60,
		Engine:     engine,
		OnChange:   onChange,
		Config:     Config{CandleNumber: 10, Interval: time.Hour},
		Logger:     zerolog.Nop(),
	})
	p.now = clock.Now
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	return p, clock
}

func TestReportsOnlySignalChanges(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	engine := &scriptedEngine{signals: []domain.SignalType{
		domain.SignalHold, domain.SignalHold, domain.SignalCall, domain.SignalCall, domain.SignalHold,
	}}
	rec := &recorder{}
	p, clock := newTestProcessor(t, src, engine, rec)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		p.tick(context.Background())
	}

	changes := rec.snapshot()
	require.Len(t, changes, 2)
	assert.Equal(t, domain.SignalCall, changes[0].Result.Signal)
	assert.Equal(t, domain.SignalHold, changes[0].Previous)
	assert.Equal(t, domain.SignalHold, changes[1].Result.Signal)
	assert.Equal(t, domain.SignalCall, changes[1].Previous)
	assert.Equal(t, domain.ProcessorKey{InstrumentID: 76, CandleSize: 60}, changes[0].Key)
}

func TestReportsEveryFlip(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	engine := &scriptedEngine{signals: []domain.SignalType{
		domain.SignalHold, domain.SignalCall, domain.SignalHold, domain.SignalCall,
	}}
	rec := &recorder{}
	p, clock := newTestProcessor(t, src, engine, rec)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		p.tick(context.Background())
	}

	changes := rec.snapshot()
	require.Len(t, changes, 3)
	assert.Equal(t, domain.SignalCall, changes[0].Result.Signal)
	assert.Equal(t, domain.SignalHold, changes[1].Result.Signal)
	assert.Equal(t, domain.SignalCall, changes[2].Result.Signal)
}

func TestFirstDirectionalSignalIsReported(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	rec := &recorder{}
	p, clock := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalPut}}, rec)

	clock.Advance(time.Second)
	p.tick(context.Background())

	changes := rec.snapshot()
	require.Len(t, changes, 1)
	assert.Equal(t, domain.SignalPut, changes[0].Result.Signal)
	assert.Equal(t, domain.SignalType(""), changes[0].Previous)
}

func TestTicksWithinSameSecondCollapse(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	p, clock := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalHold}}, nil)

	clock.Advance(1500 * time.Millisecond)
	p.tick(context.Background())
	clock.Advance(200 * time.Millisecond)
	p.tick(context.Background())
	assert.Equal(t, 1, src.fetchCount())

	clock.Advance(time.Second)
	p.tick(context.Background())
	assert.Equal(t, 2, src.fetchCount())
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20), block: make(chan struct{})}
	p, clock := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalHold}}, nil)

	clock.Advance(time.Second)
	done := make(chan struct{})
	go func() {
		p.tick(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return src.fetchCount() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Second)
	p.tick(context.Background())
	assert.Equal(t, 1, src.fetchCount())

	close(src.block)
	<-done
}

func TestTickTrimsToCandleNumberAndUsesServerTime(t *testing.T) {
	src := &stubSource{candles: sampleCandles(25)}
	engine := &scriptedEngine{signals: []domain.SignalType{domain.SignalHold}}
	p, clock := newTestProcessor(t, src, engine, nil)

	clock.Advance(time.Second)
	p.tick(context.Background())

	assert.Equal(t, []int{10}, engine.seen)
	assert.Equal(t, time.Unix(100000-60*10, 0), src.lastFrom)
	assert.Equal(t, int64(1), p.Status().Evaluations)
}

func TestFetchErrorDoesNotReport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	src := &stubSource{fetchErr: errors.New("boom")}
	rec := &recorder{}
	p := New(Params{
		Source:     src,
		Instrument: domain.Instrument{ID: 1},
		CandleSize: 60,
		Engine:     &scriptedEngine{signals: []domain.SignalType{domain.SignalCall}},
		OnChange:   rec,
		Config:     Config{Interval: time.Hour},
		Logger:     zerolog.Nop(),
		Metrics:    m,
	})
	clock := &fakeClock{}
	p.now = clock.Now
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	clock.Advance(time.Second)
	p.tick(context.Background())

	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TickErrors.WithLabelValues("60")))
}

func TestHandlerErrorKeepsProcessorRunning(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	rec := &recorder{err: errors.New("sink down")}
	engine := &scriptedEngine{signals: []domain.SignalType{domain.SignalCall, domain.SignalPut}}
	p, clock := newTestProcessor(t, src, engine, rec)

	clock.Advance(time.Second)
	p.tick(context.Background())
	clock.Advance(time.Second)
	p.tick(context.Background())

	assert.Len(t, rec.snapshot(), 2)
	assert.Equal(t, StateRunning, p.State())
}

func TestStartIsIdempotentAndMergesMetadata(t *testing.T) {
	src := &stubSource{meta: domain.Instrument{ID: 76, DisplayName: "EUR/USD", ImageURL: "https://img"}}
	p, _ := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalHold}}, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, 1, src.subscribes)

	st := p.Status()
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "EURUSD-op", st.Instrument.Name)
	assert.Equal(t, "EUR/USD", st.Instrument.DisplayName)
}

func TestStartToleratesMetadataFailure(t *testing.T) {
	src := &stubSource{metaErr: errors.New("no metadata")}
	p, _ := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalHold}}, nil)
	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, "EURUSD-op", p.Status().Instrument.Name)
}

func TestStartFailsWhenSubscriptionFails(t *testing.T) {
	src := &stubSource{subscribeErr: errors.New("denied")}
	p := New(Params{Source: src, Instrument: domain.Instrument{ID: 5}, CandleSize: 300, Logger: zerolog.Nop()})

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, p.State())
	assert.ErrorIs(t, p.Start(context.Background()), ErrStopped)
}

func TestStopIsIdempotentAndSilencesTicks(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	rec := &recorder{}
	p, clock := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalCall}}, rec)

	p.Stop()
	p.Stop()
	assert.Equal(t, 1, src.sub.count())

	clock.Advance(time.Second)
	p.tick(context.Background())
	assert.Equal(t, 0, src.fetchCount())
	assert.Empty(t, rec.snapshot())

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("run loop did not exit after Stop")
	}
}

func TestStopDuringTickSuppressesReport(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20), block: make(chan struct{})}
	rec := &recorder{}
	p, clock := newTestProcessor(t, src, &scriptedEngine{signals: []domain.SignalType{domain.SignalCall}}, rec)

	clock.Advance(time.Second)
	done := make(chan struct{})
	go func() {
		p.tick(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return src.fetchCount() == 1 }, time.Second, time.Millisecond)

	p.Stop()
	close(src.block)
	<-done

	assert.Empty(t, rec.snapshot())
	assert.Equal(t, StateStopped, p.State())
}

func TestRunLoopEvaluatesOnInterval(t *testing.T) {
	src := &stubSource{candles: sampleCandles(20)}
	rec := &recorder{}
	p := New(Params{
		Source:     src,
		Instrument: domain.Instrument{ID: 9, Name: "AUDCAD"},
		CandleSize: 60,
		Engine:     &scriptedEngine{signals: []domain.SignalType{domain.SignalPut}},
		OnChange:   rec,
		Config:     Config{Interval: 10 * time.Millisecond},
		Logger:     zerolog.Nop(),
	})
	clock := &fakeClock{}
	p.now = func() time.Time {
		clock.Advance(time.Second)
		return clock.Now()
	}
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	<-p.Done()
	assert.Len(t, rec.snapshot(), 1)
}
