package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/job"
	"github.com/vokmon/trade-signal/internal/processor"
)

type stubSignals struct {
	listed     []domain.TradeSignal
	lastFilter domain.SignalFilter
}

func (s *stubSignals) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error) {
	s.lastFilter = filter
	return append([]domain.TradeSignal(nil), s.listed...), nil
}

type stubLatest struct {
	byKey   map[domain.ProcessorKey]domain.TradeSignal
	lastKey domain.ProcessorKey
}

func (s *stubLatest) Latest(ctx context.Context, key domain.ProcessorKey) (*domain.TradeSignal, error) {
	s.lastKey = key
	sig, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	return &sig, nil
}

type stubProcessors struct{}

func (stubProcessors) Snapshot() []processor.Status {
	return []processor.Status{{
		Key:         domain.ProcessorKey{InstrumentID: 76, CandleSize: 300},
		Instrument:  domain.Instrument{ID: 76, Name: "EURUSD-op", IsOTC: true},
		State:       "running",
		LastSignal:  domain.SignalPut,
		Evaluations: 12,
	}}
}

func (stubProcessors) Status() job.SupervisorStatus {
	return job.SupervisorStatus{Processors: 1, LastResult: "ok", LastAt: time.Unix(100, 0).UTC()}
}

type stubConnection struct{}

func (stubConnection) Status() connection.Status {
	return connection.Status{State: "connected"}
}

func testSignal() domain.TradeSignal {
	return domain.TradeSignal{
		ID:      "11111111-1111-1111-1111-111111111111",
		Channel: "fiveMinutes_otc",
		Message: "EURUSD | 🔻 [Resistance zone]",
		Signal:  domain.SignalPut,
		Created: time.Unix(0, 0).UTC(),
		Data: domain.TradeSignalData{
			InstrumentID: 76,
			Timeframe:    domain.TimeframeFiveMinutes,
			IsOTC:        true,
		},
	}
}

func testServer() (*sdkmcp.Server, *stubSignals, *stubLatest) {
	signals := &stubSignals{listed: []domain.TradeSignal{testSignal()}}
	latest := &stubLatest{byKey: map[domain.ProcessorKey]domain.TradeSignal{
		{InstrumentID: 76, CandleSize: 300}: testSignal(),
	}}
	srv := NewServer(nil, Deps{
		Signals:    signals,
		Latest:     latest,
		Processors: stubProcessors{},
		Connection: stubConnection{},
	}, ServerConfig{RequestTimeout: time.Second})
	return srv, signals, latest
}

func connectInMemory(ctx context.Context, srv *sdkmcp.Server) (*sdkmcp.ClientSession, context.CancelFunc, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return session, cancel, nil
}

type authRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func decodeResourceJSON(result *sdkmcp.ReadResourceResult, out any) error {
	if len(result.Contents) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(result.Contents[0].Text), out)
}

func decodeStructured(result *sdkmcp.CallToolResult, out any) error {
	raw, err := json.Marshal(result.StructuredContent)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
