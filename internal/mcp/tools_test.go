package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestToolsListAndInvoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, signals, _ := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	tools, err := session.ListTools(ctx, &sdkmcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools failed: %v", err)
	}
	if len(tools.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools.Tools))
	}

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "signals_list",
		Arguments: map[string]any{"channel": "fiveMinutes_otc", "instrument_id": 76, "limit": 10},
	})
	if err != nil {
		t.Fatalf("call tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	var listed signalsListOutput
	if err := decodeStructured(res, &listed); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(listed.Signals) != 1 || listed.Signals[0].Channel != "fiveMinutes_otc" {
		t.Fatalf("unexpected signals: %+v", listed.Signals)
	}
	if signals.lastFilter.Channel != "fiveMinutes_otc" || signals.lastFilter.InstrumentID != 76 || signals.lastFilter.Limit != 10 {
		t.Fatalf("unexpected filter: %+v", signals.lastFilter)
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "processors_status", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("processors tool failed: %v", err)
	}
	var procs processorsStatusOutput
	if err := decodeStructured(res, &procs); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(procs.Processors) != 1 || procs.Processors[0].State != "running" || procs.Supervisor.Processors != 1 {
		t.Fatalf("unexpected processors payload: %+v", procs)
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "connection_status", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("connection tool failed: %v", err)
	}
	var conn connectionStatusOutput
	if err := decodeStructured(res, &conn); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if conn.Connection.State != "connected" {
		t.Fatalf("expected connected, got %q", conn.Connection.State)
	}
}

func TestSignalsLatestTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, _, latest := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "signals_latest",
		Arguments: map[string]any{"instrument_id": 76, "candle_size": 300},
	})
	if err != nil {
		t.Fatalf("call tool failed: %v", err)
	}
	var out signalsLatestOutput
	if err := decodeStructured(res, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !out.Found || out.Signal == nil || out.Signal.Data.InstrumentID != 76 {
		t.Fatalf("unexpected latest payload: %+v", out)
	}
	if latest.lastKey.CandleSize != 300 {
		t.Fatalf("unexpected key: %+v", latest.lastKey)
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "signals_latest",
		Arguments: map[string]any{"instrument_id": 1, "candle_size": 60},
	})
	if err != nil {
		t.Fatalf("call tool failed: %v", err)
	}
	out = signalsLatestOutput{}
	if err := decodeStructured(res, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Found {
		t.Fatal("expected miss for unknown processor")
	}
}

func TestToolsValidationFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, _, _ := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "signals_latest",
		Arguments: map[string]any{"instrument_id": 76, "candle_size": 120},
	})
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool-level validation error")
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "signals_list",
		Arguments: map[string]any{"channel": "weekly"},
	})
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected unsupported channel error")
	}
}

func TestToolsReportMissingServices(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv := NewServer(nil, Deps{}, ServerConfig{})
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	for _, name := range []string{"processors_status", "connection_status", "signals_list"} {
		res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: map[string]any{}})
		if err != nil {
			t.Fatalf("%s: unexpected protocol error: %v", name, err)
		}
		if !res.IsError {
			t.Fatalf("%s: expected unavailable error", name)
		}
	}
}

func TestHTTPTransportServesToolsWithToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, _, _ := testServer()
	ts := httptest.NewServer(NewHTTPTransportHandler(srv, HTTPHandlerConfig{AuthToken: "secret", RateLimitPerMin: 600}))
	defer ts.Close()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-http-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.URL,
		HTTPClient: &http.Client{Transport: &authRoundTripper{token: "secret"}},
	}, nil)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "connection_status", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("call tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
}
