package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vokmon/trade-signal/internal/service"
)

func registerResources(server *mcp.Server, deps Deps) {
	server.AddResource(&mcp.Resource{
		URI:         "signals://channels",
		Name:        "signal-channels",
		Description: "Channels signals are published to",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return jsonResource(req.Params.URI, service.Channels)
	})

	server.AddResource(&mcp.Resource{
		URI:         "status://processors",
		Name:        "processors-status",
		Description: "Running signal processors and supervisor refresh state",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if deps.Processors == nil {
			return nil, fmt.Errorf("supervisor unavailable")
		}
		return jsonResource(req.Params.URI, processorsSnapshot(deps.Processors))
	})

	server.AddResource(&mcp.Resource{
		URI:         "status://connection",
		Name:        "connection-status",
		Description: "Feed connection state",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if deps.Connection == nil {
			return nil, fmt.Errorf("connection manager unavailable")
		}
		return jsonResource(req.Params.URI, connectionStatusOutput{Connection: deps.Connection.Status()})
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "signals://latest{?channel,instrument_id,limit}",
		Name:        "signals-latest",
		Description: "Recent published signals with optional channel/instrument_id/limit query params",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if deps.Signals == nil {
			return nil, fmt.Errorf("signal service unavailable")
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if parsed.Scheme != "signals" || parsed.Host != "latest" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		query := parsed.Query()
		input := signalsListInput{Channel: query.Get("channel"), Limit: defaultSignalLimit}
		if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid limit: %s", raw)
			}
			input.Limit = n
		}
		if raw := strings.TrimSpace(query.Get("instrument_id")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid instrument_id: %s", raw)
			}
			input.InstrumentID = id
		}

		filter, err := normalizeSignalFilter(input)
		if err != nil {
			return nil, err
		}
		list, err := deps.Signals.ListSignals(ctx, filter)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, signalsListOutput{Signals: list})
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "signals://processor/{instrument_id}/{candle_size}",
		Name:        "signal-by-processor",
		Description: "Most recent signal for an instrument and candle size in seconds",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if deps.Latest == nil {
			return nil, fmt.Errorf("latest signal cache unavailable")
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil || parsed.Scheme != "signals" || parsed.Host != "processor" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(parts) != 2 {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid instrument_id: %s", parts[0])
		}
		size, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid candle_size: %s", parts[1])
		}
		key, err := normalizeProcessorKey(id, size)
		if err != nil {
			return nil, err
		}

		sig, err := deps.Latest.Latest(ctx, key)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, signalsLatestOutput{Found: sig != nil, Signal: sig})
	})
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}
