package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "signals_list",
		Description: "List published trade signals, newest first, with optional channel and instrument filters",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in signalsListInput) (*mcp.CallToolResult, signalsListOutput, error) {
		if deps.Signals == nil {
			return nil, signalsListOutput{}, fmt.Errorf("signal service unavailable")
		}
		filter, err := normalizeSignalFilter(in)
		if err != nil {
			return nil, signalsListOutput{}, err
		}
		result, err := deps.Signals.ListSignals(ctx, filter)
		if err != nil {
			return nil, signalsListOutput{}, err
		}
		return nil, signalsListOutput{Signals: result}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signals_latest",
		Description: "Get the most recent signal published for one instrument and candle size",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in signalsLatestInput) (*mcp.CallToolResult, signalsLatestOutput, error) {
		if deps.Latest == nil {
			return nil, signalsLatestOutput{}, fmt.Errorf("latest signal cache unavailable")
		}
		key, err := normalizeProcessorKey(in.InstrumentID, in.CandleSize)
		if err != nil {
			return nil, signalsLatestOutput{}, err
		}
		sig, err := deps.Latest.Latest(ctx, key)
		if err != nil {
			return nil, signalsLatestOutput{}, err
		}
		return nil, signalsLatestOutput{Found: sig != nil, Signal: sig}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "processors_status",
		Description: "List running signal processors with their last signal and the supervisor refresh state",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ processorsStatusInput) (*mcp.CallToolResult, processorsStatusOutput, error) {
		if deps.Processors == nil {
			return nil, processorsStatusOutput{}, fmt.Errorf("supervisor unavailable")
		}
		return nil, processorsSnapshot(deps.Processors), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connection_status",
		Description: "Get the feed connection state and retry attempts",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ connectionStatusInput) (*mcp.CallToolResult, connectionStatusOutput, error) {
		if deps.Connection == nil {
			return nil, connectionStatusOutput{}, fmt.Errorf("connection manager unavailable")
		}
		return nil, connectionStatusOutput{Connection: deps.Connection.Status()}, nil
	})
}

func processorsSnapshot(reg ProcessorRegistry) processorsStatusOutput {
	return processorsStatusOutput{
		Supervisor: reg.Status(),
		Processors: reg.Snapshot(),
	}
}
