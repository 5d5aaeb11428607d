package mcp

import (
	"context"

	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/job"
	"github.com/vokmon/trade-signal/internal/processor"
)

// SignalLister exposes the stored signal history.
type SignalLister interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error)
}

// LatestReader exposes the last published signal per processor.
type LatestReader interface {
	Latest(ctx context.Context, key domain.ProcessorKey) (*domain.TradeSignal, error)
}

type ProcessorRegistry interface {
	Snapshot() []processor.Status
	Status() job.SupervisorStatus
}

type ConnectionReporter interface {
	Status() connection.Status
}

// Deps are the read-only views the server exposes. A nil member makes its
// tools and resources report the backing service as unavailable.
type Deps struct {
	Signals    SignalLister
	Latest     LatestReader
	Processors ProcessorRegistry
	Connection ConnectionReporter
}
