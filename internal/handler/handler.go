package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vokmon/trade-signal/internal/connection"
	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/job"
	"github.com/vokmon/trade-signal/internal/processor"
)

type SignalLister interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error)
}

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

// Deps groups the read-only views the API serves. Nil members disable
// their routes with 503.
type Deps struct {
	Signals    SignalLister
	Latest     LatestReader
	Processors ProcessorRegistry
	Connection ConnectionReporter
	Gatherer   prometheus.Gatherer
}

type Handler struct {
	tracer  trace.Tracer
	deps    Deps
	started time.Time
}

func New(tracer trace.Tracer, deps Deps) *Handler {
	return &Handler{
		tracer:  tracer,
		deps:    deps,
		started: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/connection", h.GetConnection)
	r.GET("/api/processors", h.GetProcessors)
	r.GET("/api/signals", h.GetSignals)
	r.GET("/api/signals/latest/:instrument_id/:candle_size", h.GetLatestSignal)

	gatherer := h.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " unavailable"})
}
