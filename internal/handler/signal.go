package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vokmon/trade-signal/internal/domain"
	"github.com/vokmon/trade-signal/internal/service"
)

const maxSignalsLimit = 500

// GetSignals godoc
// @Summary      List published signals
// @Description  Returns stored signals newest first, optionally filtered by channel and instrument
// @Tags         signals
// @Produce      json
// @Param        channel        query  string  false  "Channel (oneMinute, oneMinute_otc, fiveMinutes, fiveMinutes_vip, fiveMinutes_otc)"
// @Param        instrument_id  query  int     false  "Instrument id"
// @Param        limit          query  int     false  "Number of signals (default 50, max 500)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals [get]
func (h *Handler) GetSignals(c *gin.Context) {
	if h.deps.Signals == nil {
		unavailable(c, "signal service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-signals")
	defer span.End()

	filter := domain.SignalFilter{
		Channel: strings.TrimSpace(c.Query("channel")),
	}
	if filter.Channel != "" {
		span.SetAttributes(attribute.String("channel", filter.Channel))
	}

	if raw := strings.TrimSpace(c.Query("instrument_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "instrument_id must be a positive integer"})
			return
		}
		filter.InstrumentID = id
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSignalsLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		filter.Limit = n
	}

	signals, err := h.deps.Signals.ListSignals(ctx, filter)
	switch {
	case errors.Is(err, service.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrStorageUnavailable):
		unavailable(c, "signal storage")
		return
	case err != nil:
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// GetLatestSignal godoc
// @Summary      Get the latest signal for a processor
// @Description  Returns the most recent cached signal for an instrument and candle size
// @Tags         signals
// @Produce      json
// @Param        instrument_id  path  int  true  "Instrument id"
// @Param        candle_size    path  int  true  "Candle size in seconds (60 or 300)"
// @Success      200  {object}  domain.TradeSignal
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals/latest/{instrument_id}/{candle_size} [get]
func (h *Handler) GetLatestSignal(c *gin.Context) {
	if h.deps.Latest == nil {
		unavailable(c, "latest signal cache")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-signal")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("instrument_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument_id must be a positive integer"})
		return
	}
	size, err := strconv.Atoi(c.Param("candle_size"))
	if err != nil || size <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "candle_size must be a positive number of seconds"})
		return
	}

	sig, err := h.deps.Latest.Latest(ctx, domain.ProcessorKey{InstrumentID: id, CandleSize: size})
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signal recorded"})
		return
	}
	c.JSON(http.StatusOK, sig)
}
