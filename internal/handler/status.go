package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Health reports liveness plus the feed state, so a dead feed is visible
// while still answering 200.
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.deps.Connection != nil {
		resp["feed"] = h.deps.Connection.Status().State
	}
	c.JSON(http.StatusOK, resp)
}

// GetConnection godoc
// @Summary      Get feed connection status
// @Tags         status
// @Produce      json
// @Success      200  {object}  connection.Status
// @Failure      503  {object}  map[string]string
// @Router       /api/connection [get]
func (h *Handler) GetConnection(c *gin.Context) {
	if h.deps.Connection == nil {
		unavailable(c, "connection manager")
		return
	}
	c.JSON(http.StatusOK, h.deps.Connection.Status())
}

// GetProcessors godoc
// @Summary      List active signal processors
// @Description  Returns the supervisor status and one entry per running (instrument, candle size) processor
// @Tags         status
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/processors [get]
func (h *Handler) GetProcessors(c *gin.Context) {
	if h.deps.Processors == nil {
		unavailable(c, "supervisor")
		return
	}

	_, span := h.tracer.Start(c.Request.Context(), "handler.get-processors")
	defer span.End()

	snapshot := h.deps.Processors.Snapshot()
	span.SetAttributes(attribute.Int("processors", len(snapshot)))

	c.JSON(http.StatusOK, gin.H{
		"supervisor": h.deps.Processors.Status(),
		"processors": snapshot,
	})
}
