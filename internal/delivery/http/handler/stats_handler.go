package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lab-device-hub/internal/ingest"
	"lab-device-hub/internal/monitor"
	"lab-device-hub/pkg/utils"
)

type StatsHandler struct {
	usage  *monitor.UsageMonitor
	buffer *ingest.Buffer
}

func NewStatsHandler(usage *monitor.UsageMonitor, buffer *ingest.Buffer) *StatsHandler {
	return &StatsHandler{usage: usage, buffer: buffer}
}

func (h *StatsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/devices/:id/stats", h.GetStatistics)
	router.GET("/devices/:id/data", h.DataFeed)
}

func (h *StatsHandler) GetStatistics(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	stats := h.usage.Snapshot(deviceID)
	utils.SuccessResponse(c, http.StatusOK, "Usage statistics retrieved", stats)
}

// DataFeed streams a device's data points ascending by timestamp,
// restartable from the `since` offset.
func (h *StatsHandler) DataFeed(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	since, limit, ok := parseFeedQuery(c)
	if !ok {
		return
	}

	points, err := h.buffer.Feed(c.Request.Context(), deviceID, since, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Data points retrieved successfully", points)
}
