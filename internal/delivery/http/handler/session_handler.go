package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/ingest"
	"lab-device-hub/internal/middleware"
	"lab-device-hub/internal/session"
	"lab-device-hub/pkg/utils"
)

type SessionHandler struct {
	manager  *session.Manager
	sessions domainsession.Repository
	buffer   *ingest.Buffer
}

func NewSessionHandler(manager *session.Manager, sessions domainsession.Repository, buffer *ingest.Buffer) *SessionHandler {
	return &SessionHandler{manager: manager, sessions: sessions, buffer: buffer}
}

func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/devices/:id/sessions", h.Open)
	router.GET("/devices/:id/sessions", h.ListByDevice)
	router.GET("/sessions/:id", h.Get)
	router.POST("/sessions/:id/close", h.Close)
	router.GET("/sessions/:id/data", h.DataFeed)
}

func (h *SessionHandler) Open(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	requesterID := middleware.GetRequesterID(c)

	s, err := h.manager.Open(c.Request.Context(), deviceID, requesterID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Session opened", s)
}

func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID")
		return
	}

	s, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", s)
}

func (h *SessionHandler) Close(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID")
		return
	}

	s, err := h.manager.Close(c.Request.Context(), sessionID, session.ReasonUserRequest)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session closed", s)
}

func (h *SessionHandler) ListByDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	sessions, err := h.sessions.ListByDevice(c.Request.Context(), deviceID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved successfully", sessions)
}

// DataFeed streams the data points captured during a session, ascending
// by timestamp and restartable from the `since` offset.
func (h *SessionHandler) DataFeed(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID")
		return
	}

	since, limit, ok := parseFeedQuery(c)
	if !ok {
		return
	}

	points, err := h.buffer.SessionFeed(c.Request.Context(), sessionID, since, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Data points retrieved successfully", points)
}

func parseFeedQuery(c *gin.Context) (time.Time, int, bool) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid 'since' timestamp, expected RFC3339")
			return time.Time{}, 0, false
		}
		since = parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	return since, limit, true
}
