package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainreservation "lab-device-hub/internal/domain/reservation"
	"lab-device-hub/internal/middleware"
	"lab-device-hub/internal/reservation"
	"lab-device-hub/pkg/utils"
)

type ReservationHandler struct {
	scheduler    *reservation.Scheduler
	reservations domainreservation.Repository
}

func NewReservationHandler(scheduler *reservation.Scheduler, reservations domainreservation.Repository) *ReservationHandler {
	return &ReservationHandler{scheduler: scheduler, reservations: reservations}
}

func (h *ReservationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/devices/:id/reservations", h.Request)
	router.GET("/devices/:id/reservations", h.ListByDevice)
	router.GET("/reservations/:id", h.Get)
	router.POST("/reservations/:id/cancel", h.Cancel)
}

func (h *ReservationHandler) RegisterStaffRoutes(router *gin.RouterGroup) {
	router.POST("/reservations/:id/approve", h.Approve)
}

type reservationRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
}

func (h *ReservationHandler) Request(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	requesterID := middleware.GetRequesterID(c)

	res, err := h.scheduler.Request(c.Request.Context(), deviceID, requesterID, req.StartAt, req.EndAt)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Reservation requested", res)
}

func (h *ReservationHandler) Get(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid reservation ID")
		return
	}

	res, err := h.reservations.GetByID(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reservation retrieved successfully", res)
}

func (h *ReservationHandler) Approve(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid reservation ID")
		return
	}

	res, err := h.scheduler.Approve(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reservation approved", res)
}

func (h *ReservationHandler) Cancel(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid reservation ID")
		return
	}

	res, err := h.scheduler.Cancel(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reservation cancelled", res)
}

func (h *ReservationHandler) ListByDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var statuses []domainreservation.Status
	if raw := c.Query("status"); raw != "" {
		statuses = append(statuses, domainreservation.Status(raw))
	}

	reservations, err := h.reservations.ListByDevice(c.Request.Context(), deviceID, statuses)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reservations retrieved successfully", reservations)
}
