package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/connection"
	"lab-device-hub/internal/usecase/device"
	"lab-device-hub/pkg/utils"
)

type DeviceHandler struct {
	service *device.Service
	conns   *connection.Manager
}

func NewDeviceHandler(service *device.Service, conns *connection.Manager) *DeviceHandler {
	return &DeviceHandler{service: service, conns: conns}
}

func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.GET("/:id", h.GetDevice)
		devices.GET("/hardware/:uid", h.GetDeviceByHardwareUID)
		devices.GET("/:id/connection", h.GetConnectionState)
	}
}

func (h *DeviceHandler) RegisterStaffRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.POST("", h.RegisterDevice)
		devices.PUT("/:id", h.UpdateDevice)
		devices.DELETE("/:id", h.RetireDevice)
		devices.POST("/:id/connect", h.Connect)
		devices.POST("/:id/disconnect", h.Disconnect)
		devices.POST("/:id/retry", h.Retry)
		devices.POST("/:id/maintenance", h.Hold)
		devices.POST("/:id/release", h.Release)
	}
}

func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req device.RegisterDeviceRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.service.RegisterDevice(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Device registered successfully", created)
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	found, err := h.service.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", found)
}

func (h *DeviceHandler) GetDeviceByHardwareUID(c *gin.Context) {
	hardwareUID := c.Param("uid")
	if hardwareUID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Hardware UID required")
		return
	}

	found, err := h.service.GetDeviceByHardwareUID(c.Request.Context(), hardwareUID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", found)
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	var filter device.DeviceFilterRequest

	if err := c.ShouldBindQuery(&filter); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	devices, err := h.service.ListDevices(c.Request.Context(), &filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", devices)
}

func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var req device.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.UpdateDevice(c.Request.Context(), deviceID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device updated successfully", updated)
}

func (h *DeviceHandler) RetireDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	if err := h.service.RetireDevice(c.Request.Context(), deviceID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retired successfully", nil)
}

type connectRequest struct {
	Address        string            `json:"address"`
	Credentials    map[string]string `json:"credentials"`
	TimeoutSeconds int               `json:"timeout_seconds" validate:"omitempty,min=1,max=300"`
	Parameters     map[string]any    `json:"parameters"`
}

func (h *DeviceHandler) Connect(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var req connectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	// Parameters not supplied on the request fall back to the stored
	// device config.
	params := req.Parameters
	if params == nil {
		if found, err := h.service.GetDevice(c.Request.Context(), deviceID); err == nil {
			params = found.Config
		}
	}

	connCfg := adapter.ConnConfig{
		Address:     req.Address,
		Credentials: req.Credentials,
		Timeout:     time.Duration(req.TimeoutSeconds) * time.Second,
		Parameters:  params,
	}

	if err := h.conns.Connect(c.Request.Context(), deviceID, connCfg); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device connected", gin.H{
		"device_id": deviceID,
		"state":     h.conns.State(deviceID),
	})
}

func (h *DeviceHandler) Disconnect(c *gin.Context) {
	h.transition(c, h.conns.Disconnect, "Device disconnected")
}

func (h *DeviceHandler) Retry(c *gin.Context) {
	h.transition(c, h.conns.Retry, "Reconnect attempted")
}

func (h *DeviceHandler) Hold(c *gin.Context) {
	h.transition(c, h.conns.Hold, "Device placed in maintenance")
}

func (h *DeviceHandler) Release(c *gin.Context) {
	h.transition(c, h.conns.Release, "Device released from maintenance")
}

func (h *DeviceHandler) GetConnectionState(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Connection state retrieved", gin.H{
		"device_id": deviceID,
		"state":     h.conns.State(deviceID),
	})
}

func (h *DeviceHandler) transition(c *gin.Context, op func(ctx context.Context, deviceID uuid.UUID) error, message string) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	if err := op(c.Request.Context(), deviceID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, message, gin.H{
		"device_id": deviceID,
		"state":     h.conns.State(deviceID),
	})
}
