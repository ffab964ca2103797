package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lab-device-hub/internal/dispatch"
	domaincommand "lab-device-hub/internal/domain/command"
	"lab-device-hub/internal/middleware"
	"lab-device-hub/pkg/utils"
)

type CommandHandler struct {
	dispatcher *dispatch.Dispatcher
	commands   domaincommand.Repository
}

func NewCommandHandler(dispatcher *dispatch.Dispatcher, commands domaincommand.Repository) *CommandHandler {
	return &CommandHandler{dispatcher: dispatcher, commands: commands}
}

func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/devices/:id/commands", h.Submit)
	router.GET("/devices/:id/commands", h.ListByDevice)
	router.GET("/commands/:id", h.Get)
	router.POST("/commands/:id/cancel", h.Cancel)
}

type submitCommandRequest struct {
	Operation  string         `json:"operation" validate:"required,min=1,max=255"`
	Parameters map[string]any `json:"parameters"`
}

func (h *CommandHandler) Submit(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	var req submitCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	requesterID := middleware.GetRequesterID(c)

	cmd, err := h.dispatcher.Submit(c.Request.Context(), deviceID, requesterID, req.Operation, req.Parameters)
	if err != nil {
		// A rejected command still carries the terminal record.
		if cmd != nil {
			c.JSON(http.StatusConflict, utils.APIResponse{
				Success: false,
				Error:   err.Error(),
				Data:    cmd,
			})
			return
		}
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Command accepted", cmd)
}

func (h *CommandHandler) Get(c *gin.Context) {
	commandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command ID")
		return
	}

	cmd, err := h.dispatcher.Get(c.Request.Context(), commandID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command retrieved successfully", cmd)
}

func (h *CommandHandler) Cancel(c *gin.Context) {
	commandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command ID")
		return
	}

	cmd, err := h.dispatcher.Cancel(c.Request.Context(), commandID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command cancelled", cmd)
}

func (h *CommandHandler) ListByDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device ID")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	commands, err := h.commands.ListByDevice(c.Request.Context(), deviceID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Commands retrieved successfully", commands)
}
