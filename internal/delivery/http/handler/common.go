package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainDevice "lab-device-hub/internal/domain/device"
	domainReservation "lab-device-hub/internal/domain/reservation"
	domainSession "lab-device-hub/internal/domain/session"
	apperrors "lab-device-hub/pkg/errors"
	"lab-device-hub/pkg/utils"
)

// respondError maps domain errors onto HTTP statuses with the shared
// response envelope.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		utils.ErrorResponse(c, http.StatusBadRequest, appErr.Message)
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrUnknownDevice),
		errors.Is(err, domainDevice.ErrDeviceNotFound),
		errors.Is(err, domainSession.ErrSessionNotFound),
		errors.Is(err, apperrors.ErrSessionNotFound),
		errors.Is(err, domainReservation.ErrReservationNotFound),
		errors.Is(err, apperrors.ErrReservationNotFound),
		errors.Is(err, apperrors.ErrCommandNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, err.Error())

	case errors.Is(err, apperrors.ErrAlreadyInUse),
		errors.Is(err, apperrors.ErrDeviceInUse),
		errors.Is(err, apperrors.ErrOverlap),
		errors.Is(err, domainDevice.ErrDeviceAlreadyExists),
		errors.Is(err, domainDevice.ErrDeviceReferenced),
		errors.Is(err, apperrors.ErrDeviceNotOnline),
		errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrCommandNotActive),
		errors.Is(err, apperrors.ErrSessionClosed),
		errors.Is(err, domainSession.ErrSessionClosed):
		utils.ErrorResponse(c, http.StatusConflict, err.Error())

	case errors.Is(err, apperrors.ErrInvalidWindow),
		errors.Is(err, domainReservation.ErrInvalidWindow),
		errors.Is(err, domainDevice.ErrDeviceRetired),
		errors.Is(err, domainDevice.ErrInvalidTransport):
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())

	case errors.Is(err, apperrors.ErrQueueFull):
		utils.ErrorResponse(c, http.StatusTooManyRequests, err.Error())

	case errors.Is(err, apperrors.ErrDispatcherClosed):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, apperrors.ErrTimeout):
		utils.ErrorResponse(c, http.StatusGatewayTimeout, err.Error())

	case errors.Is(err, apperrors.ErrConnectionFailed),
		errors.Is(err, apperrors.ErrAdapterError),
		errors.Is(err, apperrors.ErrAdapterNotFound):
		utils.ErrorResponse(c, http.StatusBadGateway, err.Error())

	default:
		utils.ErrorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
