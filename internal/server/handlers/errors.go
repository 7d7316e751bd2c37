package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/device/camera"
	"github.com/mamadbah2/balsam/internal/domain/models"
	"github.com/mamadbah2/balsam/internal/service/scanning"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var valErr *models.ValidationError
	var gwErr *models.GatewayError

	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDrugNotFound), errors.Is(err, scanning.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDeviceBusy),
		errors.Is(err, models.ErrSessionFinished),
		errors.Is(err, scanning.ErrWrongKind),
		errors.Is(err, camera.ErrTorchUnsupported):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoQrInFrame):
		return http.StatusUnprocessableEntity
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrDeviceUnavailable), errors.Is(err, models.ErrPermissionDenied):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Warn(msg, zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": models.UserMessage(err)})
}
