package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"service-tourbooking/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrRaceLost):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotScheduled):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the customer-facing reason only.
func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"success": false, "reason": service.Reason(err)})
}

func writeBadRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"reason":  service.Reason(service.ErrInvalidRequest),
		"detail":  detail,
	})
}
