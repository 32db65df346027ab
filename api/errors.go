package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/session"
)

// statusFor maps controller and engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, waypoint.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, waypoint.ErrThreadAlreadyExists),
		errors.Is(err, waypoint.ErrNotWaitingForApproval),
		errors.Is(err, waypoint.ErrStaleCheckpoint):
		return http.StatusConflict
	case errors.Is(err, waypoint.ErrPoolStopped),
		errors.Is(err, waypoint.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
