package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ytget/twitvid/errs"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidURL),
		errors.Is(err, errs.ErrUnsupportedType),
		errors.Is(err, errs.ErrNoFile),
		errors.Is(err, errs.ErrQualityUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrVideoNotFound),
		errors.Is(err, errs.ErrNoLinks),
		errors.Is(err, errs.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrShortCodeConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrProviderFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal failures from clients.
func errorMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": errorMessage(err, status)})
}
