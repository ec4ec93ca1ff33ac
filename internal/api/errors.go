package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scriptlab/internal/logging"
	"scriptlab/internal/services"
)

// statusFor maps an error marker to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidUpdate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSlotBusy), errors.Is(err, services.ErrStaleWrite):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrMalformedOutput), errors.Is(err, services.ErrAssetGeneration),
		errors.Is(err, services.ErrCritique), errors.Is(err, services.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) ErrorResponse {
	return ErrorResponse{
		Error:     err.Error(),
		Kind:      services.Kind(err),
		Retryable: services.Retryable(err),
	}
}

// fail aborts the request with the mapped status and an ErrorResponse.
func (s *Server) fail(c *gin.Context, err error) {
	s.failWith(c, err, errorBody(err))
}

func (s *Server) failWith(c *gin.Context, err error, body ErrorResponse) {
	status := statusFor(err)
	logger := logging.WithContext(c.Request.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
		)
	} else {
		logger.Debug("request rejected",
			logging.Error(err),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(message string, err error) error {
	return services.Wrap(services.ErrValidation, "api", "decode request", message, err)
}
