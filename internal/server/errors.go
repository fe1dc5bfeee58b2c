package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ppiankov/trendbrief/internal/model"
)

// StatusClientClosedRequest is reported when the caller went away before the briefing finished
const StatusClientClosedRequest = 499

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		cfgErr *model.ConfigurationError
		aggErr *model.AggregationFailed
		genErr *model.GenerationError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &aggErr):
		return http.StatusBadGateway
	case errors.As(err, &genErr):
		if genErr.Timeout {
			return http.StatusGatewayTimeout
		}
		if genErr.Backend == "none" {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
