package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-agent/internal/backend"
	"github.com/stemsi/exstem-agent/internal/model"
	"github.com/stemsi/exstem-agent/internal/response"
	"github.com/stemsi/exstem-agent/internal/service"
)

// classify maps attempt errors to an HTTP status and API error code.
func classify(err error) (int, response.ErrCode) {
	var statusErr *backend.StatusError

	switch {
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, response.ErrAttemptNotStarted
	case errors.Is(err, service.ErrAttemptCompleted):
		return http.StatusConflict, response.ErrAttemptCompleted
	case errors.Is(err, service.ErrNotCurrentQuestion):
		return http.StatusConflict, response.ErrNotCurrentQuestion
	case errors.Is(err, service.ErrSubmissionInFlight):
		return http.StatusConflict, response.ErrOperationInFlight
	case errors.Is(err, model.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer
	case service.IsProtocolViolation(err):
		return http.StatusBadGateway, response.ErrProtocolViolation
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, response.ErrBackendRejected
	case errors.Is(err, backend.ErrTransport):
		return http.StatusServiceUnavailable, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failWithError(c *gin.Context, err error) {
	status, code := classify(err)
	response.Fail(c, status, code)
}
