package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/feedback"
	"github.com/fyrsmithlabs/coachd/internal/insights"
	"github.com/fyrsmithlabs/coachd/internal/logging"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case coaching.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, coaching.ErrProfileNotFound),
		errors.Is(err, insights.ErrInsightNotFound),
		errors.Is(err, feedback.ErrABTestNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coaching.ErrRecordExists),
		errors.Is(err, insights.ErrFeedbackExists),
		errors.Is(err, feedback.ErrFeedbackExists),
		errors.Is(err, feedback.ErrABTestExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler writes every error as an ErrorResponse. Internal errors are
// logged and their text withheld.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	log := logging.Wrap(logger)
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := statusFor(err)
		body := ErrorResponse{Error: http.StatusText(code)}

		var ve *coaching.ValidationError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ve):
			body.Error = ve.Error()
			body.Field = ve.Field
			body.Reason = ve.Reason
		case errors.As(err, &he):
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			}
		case code == http.StatusInternalServerError:
			log.Error(c.Request().Context(), "request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
		default:
			body.Error = err.Error()
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			log.Warn(c.Request().Context(), "failed to write error response", zap.Error(werr))
		}
	}
}
