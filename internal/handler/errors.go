package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"zentrust-donations/internal/dto"
	"zentrust-donations/internal/service"

	"github.com/labstack/echo/v4"
)

func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation, service.KindProviderRejected, service.KindSignature:
		return http.StatusBadRequest
	case service.KindConfiguration:
		return http.StatusServiceUnavailable
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as
// {"error": ..., "details": ...}. Only service messages and echo HTTP errors
// reach the client; anything else becomes a generic 500.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error."}

		var he *echo.HTTPError
		if se, ok := service.AsError(err); ok {
			status = statusFor(se.Kind)
			body = dto.ErrorResponse{Error: se.Message}
			if len(se.Fields) > 0 {
				body.Details = se.Fields
			}
		} else if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				body = dto.ErrorResponse{Error: msg}
			} else {
				body = dto.ErrorResponse{Error: http.StatusText(he.Code)}
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("write error response", "error", err)
		}
	}
}
