package httpapi

import (
	"errors"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/gofiber/fiber/v2"
)

// Error codes returned in the JSON body next to the message.
const (
	codeValidation    = "validation"
	codeUnauthorized  = "unauthorized"
	codeForbidden     = "forbidden"
	codeNotFound      = "not_found"
	codeQuotaExceeded = "quota_exceeded"
	codeStream        = "stream"
	codeInternal      = "internal"
	codeHTTP          = "http"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func classify(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, codeHTTP
	case errors.Is(err, common.ErrQuotaExceeded):
		return fiber.StatusInsufficientStorage, codeQuotaExceeded
	case errors.Is(err, common.ErrValidation):
		return fiber.StatusBadRequest, codeValidation
	case errors.Is(err, common.ErrUnauthorized):
		return fiber.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return fiber.StatusForbidden, codeForbidden
	case errors.Is(err, common.ErrNotFound):
		return fiber.StatusNotFound, codeNotFound
	case errors.Is(err, common.ErrStream):
		return fiber.StatusInternalServerError, codeStream
	default:
		return fiber.StatusInternalServerError, codeInternal
	}
}

// errorHandler turns service sentinels into statuses. Server-side failures
// are logged and answered with a generic message.
func errorHandler(logger logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code := classify(err)

		msg := err.Error()
		if status >= fiber.StatusInternalServerError && code != codeHTTP {
			logger.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
			msg = "internal error"
			if code == codeStream {
				msg = "storage unavailable, try again"
			}
		}

		return c.Status(status).JSON(errorResponse{Error: msg, Code: code})
	}
}
