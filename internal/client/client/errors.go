package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
)

var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "quota_exceeded":
		return common.ErrQuotaExceeded
	case "forbidden":
		return common.ErrForbidden
	case "not_found":
		return common.ErrNotFound
	case "unauthorized":
		return common.ErrUnauthorized
	case "validation":
		return common.ErrValidation
	case "stream":
		return common.ErrStream
	}
	return nil
}
