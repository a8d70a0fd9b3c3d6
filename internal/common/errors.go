package common

import "errors"

// Callers should match these with errors.Is; every layer wraps them with %w.
var (
	// ErrNotFound: file, project or blob missing.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: actor is neither a project member, the owner, nor an admin.
	ErrForbidden = errors.New("forbidden")

	// ErrQuotaExceeded: the owner's storage ceiling would be crossed.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUnauthorized: missing, malformed or expired token, or wrong password.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStream: transform or I/O failure while bytes are flowing.
	ErrStream = errors.New("stream error")

	// ErrConfiguration: missing or insecure key material at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation: malformed caller input.
	ErrValidation = errors.New("validation error")

	ErrInternal = errors.New("internal error")
)
