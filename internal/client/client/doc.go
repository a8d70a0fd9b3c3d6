// Package client is the HTTP client of the filevault API used by the CLI.
//
// Every call takes a context. Non-2xx responses are decoded into *APIError,
// whose Unwrap returns the matching sentinel from internal/common, so callers
// can tell "storage full" (common.ErrQuotaExceeded) from "access denied"
// (common.ErrForbidden) with errors.Is. Transport failures wrap
// ErrUnavailable.
//
// Downloads are streamed to an io.Writer. A body that ends early (the server
// aborts the stream after a mid-transfer failure) is reported as
// common.ErrStream.
package client
