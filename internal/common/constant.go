// Package common contains shared constants, helpers and sentinel errors used
// across filevault components.
package common

// AccessTokenHeaderName carries the bearer access token on API requests.
const AccessTokenHeaderName = "Authorization"

// RequestIDHeaderName is propagated from the edge proxy when present.
const RequestIDHeaderName = "X-Request-ID"

// FileNameHeaderName carries the original filename of an uploaded body.
const FileNameHeaderName = "X-File-Name"

// DefaultMimeType is stored when the uploader does not declare one.
const DefaultMimeType = "application/octet-stream"
