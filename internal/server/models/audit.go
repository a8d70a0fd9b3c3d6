package models

import "time"

// Audit actions.
const (
	AuditUpload    = "file.upload"
	AuditDelete    = "file.delete"
	AuditTombstone = "file.tombstone"
	AuditPurge     = "file.purge"
	AuditDescribe  = "file.describe"
)

// AuditEvent describes one state-changing file operation.
type AuditEvent struct {
	ActorID   string
	Action    string
	FileID    string
	ProjectID string
	Size      int64
	At        time.Time
}
