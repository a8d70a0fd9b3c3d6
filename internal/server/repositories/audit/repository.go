// Package audit appends file audit events.
package audit

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	Record(ctx context.Context, ev models.AuditEvent) error
}
