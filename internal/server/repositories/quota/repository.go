// Package quota keeps the per-owner storage ledger.
//
// Every mutation is a single statement, so concurrent uploads by the same
// owner cannot both pass the ceiling check and overshoot it.
package quota

import "context"

type Repository interface {
	// Get returns the owner's used bytes; unknown owners have used nothing.
	Get(ctx context.Context, ownerID string) (int64, error)
	// Reserve adds n bytes if the result stays within ceiling and returns the
	// new total, or common.ErrQuotaExceeded leaving the ledger untouched.
	Reserve(ctx context.Context, ownerID string, n int64, ceiling int64) (int64, error)
	// Release subtracts n bytes, flooring at zero.
	Release(ctx context.Context, ownerID string, n int64) error
	// Reset sets the owner's usage to zero.
	Reset(ctx context.Context, ownerID string) error
	// Set overwrites the owner's usage. Used by reconciliation only.
	Set(ctx context.Context, ownerID string, n int64) error
	// All returns every ledger row.
	All(ctx context.Context) (map[string]int64, error)
}
