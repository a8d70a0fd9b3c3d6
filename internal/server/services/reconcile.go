package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/robfig/cron/v3"
)

// Drift is one owner whose ledger disagrees with their records.
type Drift struct {
	OwnerID  string
	Ledger   int64
	Recorded int64
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Checked int
	Drifts  []Drift
	Fixed   bool
}

// QuotaReconciler compares every owner's ledger value with the sum of their
// record sizes. Tombstoned records count: a soft delete keeps the bytes.
type QuotaReconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	fix         bool
	logger      logging.Logger
}

func NewQuotaReconciler(db *sql.DB, m repomanager.RepositoryManager, fix bool, logger logging.Logger) *QuotaReconciler {
	return &QuotaReconciler{db: db, repomanager: m, fix: fix, logger: logger.With("module", "reconciler")}
}

// Run reads both sides in one serializable transaction, so a concurrent
// upload either lands fully before the snapshot or makes the fix fail.
func (r *QuotaReconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: !r.fix}
	err := dbx.WithTx(ctx, r.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		ledger, err := r.repomanager.Quota(tx).All(ctx)
		if err != nil {
			return err
		}
		recorded, err := r.repomanager.Files(tx).SizeByOwner(ctx)
		if err != nil {
			return err
		}

		owners := make(map[string]struct{}, len(ledger)+len(recorded))
		for o := range ledger {
			owners[o] = struct{}{}
		}
		for o := range recorded {
			owners[o] = struct{}{}
		}
		ids := make([]string, 0, len(owners))
		for o := range owners {
			ids = append(ids, o)
		}
		sort.Strings(ids)

		report.Checked = len(ids)
		for _, o := range ids {
			if ledger[o] != recorded[o] {
				report.Drifts = append(report.Drifts, Drift{OwnerID: o, Ledger: ledger[o], Recorded: recorded[o]})
			}
		}

		if !r.fix {
			return nil
		}
		for _, d := range report.Drifts {
			if err := r.repomanager.Quota(tx).Set(ctx, d.OwnerID, d.Recorded); err != nil {
				return err
			}
		}
		report.Fixed = len(report.Drifts) > 0
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quota reconciliation: %w", err)
	}

	for _, d := range report.Drifts {
		r.logger.Warn(ctx, "quota drift", "owner_id", d.OwnerID, "ledger", d.Ledger, "recorded", d.Recorded, "fixed", r.fix)
	}
	r.logger.Info(ctx, "quota reconciliation finished", "checked", report.Checked, "drifted", len(report.Drifts))
	return report, nil
}

// Schedule registers Run on c under spec. An empty spec schedules nothing.
func (r *QuotaReconciler) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	if spec == "" {
		return nil
	}
	_, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error(ctx, "scheduled reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("bad reconcile schedule %q: %w", spec, err)
	}
	return nil
}
