package db

import (
	"context"
	"time"

	"guestflow/internal/types"
)

// SchedulerRunRepository provides the persisted once-per-day guard for the
// daily schedulers. The scheduler_runs table has a primary key on
// (scheduler, organization_id, run_date) so exactly one instance wins each
// local calendar day, even across process restarts and multiple replicas.
type SchedulerRunRepository struct {
	db DBTX
}

// NewSchedulerRunRepository creates a new SchedulerRunRepository backed by
// the given database connection (pool or transaction).
func NewSchedulerRunRepository(db DBTX) *SchedulerRunRepository {
	return &SchedulerRunRepository{db: db}
}

// TryMarkRun records that the scheduler handled the given organization on the
// given local date. Returns true when this caller won the day, false when a
// row for the day already exists.
//
// The insert uses ON CONFLICT DO NOTHING: RowsAffected is 1 for the winner
// and 0 for everyone else, with no race window.
func (r *SchedulerRunRepository) TryMarkRun(ctx context.Context, scheduler types.SchedulerName, orgID int64, localDate string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO scheduler_runs (scheduler, organization_id, run_date, ran_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (scheduler, organization_id, run_date) DO NOTHING`,
		string(scheduler),
		orgID,
		localDate,
		time.Now().UTC(),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark scheduler run", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteBefore removes run markers older than the cutoff date (inclusive
// comparison on the stored local date string, which sorts lexicographically
// in YYYY-MM-DD form). Returns the number of deleted rows.
func (r *SchedulerRunRepository) DeleteBefore(ctx context.Context, cutoffDate string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM scheduler_runs WHERE run_date < $1`, cutoffDate)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete old scheduler runs", err)
	}
	return tag.RowsAffected(), nil
}
