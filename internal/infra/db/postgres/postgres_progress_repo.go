package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

var _ repository.ProgressEventRepository = (*progressRepo)(nil)

type progressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *progressRepo {
	return &progressRepo{pool: pool}
}

func (r *progressRepo) Append(ctx context.Context, tx repository.Tx, ev *model.ProgressEvent) error {
	const q = `
INSERT INTO progress_events (id, job_id, seq, state, cause, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		ev.ID, ev.JobID, ev.Seq, string(ev.State), string(ev.Cause), ev.Detail, ev.CreatedAt)
	return err
}

func (r *progressRepo) ListByJobID(ctx context.Context, tx repository.Tx, jobID string) ([]model.ProgressEvent, error) {
	const q = `
SELECT id, job_id, seq, state, cause, detail, created_at
FROM progress_events
WHERE job_id = $1
ORDER BY seq;`

	rows, err := pickRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProgressEvent
	for rows.Next() {
		var (
			ev           model.ProgressEvent
			state, cause string
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Seq, &state, &cause, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.State = model.JobState(state)
		ev.Cause = model.FailureCause(cause)
		out = append(out, ev)
	}
	return out, rows.Err()
}
