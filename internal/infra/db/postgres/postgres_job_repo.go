package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

var _ repository.ExtractionJobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, document_id, tenant_id, fingerprint, state, strategy,
partial, attempts, tokens_spent, calls_made, cause, last_error, created_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ExtractionJob) error {
	job.UpdatedAt = time.Now()

	strategyJSON, err := json.Marshal(job.Strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}

	const q = `
INSERT INTO extraction_jobs (id, document_id, tenant_id, fingerprint, state, strategy,
  partial, attempts, tokens_spent, calls_made, cause, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  strategy = EXCLUDED.strategy,
  partial = EXCLUDED.partial,
  attempts = EXCLUDED.attempts,
  tokens_spent = EXCLUDED.tokens_spent,
  calls_made = EXCLUDED.calls_made,
  cause = EXCLUDED.cause,
  last_error = EXCLUDED.last_error,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.DocumentID, job.TenantID, job.Fingerprint, string(job.State), strategyJSON,
		job.Partial, job.Attempts, job.TokensSpent, job.CallsMade, string(job.Cause), job.LastError,
		job.CreatedAt, job.UpdatedAt)
	return err
}

func scanJob(row pgx.Row) (*model.ExtractionJob, error) {
	var (
		j            model.ExtractionJob
		state, cause string
		strategyJSON []byte
	)
	err := row.Scan(&j.ID, &j.DocumentID, &j.TenantID, &j.Fingerprint, &state, &strategyJSON,
		&j.Partial, &j.Attempts, &j.TokensSpent, &j.CallsMade, &cause, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.State = model.JobState(state)
	j.Cause = model.FailureCause(cause)
	if len(strategyJSON) > 0 {
		if err := json.Unmarshal(strategyJSON, &j.Strategy); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &j, nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExtractionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM extraction_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) FindActiveByFingerprint(ctx context.Context, tx repository.Tx, fp string) (*model.ExtractionJob, error) {
	q := `SELECT ` + jobColumns + `
FROM extraction_jobs
WHERE fingerprint = $1 AND state NOT IN ('completed', 'failed')
ORDER BY created_at
LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, fp)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// FetchAndMarkSelecting atomically claims the oldest queued job so no other
// worker picks it up, using FOR UPDATE SKIP LOCKED under the shared
// transaction manager.
func (r *jobRepo) FetchAndMarkSelecting(ctx context.Context) (*model.ExtractionJob, error) {
	var job *model.ExtractionJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		q := `SELECT ` + jobColumns + `
FROM extraction_jobs
WHERE state = 'queued'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, q)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		if !fetched.Transition(model.JobStateSelectingStrategy) {
			return domain.ErrInvalidTransition
		}
		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) ListNonTerminal(ctx context.Context, tx repository.Tx) ([]*model.ExtractionJob, error) {
	q := `SELECT ` + jobColumns + `
FROM extraction_jobs
WHERE state NOT IN ('completed', 'failed')
ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ExtractionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
