package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

var _ repository.ExtractionResultRepository = (*resultRepo)(nil)

// resultRepo stores the merged result as JSONB document columns: the result
// is immutable once written and always read whole, so relational splitting
// of control rows buys nothing here.
type resultRepo struct {
	pool *pgxpool.Pool
}

func NewResultRepo(pool *pgxpool.Pool) *resultRepo {
	return &resultRepo{pool: pool}
}

func (r *resultRepo) Save(ctx context.Context, tx repository.Tx, res *model.ExtractionResult) error {
	controls, err := json.Marshal(res.Controls)
	if err != nil {
		return fmt.Errorf("marshal controls: %w", err)
	}
	exceptions, err := json.Marshal(res.Exceptions)
	if err != nil {
		return fmt.Errorf("marshal exceptions: %w", err)
	}
	cuecs, err := json.Marshal(res.CUECs)
	if err != nil {
		return fmt.Errorf("marshal cuecs: %w", err)
	}
	gaps, err := json.Marshal(res.Gaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}

	const q = `
INSERT INTO extraction_results (job_id, controls, exceptions, cuecs, gaps, partial, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = execSQL(ctx, r.pool, tx, q,
		res.JobID, controls, exceptions, cuecs, gaps, res.Partial, res.CreatedAt)
	return err
}

func (r *resultRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.ExtractionResult, error) {
	const q = `
SELECT job_id, controls, exceptions, cuecs, gaps, partial, created_at
FROM extraction_results
WHERE job_id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}

	var (
		res                               model.ExtractionResult
		controls, exceptions, cuecs, gaps []byte
	)
	if err := row.Scan(&res.JobID, &controls, &exceptions, &cuecs, &gaps, &res.Partial, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	for _, pair := range []struct {
		raw []byte
		dst interface{}
	}{
		{controls, &res.Controls},
		{exceptions, &res.Exceptions},
		{cuecs, &res.CUECs},
		{gaps, &res.Gaps},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &res, nil
}
