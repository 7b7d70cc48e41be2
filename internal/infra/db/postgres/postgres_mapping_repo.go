package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

var _ repository.ControlMappingRepository = (*mappingRepo)(nil)

type mappingRepo struct {
	pool *pgxpool.Pool
}

func NewMappingRepo(pool *pgxpool.Pool) *mappingRepo {
	return &mappingRepo{pool: pool}
}

// SaveAll replaces a job's mapping rows wholesale. Mappings are derived
// data, recomputable from the result and the regulation table, so a
// delete-and-insert inside the caller's transaction is safe.
func (r *mappingRepo) SaveAll(ctx context.Context, tx repository.Tx, jobID string, rows []model.ControlMapping) error {
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM control_mappings WHERE job_id = $1;`, jobID); err != nil {
		return err
	}

	const q = `
INSERT INTO control_mappings (job_id, control_id, article_id, coverage, matched_terms, table_version)
VALUES ($1, $2, $3, $4, $5, $6);`

	for _, m := range rows {
		_, err := execSQL(ctx, r.pool, tx, q,
			jobID, m.ControlID, m.ArticleID, string(m.Coverage), m.MatchedTerms, m.TableVersion)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *mappingRepo) ListByJobID(ctx context.Context, tx repository.Tx, jobID string) ([]model.ControlMapping, error) {
	const q = `
SELECT job_id, control_id, article_id, coverage, matched_terms, table_version
FROM control_mappings
WHERE job_id = $1
ORDER BY control_id, article_id;`

	rows, err := pickRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ControlMapping
	for rows.Next() {
		var (
			m        model.ControlMapping
			coverage string
		)
		if err := rows.Scan(&m.JobID, &m.ControlID, &m.ArticleID, &coverage, &m.MatchedTerms, &m.TableVersion); err != nil {
			return nil, err
		}
		m.Coverage = model.Coverage(coverage)
		out = append(out, m)
	}
	return out, rows.Err()
}
