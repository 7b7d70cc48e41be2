package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

func (r *documentRepo) Save(ctx context.Context, tx repository.Tx, doc *model.DocumentRef) error {
	const q = `
INSERT INTO documents (id, tenant_id, title, pages, size_bytes, fingerprint, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING;`

	_, err := execSQL(ctx, r.pool, tx, q,
		doc.ID, doc.TenantID, doc.Title, doc.Pages, doc.SizeBytes, doc.Fingerprint, doc.UploadedAt)
	return err
}

func (r *documentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.DocumentRef, error) {
	const q = `
SELECT id, tenant_id, title, pages, size_bytes, fingerprint, uploaded_at
FROM documents
WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var d model.DocumentRef
	if err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Pages, &d.SizeBytes, &d.Fingerprint, &d.UploadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &d, nil
}
