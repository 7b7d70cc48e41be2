package repository

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
)

// DocumentRepository stores the immutable DocumentRef snapshot handed over
// at submission. The upstream upload service owns the artifact itself; the
// engine only needs the metadata to survive a crash, so recovery can
// re-derive the extraction plan purely from persisted state.
type DocumentRepository interface {
	Save(ctx context.Context, tx Tx, doc *model.DocumentRef) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.DocumentRef, error)
}
