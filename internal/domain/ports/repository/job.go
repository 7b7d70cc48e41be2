package repository

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
)

type ExtractionJobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.ExtractionJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ExtractionJob, error)

	// FindActiveByFingerprint returns the non-terminal job for a document
	// fingerprint, or domain.ErrNotFound. Backs the one-active-job invariant.
	FindActiveByFingerprint(ctx context.Context, tx Tx, fingerprint string) (*model.ExtractionJob, error)

	// FetchAndMarkSelecting atomically claims the oldest queued job and moves
	// it to selecting_strategy so no other worker picks it up.
	FetchAndMarkSelecting(ctx context.Context) (*model.ExtractionJob, error)

	// ListNonTerminal returns every job stuck in a non-terminal state, used
	// by crash recovery at startup to re-derive the next action.
	ListNonTerminal(ctx context.Context, tx Tx) ([]*model.ExtractionJob, error)
}
