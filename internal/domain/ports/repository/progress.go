package repository

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
)

type ProgressEventRepository interface {
	// Append persists one event. Events are append-only; Seq is assigned by
	// the caller and strictly increases per job.
	Append(ctx context.Context, tx Tx, ev *model.ProgressEvent) error

	// ListByJobID returns the full event history in Seq order.
	ListByJobID(ctx context.Context, tx Tx, jobID string) ([]model.ProgressEvent, error)
}
