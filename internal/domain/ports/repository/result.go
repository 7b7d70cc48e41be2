package repository

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
)

type ExtractionResultRepository interface {
	// Save persists the merged result exactly once per job.
	Save(ctx context.Context, tx Tx, res *model.ExtractionResult) error
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.ExtractionResult, error)
}

type ControlMappingRepository interface {
	// SaveAll replaces the mapping rows for a job in one transaction;
	// mappings are derived data so a full rewrite is safe.
	SaveAll(ctx context.Context, tx Tx, jobID string, rows []model.ControlMapping) error
	ListByJobID(ctx context.Context, tx Tx, jobID string) ([]model.ControlMapping, error)
}
