package usecase

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/adapter"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

// Compile-time check
var _ ProgressUseCase = (*progressUC)(nil)

// JobStatus is the exposed progress view: current state plus the full
// ordered event history, so a late subscriber misses nothing.
type JobStatus struct {
	Job    *model.ExtractionJob
	Events []model.ProgressEvent
}

type ProgressUseCase interface {
	Status(ctx context.Context, jobID string) (*JobStatus, error)
	Result(ctx context.Context, jobID string) (*model.ExtractionResult, error)
	Mappings(ctx context.Context, jobID string) ([]model.ControlMapping, error)

	// Subscribe returns a live stream of future events for the job. Callers
	// should fetch Status first; the stream carries only new events.
	Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error)
}

type progressUC struct {
	jobs     repository.ExtractionJobRepository
	events   repository.ProgressEventRepository
	results  repository.ExtractionResultRepository
	mappings repository.ControlMappingRepository
	feed     adapter.ProgressFeed
}

func NewProgressUseCase(
	jobs repository.ExtractionJobRepository,
	events repository.ProgressEventRepository,
	results repository.ExtractionResultRepository,
	mappings repository.ControlMappingRepository,
	feed adapter.ProgressFeed,
) *progressUC {
	return &progressUC{jobs: jobs, events: events, results: results, mappings: mappings, feed: feed}
}

func (u *progressUC) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	history, err := u.events.ListByJobID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	return &JobStatus{Job: job, Events: history}, nil
}

func (u *progressUC) Result(ctx context.Context, jobID string) (*model.ExtractionResult, error) {
	return u.results.FindByJobID(ctx, nil, jobID)
}

func (u *progressUC) Mappings(ctx context.Context, jobID string) ([]model.ControlMapping, error) {
	return u.mappings.ListByJobID(ctx, nil, jobID)
}

func (u *progressUC) Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error) {
	if _, err := u.jobs.FindByID(ctx, nil, jobID); err != nil {
		return nil, nil, err
	}
	return u.feed.Subscribe(ctx, jobID)
}
