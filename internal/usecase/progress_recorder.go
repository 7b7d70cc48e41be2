package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/adapter"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

// ProgressRecorder appends progress events and fans them out. Persistence
// and publication are deliberately split: Append runs inside the same
// transaction as the job state change, Publish runs after commit and its
// failure is only logged. Progress is observability, not control flow.
type ProgressRecorder struct {
	events repository.ProgressEventRepository
	pub    adapter.ProgressPublisher
	log    *zerolog.Logger
}

func NewProgressRecorder(events repository.ProgressEventRepository, pub adapter.ProgressPublisher, log *zerolog.Logger) *ProgressRecorder {
	return &ProgressRecorder{events: events, pub: pub, log: log}
}

// NewEvent builds the event for a job's current state. Seq is assigned by
// the caller and strictly increases per job.
func (r *ProgressRecorder) NewEvent(job *model.ExtractionJob, seq int, detail string) model.ProgressEvent {
	return model.ProgressEvent{
		ID:        ulid.Make().String(),
		JobID:     job.ID,
		Seq:       seq,
		State:     job.State,
		Cause:     job.Cause,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
}

func (r *ProgressRecorder) Append(ctx context.Context, tx repository.Tx, ev model.ProgressEvent) error {
	return r.events.Append(ctx, tx, &ev)
}

// NextSeq returns the sequence number the next event for a job should use.
func (r *ProgressRecorder) NextSeq(ctx context.Context, tx repository.Tx, jobID string) (int, error) {
	history, err := r.events.ListByJobID(ctx, tx, jobID)
	if err != nil {
		return 0, err
	}
	return len(history) + 1, nil
}

func (r *ProgressRecorder) Publish(ctx context.Context, ev model.ProgressEvent) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("job_id", ev.JobID).Int("seq", ev.Seq).Msg("progress publish failed")
	}
}
