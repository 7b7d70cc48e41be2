package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

// Compile-time check
var _ SubmissionUseCase = (*submitUC)(nil)

// SubmissionUseCase is the exposed intake boundary: Submit returns a job id
// immediately and the caller polls or subscribes for completion.
type SubmissionUseCase interface {
	Submit(ctx context.Context, doc model.DocumentRef) (*model.ExtractionJob, error)
	Cancel(ctx context.Context, jobID string) error
}

// DocumentLocker serializes submissions per document fingerprint so two
// racing submits cannot both pass the active-job check.
type DocumentLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// JobCanceller signals a running job in this process to stop cooperatively.
// Returns false when no runner currently owns the job.
type JobCanceller interface {
	Cancel(jobID string) bool
}

type submitUC struct {
	jobs      repository.ExtractionJobRepository
	docs      repository.DocumentRepository
	recorder  *ProgressRecorder
	locker    DocumentLocker
	canceller JobCanceller
	lockTTL   time.Duration
	log       *zerolog.Logger
}

func NewSubmissionUseCase(
	jobs repository.ExtractionJobRepository,
	docs repository.DocumentRepository,
	recorder *ProgressRecorder,
	locker DocumentLocker,
	canceller JobCanceller,
	lockTTL time.Duration,
	log *zerolog.Logger,
) *submitUC {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &submitUC{
		jobs:      jobs,
		docs:      docs,
		recorder:  recorder,
		locker:    locker,
		canceller: canceller,
		lockTTL:   lockTTL,
		log:       log,
	}
}

func submitLockKey(fingerprint string) string { return "doc_submit:" + fingerprint }

// Submit enforces the one-active-job-per-document invariant: resubmitting a
// fingerprint while a job is non-terminal is rejected with
// domain.ErrJobAlreadyActive, never run concurrently.
func (u *submitUC) Submit(ctx context.Context, doc model.DocumentRef) (*model.ExtractionJob, error) {
	if doc.ID == "" || doc.Fingerprint == "" || doc.Pages <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	token, err := u.locker.TryLock(ctx, submitLockKey(doc.Fingerprint), u.lockTTL)
	if err != nil {
		return nil, domain.ErrJobAlreadyActive
	}
	defer func() { _ = u.locker.Unlock(ctx, submitLockKey(doc.Fingerprint), token) }()

	if active, err := u.jobs.FindActiveByFingerprint(ctx, nil, doc.Fingerprint); err == nil && active != nil {
		return nil, domain.ErrJobAlreadyActive
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check active job: %w", err)
	}

	if err := u.docs.Save(ctx, nil, &doc); err != nil {
		return nil, fmt.Errorf("save document snapshot: %w", err)
	}
	job := model.NewExtractionJob(ulid.Make().String(), doc)
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	ev := u.recorder.NewEvent(job, 1, "job accepted")
	if err := u.recorder.Append(ctx, nil, ev); err != nil {
		return nil, fmt.Errorf("append queued event: %w", err)
	}
	u.recorder.Publish(ctx, ev)

	u.log.Info().Str("job_id", job.ID).Str("document_id", doc.ID).
		Int("pages", doc.Pages).Msg("extraction job queued")
	return job, nil
}

// Cancel is cooperative: a running job is signalled and transitions to
// failed(cancelled) at its next suspension point; a queued job that no
// runner owns is failed directly.
func (u *submitUC) Cancel(ctx context.Context, jobID string) error {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return domain.ErrJobTerminal
	}

	if u.canceller != nil && u.canceller.Cancel(jobID) {
		u.log.Info().Str("job_id", jobID).Msg("cancel signal delivered to runner")
		return nil
	}

	// Nothing is running the job in this process; finish it here.
	job.Fail(model.FailureCauseCancelled, "cancelled before execution")
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return fmt.Errorf("save cancelled job: %w", err)
	}
	seq, err := u.recorder.NextSeq(ctx, nil, jobID)
	if err != nil {
		return fmt.Errorf("load event history: %w", err)
	}
	ev := u.recorder.NewEvent(job, seq, "cancelled before execution")
	if err := u.recorder.Append(ctx, nil, ev); err != nil {
		return fmt.Errorf("append cancel event: %w", err)
	}
	u.recorder.Publish(ctx, ev)
	return nil
}
