package model

import "time"

type JobState string

const (
	JobStateQueued            JobState = "queued"
	JobStateSelectingStrategy JobState = "selecting_strategy"
	JobStateExtracting        JobState = "extracting"
	JobStateMerging           JobState = "merging"
	JobStateMapping           JobState = "mapping"
	JobStateCompleted         JobState = "completed"
	JobStateFailed            JobState = "failed"
)

// FailureCause is the category reported to callers instead of a raw error
// message. It is sufficient to decide whether resubmission is worthwhile.
type FailureCause string

const (
	FailureCauseNone      FailureCause = ""
	FailureCauseTransient FailureCause = "transient"  // inference boundary unavailable
	FailureCauseTimeout   FailureCause = "timeout"    // wall-clock ceiling exceeded
	FailureCauseCancelled FailureCause = "cancelled"  // external cancel signal
	FailureCauseContent   FailureCause = "content"    // every sub-range rejected by schema
	FailureCauseCost      FailureCause = "cost_limit" // job token ceiling exceeded
)

// ExtractionJob is the single source of truth for "what state is this
// extraction in". Mutated only through Transition; retained after terminal
// state for audit, never deleted by the engine.
type ExtractionJob struct {
	ID          string
	DocumentID  string
	TenantID    string
	Fingerprint string

	State    JobState
	Strategy ExtractionStrategy
	Partial  bool

	Attempts    int // whole-job extracting re-entries, not per-call retries
	TokensSpent int64
	CallsMade   int

	Cause     FailureCause
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewExtractionJob(id string, doc DocumentRef) *ExtractionJob {
	now := time.Now()
	return &ExtractionJob{
		ID:          id,
		DocumentID:  doc.ID,
		TenantID:    doc.TenantID,
		Fingerprint: doc.Fingerprint,
		State:       JobStateQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// nextStates encodes the one-directional lifecycle. `failed` is reachable
// from every non-terminal state; `extracting` may be re-entered from itself
// for a whole-job retry when no sub-range has succeeded yet.
var nextStates = map[JobState][]JobState{
	JobStateQueued:            {JobStateSelectingStrategy, JobStateFailed},
	JobStateSelectingStrategy: {JobStateExtracting, JobStateFailed},
	JobStateExtracting:        {JobStateExtracting, JobStateMerging, JobStateFailed},
	JobStateMerging:           {JobStateMapping, JobStateFailed},
	JobStateMapping:           {JobStateCompleted, JobStateFailed},
}

func (s JobState) CanTransition(to JobState) bool {
	for _, n := range nextStates[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the next state, returning false if the
// lifecycle forbids it. Persist-then-publish is the caller's job.
func (j *ExtractionJob) Transition(to JobState) bool {
	if !j.State.CanTransition(to) {
		return false
	}
	if to == JobStateExtracting && j.State == JobStateExtracting {
		j.Attempts++
	}
	j.State = to
	j.UpdatedAt = time.Now()
	return true
}

// Requeue returns a claimed job to the queue before any work ran on it.
// This is the one backward step the lifecycle allows: a claim that found
// no free worker slot must become visible to the poller again.
func (j *ExtractionJob) Requeue() bool {
	if j.State != JobStateSelectingStrategy {
		return false
	}
	j.State = JobStateQueued
	j.UpdatedAt = time.Now()
	return true
}

// Fail forces the job into the failed terminal state from any non-terminal
// state, recording the cause category.
func (j *ExtractionJob) Fail(cause FailureCause, detail string) bool {
	if j.State.Terminal() {
		return false
	}
	j.State = JobStateFailed
	j.Cause = cause
	j.LastError = detail
	j.UpdatedAt = time.Now()
	return true
}
