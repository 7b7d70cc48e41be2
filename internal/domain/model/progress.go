package model

import "time"

// ProgressEvent is one append-only record of a state transition. Consumed
// by subscribers at-least-once; never mutated after creation.
type ProgressEvent struct {
	ID        string       `json:"id"`
	JobID     string       `json:"job_id"`
	Seq       int          `json:"seq"`
	State     JobState     `json:"state"`
	Cause     FailureCause `json:"cause,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
