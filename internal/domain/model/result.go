package model

import "time"

// EvidenceLocator points back into the source document.
type EvidenceLocator struct {
	Page   int    `json:"page"`
	Anchor string `json:"anchor,omitempty"` // section heading or line excerpt
}

// ControlRecord is one control extracted from the audit report.
type ControlRecord struct {
	ControlID   string          `json:"control_id"`
	Description string          `json:"description"`
	Topic       string          `json:"topic,omitempty"` // canonical control-topic id when stated
	Evidence    EvidenceLocator `json:"evidence"`
}

// ExceptionRecord is a test exception noted by the auditor.
type ExceptionRecord struct {
	ControlID string          `json:"control_id"`
	Summary   string          `json:"summary"`
	Evidence  EvidenceLocator `json:"evidence"`
}

// CUECRecord is a complementary user-entity control: something the
// auditee's customer must implement themselves.
type CUECRecord struct {
	Summary  string          `json:"summary"`
	Evidence EvidenceLocator `json:"evidence"`
}

// RangeGap records a sub-range that exhausted its retries, so readers know
// exactly which pages are missing from a partial result and why.
type RangeGap struct {
	SubRange SubRange `json:"sub_range"`
	Reason   string   `json:"reason"`
}

// ExtractionResult is the merged output of all sub-range calls, ordered by
// sub-range index regardless of call completion order. Immutable once the
// job reaches a terminal state.
type ExtractionResult struct {
	JobID      string
	Controls   []ControlRecord
	Exceptions []ExceptionRecord
	CUECs      []CUECRecord
	Gaps       []RangeGap
	Partial    bool
	CreatedAt  time.Time
}
