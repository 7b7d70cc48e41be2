package usecase

import (
	"fmt"
	"time"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
)

// RangeOutcome is the terminal outcome of one sub-range after the executor
// exhausted its retries: either a validated payload or a failure reason.
type RangeOutcome struct {
	SubRange   model.SubRange
	Payload    *model.RangePayload // nil when the sub-range failed
	FailReason string
}

// MergeOutcomes combines per-call outcomes into one ExtractionResult.
//
// Merge order follows the sub-range order defined by the strategy, never
// call-completion order, so output is deterministic regardless of which
// call finished first. A sub-range with no recorded outcome (abandoned by
// cancellation or a wall-clock timeout) becomes a gap. Zero successful
// sub-ranges is a job failure, not an empty "complete" result.
func MergeOutcomes(jobID string, strategy model.ExtractionStrategy, outcomes []RangeOutcome) (*model.ExtractionResult, error) {
	byIndex := make(map[int]RangeOutcome, len(outcomes))
	for _, o := range outcomes {
		byIndex[o.SubRange.Index] = o
	}

	res := &model.ExtractionResult{JobID: jobID, CreatedAt: time.Now()}
	succeeded := 0
	for _, r := range strategy.SubRanges {
		o, ok := byIndex[r.Index]
		if !ok {
			res.Gaps = append(res.Gaps, model.RangeGap{SubRange: r, Reason: "call abandoned"})
			continue
		}
		if o.Payload == nil {
			reason := o.FailReason
			if reason == "" {
				reason = "extraction failed"
			}
			res.Gaps = append(res.Gaps, model.RangeGap{SubRange: r, Reason: reason})
			continue
		}
		succeeded++
		res.Controls = append(res.Controls, o.Payload.Controls...)
		res.Exceptions = append(res.Exceptions, o.Payload.Exceptions...)
		res.CUECs = append(res.CUECs, o.Payload.CUECs...)
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("merge job %s: %w", jobID, domain.ErrNoSuccessfulRanges)
	}
	res.Partial = len(res.Gaps) > 0
	return res, nil
}
