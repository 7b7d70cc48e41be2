package model

import "fmt"

type StrategyKind string

const (
	StrategySinglePass        StrategyKind = "single_pass"
	StrategyChunkedSequential StrategyKind = "chunked_sequential"
	StrategyChunkedParallel   StrategyKind = "chunked_parallel"
)

// SubRange is a contiguous page window extracted by one inference call.
// Pages are 1-based and inclusive on both ends.
type SubRange struct {
	Index     int `json:"index"`
	FirstPage int `json:"first_page"`
	LastPage  int `json:"last_page"`
}

func (r SubRange) String() string {
	return fmt.Sprintf("p%d-%d", r.FirstPage, r.LastPage)
}

func (r SubRange) Pages() int { return r.LastPage - r.FirstPage + 1 }

// ExtractionStrategy is a closed tagged variant chosen once at intake.
// The sub-range partition is fixed at selection time and never changes
// mid-job, so the merger can order output by SubRange.Index without
// knowing which kind produced it.
type ExtractionStrategy struct {
	Kind      StrategyKind `json:"kind"`
	SubRanges []SubRange   `json:"sub_ranges"`
}

// Concurrent reports whether the strategy's calls may be issued in parallel.
func (s ExtractionStrategy) Concurrent() bool {
	return s.Kind == StrategyChunkedParallel
}

// CacheKey derives the context-cache key for one sub-range of a document.
// Retries of the same sub-range must produce the same key; different
// documents or different windows must not collide.
func CacheKey(fingerprint string, r SubRange) string {
	return fmt.Sprintf("%s:%s", fingerprint, r)
}
