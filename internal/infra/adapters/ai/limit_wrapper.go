package ai

import (
	"context"

	"compliance-extraction-engine/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.StructuredExtractor = (*limitedExtractor)(nil)

// limitedExtractor is the global admission gate: a counting semaphore shared
// by every job in the process, bounding concurrent outbound inference calls.
// First-come-first-served, no priority ordering.
type limitedExtractor struct {
	inner adapter.StructuredExtractor
	sem   chan struct{}
}

func NewLimitedExtractor(inner adapter.StructuredExtractor, maxConcurrent int) adapter.StructuredExtractor {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedExtractor{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedExtractor) Extract(ctx context.Context, req adapter.ExtractRequest) (*adapter.ExtractResponse, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Extract(ctx, req)
}

func (l *limitedExtractor) CountTokens(ctx context.Context, req adapter.ExtractRequest) (int, error) {
	// Local estimation; no need to hold an admission slot.
	return l.inner.CountTokens(ctx, req)
}
