package adapter

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
)

// Usage reported by the provider for a single extraction call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ExtractRequest asks the inference boundary to extract structured control
// data from one sub-range of a document. CacheKey is stable across retries
// of the same sub-range so large-context uploads are amortized.
type ExtractRequest struct {
	Document model.DocumentRef
	SubRange model.SubRange
	CacheKey string
	Model    string
}

// ExtractResponse carries the raw structured payload. The engine validates
// it against the output schema before trusting a single byte of it.
type ExtractResponse struct {
	Payload []byte
	Usage   Usage
}

// StructuredExtractor is the port for the external structured-inference
// service. Implementations must honor ctx cancellation and deadlines; the
// engine assumes nothing about ordering or latency beyond the ctx deadline.
type StructuredExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// CountTokens estimates prompt tokens for a sub-range request
	// (provider-specific counting; best-effort when exact is unavailable).
	CountTokens(ctx context.Context, req ExtractRequest) (int, error)
}
