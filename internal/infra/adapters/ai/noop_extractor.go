package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/adapter"
)

var _ adapter.StructuredExtractor = (*NoopExtractor)(nil)

// NoopExtractor fabricates a deterministic payload per sub-range. Used by
// dev mode and the demo binary so the whole pipeline runs without keys.
type NoopExtractor struct {
	ControlsPerPage int
}

func NewNoopExtractor() *NoopExtractor { return &NoopExtractor{ControlsPerPage: 1} }

func (n *NoopExtractor) Extract(ctx context.Context, req adapter.ExtractRequest) (*adapter.ExtractResponse, error) {
	per := n.ControlsPerPage
	if per <= 0 {
		per = 1
	}
	var p model.RangePayload
	for page := req.SubRange.FirstPage; page <= req.SubRange.LastPage; page++ {
		for i := 0; i < per; i++ {
			p.Controls = append(p.Controls, model.ControlRecord{
				ControlID:   fmt.Sprintf("CC%d.%d", page, i+1),
				Description: fmt.Sprintf("Synthetic control on page %d covering access review and monitoring", page),
				Topic:       "access-control",
				Evidence:    model.EvidenceLocator{Page: page},
			})
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	tokens := req.SubRange.Pages() * 40
	return &adapter.ExtractResponse{
		Payload: b,
		Usage:   adapter.Usage{PromptTokens: tokens, CompletionTokens: tokens / 2, TotalTokens: tokens + tokens/2},
	}, nil
}

func (n *NoopExtractor) CountTokens(ctx context.Context, req adapter.ExtractRequest) (int, error) {
	return req.SubRange.Pages() * 40, nil
}
