package ai

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"compliance-extraction-engine/internal/domain/ports/adapter"
)

var _ adapter.StructuredExtractor = (*GeminiAdapter)(nil)

// GeminiAdapter implements the extraction port using the official SDK,
// asking for a JSON response so the payload goes straight to the schema
// validator.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) contents(req adapter.ExtractRequest) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromText(userPrompt(req), genai.RoleUser),
	}
}

func (g *GeminiAdapter) Extract(ctx context.Context, req adapter.ExtractRequest) (*adapter.ExtractResponse, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, g.contents(req), cfg)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini: empty response")
	}
	out := &adapter.ExtractResponse{Payload: []byte(text)}
	if resp.UsageMetadata != nil {
		out.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, req adapter.ExtractRequest) (int, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	resp, err := g.client.Models.CountTokens(ctx, model, g.contents(req), nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}
