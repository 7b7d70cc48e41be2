package ai

import (
	"fmt"

	"compliance-extraction-engine/internal/domain/ports/adapter"
)

const systemPrompt = `You are an audit-report extraction service. Given a page range of a
SOC 2 / ISAE 3402 style report, return ONLY a JSON object with keys
"controls", "exceptions" and "cuecs". Each control needs "control_id",
"description", optional "topic" and an "evidence" object with the 1-based
"page" it was found on. Cite pages only inside the requested range.`

// userPrompt renders the per-call instruction. The cache key is included as
// an opaque provider hint so retries of the same sub-range can reuse
// previously uploaded context.
func userPrompt(req adapter.ExtractRequest) string {
	return fmt.Sprintf(
		"Document %s (%q, %d pages total).\nExtract pages %d-%d.\nContext cache key: %s",
		req.Document.ID, req.Document.Title, req.Document.Pages,
		req.SubRange.FirstPage, req.SubRange.LastPage, req.CacheKey,
	)
}
