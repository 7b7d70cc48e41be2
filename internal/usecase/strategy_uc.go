package usecase

import (
	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
)

// StrategyPolicy selects an extraction strategy from document metadata.
// Pure: no side effects, no external dependencies. The same document always
// yields the same strategy and the same sub-range partition.
type StrategyPolicy struct {
	SinglePassMaxPages int // <= this: one call for the whole document
	ParallelMinPages   int // > this: windows requested concurrently
	WindowPages        int
}

// Select returns the strategy for a document. A boundary hit goes to the
// cheaper strategy: exactly SinglePassMaxPages is single-pass, exactly
// ParallelMinPages is chunked-sequential.
func (p StrategyPolicy) Select(doc model.DocumentRef) (model.ExtractionStrategy, error) {
	if doc.Pages <= 0 {
		return model.ExtractionStrategy{}, domain.ErrInvalidArgument
	}

	if doc.Pages <= p.SinglePassMaxPages {
		return model.ExtractionStrategy{
			Kind:      model.StrategySinglePass,
			SubRanges: []model.SubRange{{Index: 0, FirstPage: 1, LastPage: doc.Pages}},
		}, nil
	}

	kind := model.StrategyChunkedSequential
	if doc.Pages > p.ParallelMinPages {
		kind = model.StrategyChunkedParallel
	}
	return model.ExtractionStrategy{Kind: kind, SubRanges: p.partition(doc.Pages)}, nil
}

// partition splits [1..pages] into consecutive windows of WindowPages, the
// last window absorbing the remainder. Windows never gap or overlap.
func (p StrategyPolicy) partition(pages int) []model.SubRange {
	w := p.WindowPages
	if w <= 0 {
		w = 25
	}
	var out []model.SubRange
	for first := 1; first <= pages; first += w {
		last := first + w - 1
		if last > pages {
			last = pages
		}
		out = append(out, model.SubRange{Index: len(out), FirstPage: first, LastPage: last})
	}
	return out
}
