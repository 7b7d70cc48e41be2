package usecase

import (
	"testing"

	"compliance-extraction-engine/internal/domain/model"
)

func testPolicy() StrategyPolicy {
	return StrategyPolicy{SinglePassMaxPages: 60, ParallelMinPages: 150, WindowPages: 25}
}

func doc(pages int) model.DocumentRef {
	return model.DocumentRef{ID: "doc-1", TenantID: "t-1", Pages: pages, Fingerprint: "fp-1"}
}

func TestStrategyPolicy_KindSelection(t *testing.T) {
	t.Parallel()
	p := testPolicy()

	cases := []struct {
		pages int
		want  model.StrategyKind
	}{
		{1, model.StrategySinglePass},
		{40, model.StrategySinglePass},
		{60, model.StrategySinglePass}, // boundary goes to the cheaper strategy
		{61, model.StrategyChunkedSequential},
		{100, model.StrategyChunkedSequential},
		{150, model.StrategyChunkedSequential}, // boundary again
		{151, model.StrategyChunkedParallel},
		{200, model.StrategyChunkedParallel},
		{873, model.StrategyChunkedParallel},
	}
	for _, c := range cases {
		s, err := p.Select(doc(c.pages))
		if err != nil {
			t.Fatalf("pages=%d: %v", c.pages, err)
		}
		if s.Kind != c.want {
			t.Errorf("pages=%d: expected %s got %s", c.pages, c.want, s.Kind)
		}
	}
}

func TestStrategyPolicy_PartitionCoversExactly(t *testing.T) {
	t.Parallel()
	p := testPolicy()

	// Every page count must be covered with no gaps and no overlaps.
	for pages := 1; pages <= 500; pages++ {
		s, err := p.Select(doc(pages))
		if err != nil {
			t.Fatalf("pages=%d: %v", pages, err)
		}
		if len(s.SubRanges) == 0 {
			t.Fatalf("pages=%d: empty partition", pages)
		}
		next := 1
		for i, r := range s.SubRanges {
			if r.Index != i {
				t.Fatalf("pages=%d: sub-range %d has index %d", pages, i, r.Index)
			}
			if r.FirstPage != next {
				t.Fatalf("pages=%d: gap or overlap at page %d (got first=%d)", pages, next, r.FirstPage)
			}
			if r.LastPage < r.FirstPage {
				t.Fatalf("pages=%d: inverted range %s", pages, r)
			}
			next = r.LastPage + 1
		}
		if next != pages+1 {
			t.Fatalf("pages=%d: partition ends at %d", pages, next-1)
		}
	}
}

func TestStrategyPolicy_SinglePassIsOneRange(t *testing.T) {
	t.Parallel()
	p := testPolicy()

	s, err := p.Select(doc(40))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(s.SubRanges) != 1 {
		t.Fatalf("expected one sub-range, got %d", len(s.SubRanges))
	}
	if s.SubRanges[0].FirstPage != 1 || s.SubRanges[0].LastPage != 40 {
		t.Fatalf("expected whole document, got %s", s.SubRanges[0])
	}
}

func TestStrategyPolicy_Deterministic(t *testing.T) {
	t.Parallel()
	p := testPolicy()

	a, _ := p.Select(doc(200))
	b, _ := p.Select(doc(200))
	if a.Kind != b.Kind || len(a.SubRanges) != len(b.SubRanges) {
		t.Fatalf("selection is not deterministic: %+v vs %+v", a, b)
	}
	for i := range a.SubRanges {
		if a.SubRanges[i] != b.SubRanges[i] {
			t.Fatalf("sub-range %d differs: %v vs %v", i, a.SubRanges[i], b.SubRanges[i])
		}
	}
}

func TestStrategyPolicy_RejectsZeroPages(t *testing.T) {
	t.Parallel()
	if _, err := testPolicy().Select(doc(0)); err == nil {
		t.Fatal("expected error for zero pages")
	}
}
