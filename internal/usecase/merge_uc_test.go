package usecase

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
)

func rangePayload(r model.SubRange, controls int) *model.RangePayload {
	p := &model.RangePayload{}
	for i := 0; i < controls; i++ {
		p.Controls = append(p.Controls, model.ControlRecord{
			ControlID:   fmt.Sprintf("CC%d.%d", r.Index+1, i+1),
			Description: fmt.Sprintf("control %d of window %s", i+1, r),
			Evidence:    model.EvidenceLocator{Page: r.FirstPage},
		})
	}
	return p
}

func fourRangeStrategy() model.ExtractionStrategy {
	return model.ExtractionStrategy{
		Kind: model.StrategyChunkedParallel,
		SubRanges: []model.SubRange{
			{Index: 0, FirstPage: 1, LastPage: 50},
			{Index: 1, FirstPage: 51, LastPage: 100},
			{Index: 2, FirstPage: 101, LastPage: 150},
			{Index: 3, FirstPage: 151, LastPage: 200},
		},
	}
}

func TestMergeOutcomes_OrderIndependentOfCompletion(t *testing.T) {
	t.Parallel()
	strategy := fourRangeStrategy()

	outcomes := make([]RangeOutcome, 0, 4)
	for _, r := range strategy.SubRanges {
		outcomes = append(outcomes, RangeOutcome{SubRange: r, Payload: rangePayload(r, 3)})
	}

	var want *model.ExtractionResult
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]RangeOutcome(nil), outcomes...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := MergeOutcomes("job-1", strategy, shuffled)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		got.CreatedAt = time.Time{}
		if want == nil {
			want = got
			continue
		}
		if !reflect.DeepEqual(want.Controls, got.Controls) {
			t.Fatalf("trial %d: merged control order depends on completion order", trial)
		}
	}
}

func TestMergeOutcomes_PartialRecordsGap(t *testing.T) {
	t.Parallel()
	strategy := fourRangeStrategy()

	var outcomes []RangeOutcome
	for _, r := range strategy.SubRanges {
		if r.Index == 2 {
			outcomes = append(outcomes, RangeOutcome{SubRange: r, FailReason: "retries exhausted: timeout"})
			continue
		}
		outcomes = append(outcomes, RangeOutcome{SubRange: r, Payload: rangePayload(r, 2)})
	}

	res, err := MergeOutcomes("job-1", strategy, outcomes)
	if err != nil {
		t.Fatalf("MergeOutcomes: %v", err)
	}
	if !res.Partial {
		t.Fatal("expected partial result")
	}
	if len(res.Gaps) != 1 {
		t.Fatalf("expected one gap, got %d", len(res.Gaps))
	}
	if res.Gaps[0].SubRange.Index != 2 || res.Gaps[0].Reason != "retries exhausted: timeout" {
		t.Fatalf("gap does not identify the failed sub-range: %+v", res.Gaps[0])
	}
	if len(res.Controls) != 6 {
		t.Fatalf("expected controls of 3 successful windows only, got %d", len(res.Controls))
	}
}

func TestMergeOutcomes_MissingOutcomeBecomesGap(t *testing.T) {
	t.Parallel()
	strategy := fourRangeStrategy()

	// Only two outcomes recorded: the other calls were abandoned.
	outcomes := []RangeOutcome{
		{SubRange: strategy.SubRanges[0], Payload: rangePayload(strategy.SubRanges[0], 1)},
		{SubRange: strategy.SubRanges[3], Payload: rangePayload(strategy.SubRanges[3], 1)},
	}
	res, err := MergeOutcomes("job-1", strategy, outcomes)
	if err != nil {
		t.Fatalf("MergeOutcomes: %v", err)
	}
	if !res.Partial || len(res.Gaps) != 2 {
		t.Fatalf("expected 2 gaps for abandoned calls, got %+v", res.Gaps)
	}
}

func TestMergeOutcomes_AllFailedIsError(t *testing.T) {
	t.Parallel()
	strategy := fourRangeStrategy()

	var outcomes []RangeOutcome
	for _, r := range strategy.SubRanges {
		outcomes = append(outcomes, RangeOutcome{SubRange: r, FailReason: "boom"})
	}
	res, err := MergeOutcomes("job-1", strategy, outcomes)
	if !errors.Is(err, domain.ErrNoSuccessfulRanges) {
		t.Fatalf("expected ErrNoSuccessfulRanges, got %v", err)
	}
	if res != nil {
		t.Fatal("no result may exist for a fully failed job")
	}
}
