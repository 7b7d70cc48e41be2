package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/adapter"
	"compliance-extraction-engine/internal/infra/metrics"
	"compliance-extraction-engine/internal/infra/schema"
	"compliance-extraction-engine/internal/usecase"
)

// ExecReport is the outcome of one extraction pass over a job's sub-ranges.
// TokensSpent and CallsMade are cumulative across passes so the token
// ceiling applies to the whole job, not to a single pass.
type ExecReport struct {
	Outcomes    []usecase.RangeOutcome
	Succeeded   int
	TokensSpent int64
	CallsMade   int

	Transient    bool // at least one range failed on boundary errors or timeouts
	Content      bool // at least one range exhausted retries on schema rejections
	CostExceeded bool
}

// Executor drives the inference calls for one job: per-call timeout and
// bounded retries with exponential backoff, schema validation of every
// payload, and a job-wide token ceiling. Sub-ranges run sequentially or
// concurrently as the strategy dictates.
type Executor struct {
	extractor adapter.StructuredExtractor
	validator *schema.Validator
	retry     usecase.RetryPolicy
	clock     usecase.Clock

	model        string
	callTimeout  time.Duration
	tokenCeiling int64
	log          *zerolog.Logger
}

func NewExecutor(
	extractor adapter.StructuredExtractor,
	validator *schema.Validator,
	retry usecase.RetryPolicy,
	clock usecase.Clock,
	modelName string,
	callTimeout time.Duration,
	tokenCeiling int64,
	log *zerolog.Logger,
) *Executor {
	if clock == nil {
		clock = usecase.RealClock()
	}
	return &Executor{
		extractor:    extractor,
		validator:    validator,
		retry:        retry,
		clock:        clock,
		model:        modelName,
		callTimeout:  callTimeout,
		tokenCeiling: tokenCeiling,
		log:          log,
	}
}

func (e *Executor) timeout() time.Duration {
	if e.callTimeout <= 0 {
		return 2 * time.Minute
	}
	return e.callTimeout
}

type execState struct {
	tokens    atomic.Int64
	calls     atomic.Int32
	costHit   atomic.Bool
	transient atomic.Bool
	content   atomic.Bool
}

// Run executes every sub-range of the job's strategy once (each with its
// own retry budget) and reports the per-range outcomes. A range abandoned
// by ctx cancellation records no outcome at all; the merge step turns that
// into a gap.
func (e *Executor) Run(ctx context.Context, job *model.ExtractionJob, doc model.DocumentRef) ExecReport {
	st := &execState{}
	st.tokens.Store(job.TokensSpent)
	st.calls.Store(int32(job.CallsMade))

	ranges := job.Strategy.SubRanges
	outcomes := make([]*usecase.RangeOutcome, len(ranges))

	if job.Strategy.Concurrent() {
		var wg sync.WaitGroup
		for i, r := range ranges {
			wg.Add(1)
			go func(i int, r model.SubRange) {
				defer wg.Done()
				outcomes[i] = e.runRange(ctx, st, doc, r)
			}(i, r)
		}
		wg.Wait()
	} else {
		for i, r := range ranges {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = e.runRange(ctx, st, doc, r)
		}
	}

	rep := ExecReport{
		TokensSpent:  st.tokens.Load(),
		CallsMade:    int(st.calls.Load()),
		Transient:    st.transient.Load(),
		Content:      st.content.Load(),
		CostExceeded: st.costHit.Load(),
	}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		rep.Outcomes = append(rep.Outcomes, *o)
		if o.Payload != nil {
			rep.Succeeded++
		}
	}
	return rep
}

// runRange runs the retry loop for one sub-range. Returns nil when the
// range was abandoned because the job context ended; a non-nil outcome is
// final for this pass.
func (e *Executor) runRange(ctx context.Context, st *execState, doc model.DocumentRef, r model.SubRange) *usecase.RangeOutcome {
	req := adapter.ExtractRequest{
		Document: doc,
		SubRange: r,
		CacheKey: model.CacheKey(doc.Fingerprint, r),
		Model:    e.model,
	}

	// Estimate the prompt cost once per range so a call that cannot fit
	// under the remaining budget is never issued. The estimate is advisory;
	// when the boundary cannot count tokens the hard ceiling still applies.
	var estimate int64
	if e.tokenCeiling > 0 {
		if est, err := e.extractor.CountTokens(ctx, req); err == nil {
			estimate = int64(est)
		} else {
			e.log.Debug().Err(err).Str("range", r.String()).Msg("token estimate unavailable")
		}
	}

	attempts := e.retry.Attempts()
	var lastReason string
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil
		}
		if spent := st.tokens.Load(); e.tokenCeiling > 0 &&
			(spent >= e.tokenCeiling || spent+estimate > e.tokenCeiling) {
			st.costHit.Store(true)
			return &usecase.RangeOutcome{SubRange: r, FailReason: domain.ErrCostCeiling.Error()}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout())
		start := time.Now()
		resp, err := e.extractor.Extract(callCtx, req)
		cancel()
		latency := int(time.Since(start).Milliseconds())

		st.calls.Add(1)
		if resp != nil {
			st.tokens.Add(int64(resp.Usage.TotalTokens))
		}

		switch {
		case err == nil:
			p, verr := e.validator.Decode(resp.Payload)
			if verr == nil {
				verr = e.validator.ValidateRange(p, r)
			}
			if verr == nil {
				metrics.ObserveCall("succeeded", latency)
				return &usecase.RangeOutcome{SubRange: r, Payload: p}
			}
			metrics.ObserveCall("failed", latency)
			st.content.Store(true)
			lastReason = "payload rejected by output schema"
			e.log.Warn().Err(verr).Str("range", r.String()).Int("attempt", attempt).
				Msg("extraction payload rejected")

		case ctx.Err() != nil:
			// The job-level context ended mid-call; the range is abandoned,
			// not failed, so no outcome is recorded for it.
			metrics.ObserveCall("timed_out", latency)
			return nil

		case errors.Is(err, context.DeadlineExceeded):
			metrics.ObserveCall("timed_out", latency)
			st.transient.Store(true)
			lastReason = "call timed out"
			e.log.Warn().Str("range", r.String()).Int("attempt", attempt).Msg("extraction call timed out")

		default:
			metrics.ObserveCall("failed", latency)
			st.transient.Store(true)
			lastReason = "inference boundary error"
			e.log.Warn().Err(err).Str("range", r.String()).Int("attempt", attempt).
				Msg("extraction call failed")
		}

		if attempt < attempts {
			metrics.IncCallRetry()
			if e.clock.Sleep(ctx, e.retry.Delay(attempt)) != nil {
				return nil
			}
		}
	}
	return &usecase.RangeOutcome{SubRange: r, FailReason: lastReason}
}
