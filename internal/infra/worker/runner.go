package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
	"compliance-extraction-engine/internal/infra/metrics"
	"compliance-extraction-engine/internal/usecase"
)

// runHandle lets Cancel reach into a running job. cancelled distinguishes
// an operator cancel from the wall-clock deadline firing, since both
// surface as context cancellation inside the executor.
type runHandle struct {
	cancel    context.CancelFunc
	cancelled bool
}

type cancelRegistry struct {
	mu      sync.Mutex
	running map[string]*runHandle
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{running: make(map[string]*runHandle)}
}

func (c *cancelRegistry) register(jobID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[jobID] = &runHandle{cancel: cancel}
}

func (c *cancelRegistry) unregister(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, jobID)
}

func (c *cancelRegistry) Cancel(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.running[jobID]
	if !ok {
		return false
	}
	h.cancelled = true
	h.cancel()
	return true
}

func (c *cancelRegistry) wasCancelled(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.running[jobID]
	return ok && h.cancelled
}

// RunnerConfig bounds one job end to end. WallClock caps the whole job
// from submission; MaxJobRetries caps extracting re-entries after a fully
// transient pass with zero successful sub-ranges.
type RunnerConfig struct {
	PollInterval  time.Duration
	WallClock     time.Duration
	MaxJobRetries int
}

func (c RunnerConfig) poll() time.Duration {
	if c.PollInterval <= 0 {
		return 500 * time.Millisecond
	}
	return c.PollInterval
}

func (c RunnerConfig) wallClock() time.Duration {
	if c.WallClock <= 0 {
		return 30 * time.Minute
	}
	return c.WallClock
}

// Runner claims queued jobs and drives each through the state machine:
// selecting_strategy, extracting, merging, mapping, then completed or
// failed. Every transition persists job and progress event in one
// transaction before the event is published.
type Runner struct {
	jobs     repository.ExtractionJobRepository
	docs     repository.DocumentRepository
	results  repository.ExtractionResultRepository
	mappings repository.ControlMappingRepository
	tm       repository.TransactionManager
	recorder *usecase.ProgressRecorder

	strategy usecase.StrategyPolicy
	mapper   *usecase.MappingEngine
	exec     *Executor
	pool     *Pool
	cancels  *cancelRegistry

	cfg RunnerConfig
	log *zerolog.Logger
}

var _ usecase.JobCanceller = (*Runner)(nil)

func NewRunner(
	jobs repository.ExtractionJobRepository,
	docs repository.DocumentRepository,
	results repository.ExtractionResultRepository,
	mappings repository.ControlMappingRepository,
	tm repository.TransactionManager,
	recorder *usecase.ProgressRecorder,
	strategy usecase.StrategyPolicy,
	mapper *usecase.MappingEngine,
	exec *Executor,
	pool *Pool,
	cfg RunnerConfig,
	log *zerolog.Logger,
) *Runner {
	return &Runner{
		jobs:     jobs,
		docs:     docs,
		results:  results,
		mappings: mappings,
		tm:       tm,
		recorder: recorder,
		strategy: strategy,
		mapper:   mapper,
		exec:     exec,
		pool:     pool,
		cancels:  newCancelRegistry(),
		cfg:      cfg,
		log:      log,
	}
}

// Cancel signals a job running in this process. Returns false when no
// runner goroutine currently owns the job.
func (r *Runner) Cancel(jobID string) bool { return r.cancels.Cancel(jobID) }

// Start polls for queued jobs until ctx is cancelled. Claimed jobs are
// handed to the pool; when the pool queue is full the claim is rolled
// back so a later poll can pick the job up again.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.poll())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.claimLoop(ctx)
			}
		}
	}()
}

func (r *Runner) claimLoop(ctx context.Context) {
	for {
		job, err := r.jobs.FetchAndMarkSelecting(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				r.log.Error().Err(err).Msg("claim queued job")
			}
			return
		}
		j := job
		if err := r.pool.Submit(func(taskCtx context.Context) error {
			r.runJob(taskCtx, j)
			return nil
		}); err != nil {
			r.requeue(ctx, j)
			r.log.Warn().Err(err).Str("job_id", j.ID).Msg("pool saturated, job returned to queue")
			return
		}
	}
}

// requeue rolls a claim back when no worker slot was available. Without
// it the job would sit in selecting_strategy forever, invisible to a
// poller that only claims queued rows.
func (r *Runner) requeue(ctx context.Context, job *model.ExtractionJob) {
	if !job.Requeue() {
		return
	}
	if err := r.jobs.Save(ctx, nil, job); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("roll back job claim")
	}
}

// runJob owns one claimed job. ctx is the process lifetime; the execution
// context layered on top carries the wall-clock deadline and the cancel
// hook. Persistence always uses the process context so a deadline that
// fires mid-pipeline can still be recorded.
func (r *Runner) runJob(ctx context.Context, job *model.ExtractionJob) {
	metrics.JobStarted()
	defer metrics.JobFinished()

	log := r.log.With().Str("job_id", job.ID).Str("document_id", job.DocumentID).Logger()

	deadline := job.CreatedAt.Add(r.cfg.wallClock())
	if !time.Now().Before(deadline) {
		r.failJob(ctx, job, model.FailureCauseTimeout, "wall clock ceiling exceeded before execution")
		return
	}
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	r.cancels.register(job.ID, cancel)
	defer r.cancels.unregister(job.ID)

	if err := r.saveWithEvent(ctx, job, "selecting extraction strategy", nil); err != nil {
		log.Error().Err(err).Msg("record strategy selection state")
		return
	}

	doc, err := r.docs.FindByID(ctx, nil, job.DocumentID)
	if err != nil {
		r.failJob(ctx, job, model.FailureCauseTransient, "document metadata unavailable")
		return
	}

	strategy, err := r.strategy.Select(*doc)
	if err != nil {
		r.failJob(ctx, job, model.FailureCauseContent, "document metadata does not admit a strategy")
		return
	}
	job.Strategy = strategy
	job.Transition(model.JobStateExtracting)
	detail := fmt.Sprintf("strategy %s, %d sub-range(s)", strategy.Kind, len(strategy.SubRanges))
	if err := r.saveWithEvent(ctx, job, detail, nil); err != nil {
		log.Error().Err(err).Msg("persist extracting state")
		return
	}
	log.Info().Str("strategy", string(strategy.Kind)).Int("ranges", len(strategy.SubRanges)).
		Msg("extraction started")

	prevTokens := job.TokensSpent
	rep := r.extractWithRetries(ctx, execCtx, job, *doc)
	metrics.AddTokensSpent(job.TokensSpent - prevTokens)

	if r.cancels.wasCancelled(job.ID) {
		r.failJob(ctx, job, model.FailureCauseCancelled, "cancelled by operator")
		return
	}
	if execCtx.Err() != nil {
		if ctx.Err() != nil {
			// Process shutdown. Leave the job in extracting; recovery
			// decides its fate on the next start.
			log.Warn().Msg("shutdown during extraction, job left for recovery")
			return
		}
		r.failJob(ctx, job, model.FailureCauseTimeout, "wall clock ceiling exceeded")
		return
	}

	job.Transition(model.JobStateMerging)
	if err := r.saveWithEvent(ctx, job, fmt.Sprintf("merging %d range outcome(s)", len(rep.Outcomes)), nil); err != nil {
		log.Error().Err(err).Msg("persist merging state")
		return
	}

	result, err := usecase.MergeOutcomes(job.ID, job.Strategy, rep.Outcomes)
	if err != nil {
		cause := model.FailureCauseTransient
		switch {
		case rep.CostExceeded:
			cause = model.FailureCauseCost
		case !rep.Transient && rep.Content:
			cause = model.FailureCauseContent
		}
		r.failJob(ctx, job, cause, "no sub-range produced a valid payload")
		return
	}

	job.Partial = result.Partial
	job.Transition(model.JobStateMapping)
	mergeDetail := fmt.Sprintf("%d control(s), %d gap(s)", len(result.Controls), len(result.Gaps))
	err = r.saveWithEvent(ctx, job, mergeDetail, func(ctx context.Context, tx repository.Tx) error {
		return r.results.Save(ctx, tx, result)
	})
	if err != nil {
		log.Error().Err(err).Msg("persist extraction result")
		return
	}

	rows := r.mapper.Map(job.ID, result.Controls)
	for _, row := range rows {
		metrics.IncMappingRow(string(row.Coverage))
	}

	job.Transition(model.JobStateCompleted)
	mapDetail := fmt.Sprintf("%d control(s) mapped to %d row(s), table %s", len(result.Controls), len(rows), r.mapper.TableVersion())
	err = r.saveWithEvent(ctx, job, mapDetail, func(ctx context.Context, tx repository.Tx) error {
		return r.mappings.SaveAll(ctx, tx, job.ID, rows)
	})
	if err != nil {
		log.Error().Err(err).Msg("persist mappings")
		return
	}

	outcome := "completed"
	if job.Partial {
		outcome = "completed_partial"
	}
	metrics.IncJobFinished(outcome, "")
	log.Info().Str("outcome", outcome).Int64("tokens", job.TokensSpent).Int("calls", job.CallsMade).
		Msg("extraction job finished")
}

// extractWithRetries re-enters extracting for a whole-job retry only when a
// pass yielded zero successful sub-ranges for purely transient reasons.
// A pass with even one validated payload is never thrown away.
func (r *Runner) extractWithRetries(ctx, execCtx context.Context, job *model.ExtractionJob, doc model.DocumentRef) ExecReport {
	for {
		rep := r.exec.Run(execCtx, job, doc)
		job.TokensSpent = rep.TokensSpent
		job.CallsMade = rep.CallsMade

		retryable := rep.Succeeded == 0 && rep.Transient && !rep.CostExceeded &&
			execCtx.Err() == nil && job.Attempts < r.cfg.MaxJobRetries
		if !retryable {
			return rep
		}

		job.Transition(model.JobStateExtracting)
		detail := fmt.Sprintf("retrying extraction after transient failure, retry %d", job.Attempts)
		if err := r.saveWithEvent(ctx, job, detail, nil); err != nil {
			r.log.Error().Err(err).Str("job_id", job.ID).Msg("persist whole-job retry")
			return rep
		}
	}
}

// saveWithEvent persists the job row, the next progress event, and any
// extra writes in one transaction, then publishes the event after commit.
func (r *Runner) saveWithEvent(ctx context.Context, job *model.ExtractionJob, detail string, extra func(ctx context.Context, tx repository.Tx) error) error {
	var ev model.ProgressEvent
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(txCtx context.Context, tx repository.Tx) error {
		if extra != nil {
			if err := extra(txCtx, tx); err != nil {
				return err
			}
		}
		if err := r.jobs.Save(txCtx, tx, job); err != nil {
			return err
		}
		seq, err := r.recorder.NextSeq(txCtx, tx, job.ID)
		if err != nil {
			return err
		}
		ev = r.recorder.NewEvent(job, seq, detail)
		return r.recorder.Append(txCtx, tx, ev)
	})
	if err != nil {
		return err
	}
	r.recorder.Publish(ctx, ev)
	return nil
}

func (r *Runner) failJob(ctx context.Context, job *model.ExtractionJob, cause model.FailureCause, detail string) {
	if !job.Fail(cause, detail) {
		return
	}
	if err := r.saveWithEvent(ctx, job, detail, nil); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("persist failed state")
		return
	}
	metrics.IncJobFinished("failed", string(cause))
	r.log.Warn().Str("job_id", job.ID).Str("cause", string(cause)).Str("detail", detail).
		Msg("extraction job failed")
}

// Recover resolves jobs left non-terminal by a previous process. Queued
// jobs are simply reclaimed by polling. A job past merging whose result
// row was persisted resumes at the mapping step; anything interrupted
// before a result exists is failed as transient so the caller can
// resubmit.
func (r *Runner) Recover(ctx context.Context) error {
	stuck, err := r.jobs.ListNonTerminal(ctx, nil)
	if err != nil {
		return fmt.Errorf("list non-terminal jobs: %w", err)
	}
	for _, job := range stuck {
		switch job.State {
		case model.JobStateQueued:
			continue
		case model.JobStateMerging, model.JobStateMapping:
			result, rerr := r.results.FindByJobID(ctx, nil, job.ID)
			if rerr != nil {
				r.failJob(ctx, job, model.FailureCauseTransient, "interrupted by restart before result persisted")
				continue
			}
			j, res := job, result
			if serr := r.pool.Submit(func(taskCtx context.Context) error {
				r.resumeMapping(taskCtx, j, res)
				return nil
			}); serr != nil {
				// Recovery runs once at startup, so a saturated pool cannot
				// be retried later. Finish the job inline instead.
				r.resumeMapping(ctx, j, res)
			}
		default:
			r.failJob(ctx, job, model.FailureCauseTransient, "interrupted by restart during extraction")
		}
	}
	return nil
}

// resumeMapping finishes a job whose extraction result survived a crash.
// Mapping is deterministic, so re-running it is safe; SaveAll replaces any
// rows a half-finished pass wrote.
func (r *Runner) resumeMapping(ctx context.Context, job *model.ExtractionJob, result *model.ExtractionResult) {
	metrics.JobStarted()
	defer metrics.JobFinished()

	if job.State == model.JobStateMerging {
		job.Partial = result.Partial
		job.Transition(model.JobStateMapping)
		if err := r.saveWithEvent(ctx, job, "resuming at mapping after restart", nil); err != nil {
			r.log.Error().Err(err).Str("job_id", job.ID).Msg("persist resumed mapping state")
			return
		}
	}

	rows := r.mapper.Map(job.ID, result.Controls)
	for _, row := range rows {
		metrics.IncMappingRow(string(row.Coverage))
	}

	job.Transition(model.JobStateCompleted)
	detail := fmt.Sprintf("%d control(s) mapped to %d row(s), table %s", len(result.Controls), len(rows), r.mapper.TableVersion())
	err := r.saveWithEvent(ctx, job, detail, func(ctx context.Context, tx repository.Tx) error {
		return r.mappings.SaveAll(ctx, tx, job.ID, rows)
	})
	if err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("persist recovered mappings")
		return
	}

	outcome := "completed"
	if job.Partial {
		outcome = "completed_partial"
	}
	metrics.IncJobFinished(outcome, "")
}
