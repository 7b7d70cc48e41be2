package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/adapter"
	"compliance-extraction-engine/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

type memJobs struct {
	mu    sync.RWMutex
	store map[string]*model.ExtractionJob
}

func newMemJobs() *memJobs { return &memJobs{store: make(map[string]*model.ExtractionJob)} }

func (m *memJobs) Save(ctx context.Context, tx repository.Tx, job *model.ExtractionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobs) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) FindActiveByFingerprint(ctx context.Context, tx repository.Tx, fp string) (*model.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.store {
		if j.Fingerprint == fp && !j.State.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) FetchAndMarkSelecting(ctx context.Context) (*model.ExtractionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.ExtractionJob
	for _, j := range m.store {
		if j.State != model.JobStateQueued {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Transition(model.JobStateSelectingStrategy)
	cp := *oldest
	return &cp, nil
}

func (m *memJobs) ListNonTerminal(ctx context.Context, tx repository.Tx) ([]*model.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ExtractionJob
	for _, j := range m.store {
		if !j.State.Terminal() {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

type memDocs struct {
	mu    sync.RWMutex
	store map[string]model.DocumentRef
}

func newMemDocs() *memDocs { return &memDocs{store: make(map[string]model.DocumentRef)} }

func (m *memDocs) Save(ctx context.Context, tx repository.Tx, doc *model.DocumentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[doc.ID] = *doc
	return nil
}

func (m *memDocs) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.DocumentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

type memResults struct {
	mu    sync.RWMutex
	store map[string]*model.ExtractionResult
}

func newMemResults() *memResults { return &memResults{store: make(map[string]*model.ExtractionResult)} }

func (m *memResults) Save(ctx context.Context, tx repository.Tx, res *model.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[res.JobID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *res
	m.store[res.JobID] = &cp
	return nil
}

func (m *memResults) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.ExtractionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type memMappings struct {
	mu    sync.RWMutex
	store map[string][]model.ControlMapping
}

func newMemMappings() *memMappings { return &memMappings{store: make(map[string][]model.ControlMapping)} }

func (m *memMappings) SaveAll(ctx context.Context, tx repository.Tx, jobID string, rows []model.ControlMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[jobID] = append([]model.ControlMapping(nil), rows...)
	return nil
}

func (m *memMappings) ListByJobID(ctx context.Context, tx repository.Tx, jobID string) ([]model.ControlMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ControlMapping(nil), m.store[jobID]...), nil
}

type memEvents struct {
	mu    sync.RWMutex
	store map[string][]model.ProgressEvent
}

func newMemEvents() *memEvents { return &memEvents{store: make(map[string][]model.ProgressEvent)} }

func (m *memEvents) Append(ctx context.Context, tx repository.Tx, ev *model.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[ev.JobID] = append(m.store[ev.JobID], *ev)
	return nil
}

func (m *memEvents) ListByJobID(ctx context.Context, tx repository.Tx, jobID string) ([]model.ProgressEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := append([]model.ProgressEvent(nil), m.store[jobID]...)
	sort.Slice(evs, func(i, k int) bool { return evs[i].Seq < evs[k].Seq })
	return evs, nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (p *memPublisher) Publish(ctx context.Context, ev model.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// nopTxManager runs the function outside any real transaction; the mem
// repositories ignore the tx handle anyway.
type nopTxManager struct{}

func (nopTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// rangeScript describes how the fake extractor answers successive attempts
// for one sub-range index. Attempts past the end of the script repeat the
// last entry.
type rangeScript struct {
	errs     []error // nil entry means respond with a payload
	badJSON  bool    // respond with schema-invalid payload instead
	block    bool    // block until ctx is done
	delay    time.Duration
	topic    string
	perRange int // controls per response, default 1
	evidence int // evidence page override, default the range's first page
	served   int
}

type scriptExtractor struct {
	mu      sync.Mutex
	scripts map[int]*rangeScript
	calls   int
}

func newScriptExtractor() *scriptExtractor {
	return &scriptExtractor{scripts: make(map[int]*rangeScript)}
}

func (s *scriptExtractor) script(idx int) *rangeScript {
	sc, ok := s.scripts[idx]
	if !ok {
		sc = &rangeScript{}
		s.scripts[idx] = sc
	}
	return sc
}

func (s *scriptExtractor) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptExtractor) Extract(ctx context.Context, req adapter.ExtractRequest) (*adapter.ExtractResponse, error) {
	s.mu.Lock()
	sc := s.script(req.SubRange.Index)
	s.calls++
	var scripted error
	if len(sc.errs) > 0 {
		scripted = sc.errs[attemptFor(sc)]
	}
	block, delay, badJSON := sc.block, sc.delay, sc.badJSON
	topic, per, evidence := sc.topic, sc.perRange, sc.evidence
	sc.served++
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if scripted != nil {
		return nil, scripted
	}

	usage := adapter.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}
	if badJSON {
		return &adapter.ExtractResponse{Payload: []byte(`{"controls":[{"description":"missing id"}]}`), Usage: usage}, nil
	}
	if per <= 0 {
		per = 1
	}
	if topic == "" {
		topic = "encryption"
	}
	if evidence == 0 {
		evidence = req.SubRange.FirstPage
	}
	var p model.RangePayload
	for i := 0; i < per; i++ {
		p.Controls = append(p.Controls, model.ControlRecord{
			ControlID:   fmt.Sprintf("CC%d.%d", req.SubRange.Index, i+1),
			Description: "data at rest is protected with strong encryption",
			Topic:       topic,
			Evidence:    model.EvidenceLocator{Page: evidence},
		})
	}
	b, _ := json.Marshal(p)
	return &adapter.ExtractResponse{Payload: b, Usage: usage}, nil
}

func (s *scriptExtractor) CountTokens(ctx context.Context, req adapter.ExtractRequest) (int, error) {
	return req.SubRange.Pages(), nil
}

func attemptFor(sc *rangeScript) int {
	if sc.served < len(sc.errs) {
		return sc.served
	}
	return len(sc.errs) - 1
}

var errBoundaryDown = errors.New("boundary unavailable")

// fakeClock makes backoff instantaneous while recording each pause.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
