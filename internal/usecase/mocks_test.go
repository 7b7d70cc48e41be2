package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory implementation used by unit tests.
type memJobRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.ExtractionJob
	saveErr error // used by tests to simulate save failures
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.ExtractionJob)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ExtractionJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FindActiveByFingerprint(ctx context.Context, tx repository.Tx, fp string) (*model.ExtractionJob, error) {
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

func (m *memJobRepo) FetchAndMarkSelecting(ctx context.Context) (*model.ExtractionJob, error) {
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

func (m *memJobRepo) ListNonTerminal(ctx context.Context, tx repository.Tx) ([]*model.ExtractionJob, error) {
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

type memEventRepo struct {
	mu    sync.RWMutex
	store map[string][]model.ProgressEvent
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{store: make(map[string][]model.ProgressEvent)}
}

func (m *memEventRepo) Append(ctx context.Context, tx repository.Tx, ev *model.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[ev.JobID] = append(m.store[ev.JobID], *ev)
	return nil
}

func (m *memEventRepo) ListByJobID(ctx context.Context, tx repository.Tx, jobID string) ([]model.ProgressEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := append([]model.ProgressEvent(nil), m.store[jobID]...)
	sort.Slice(evs, func(i, k int) bool { return evs[i].Seq < evs[k].Seq })
	return evs, nil
}

type memResultRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ExtractionResult
}

func newMemResultRepo() *memResultRepo {
	return &memResultRepo{store: make(map[string]*model.ExtractionResult)}
}

func (m *memResultRepo) Save(ctx context.Context, tx repository.Tx, res *model.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[res.JobID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *res
	m.store[res.JobID] = &cp
	return nil
}

func (m *memResultRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.ExtractionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type memMappingRepo struct {
	mu    sync.RWMutex
	store map[string][]model.ControlMapping
}

func newMemMappingRepo() *memMappingRepo {
	return &memMappingRepo{store: make(map[string][]model.ControlMapping)}
}

func (m *memMappingRepo) SaveAll(ctx context.Context, tx repository.Tx, jobID string, rows []model.ControlMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[jobID] = append([]model.ControlMapping(nil), rows...)
	return nil
}

func (m *memMappingRepo) ListByJobID(ctx context.Context, tx repository.Tx, jobID string) ([]model.ControlMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ControlMapping(nil), m.store[jobID]...), nil
}

type memDocRepo struct {
	mu    sync.RWMutex
	store map[string]model.DocumentRef
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{store: make(map[string]model.DocumentRef)}
}

func (m *memDocRepo) Save(ctx context.Context, tx repository.Tx, doc *model.DocumentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[doc.ID]; !ok {
		m.store[doc.ID] = *doc
	}
	return nil
}

func (m *memDocRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.DocumentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

// memLocker mimics the Redis SetNX lock.
type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	fail  bool
	token int
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]string)} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return "", domain.ErrJobAlreadyActive
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrJobAlreadyActive
	}
	l.token++
	tok := string(rune('a' + l.token))
	l.held[key] = tok
	return tok, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// memPublisher records published events and can simulate failures.
type memPublisher struct {
	mu     sync.Mutex
	events []model.ProgressEvent
	err    error
}

func (p *memPublisher) Publish(ctx context.Context, ev model.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *memPublisher) published() []model.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ProgressEvent(nil), p.events...)
}

// fakeClock advances only when Sleep is called and records each pause.
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
