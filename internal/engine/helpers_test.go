package engine

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datallboy/gotube/internal/app"
	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/infra/config"
	"github.com/datallboy/gotube/internal/infra/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type runFunc func(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error)

// fakePipeline records calls and tracks how many runs overlap.
type fakePipeline struct {
	run runFunc

	mu      sync.Mutex
	calls   []string
	configs []domain.PipelineConfig

	active    atomic.Int32
	maxActive atomic.Int32
}

func (p *fakePipeline) Run(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, cfg.URL)
	p.configs = append(p.configs, cfg)
	p.mu.Unlock()

	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		cur := p.maxActive.Load()
		if n <= cur || p.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	if p.run == nil {
		return okResult(cfg), nil
	}
	return p.run(ctx, cfg, hook)
}

func (p *fakePipeline) callCount(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (p *fakePipeline) lastConfig() domain.PipelineConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configs[len(p.configs)-1]
}

func okResult(cfg domain.PipelineConfig) *domain.PipelineResult {
	ext := "mp4"
	if cfg.Audio != nil {
		ext = "mp3"
	}
	return &domain.PipelineResult{Path: filepath.Join(cfg.OutputDir, "track."+ext)}
}

// recorder is a Notifier that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Notify(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) forJob(id string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.JobID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) count(id string, kind domain.EventKind) int {
	n := 0
	for _, ev := range r.forJob(id) {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) statuses(id string) []string {
	var out []string
	for _, ev := range r.forJob(id) {
		if ev.Kind == domain.EventStatus {
			out = append(out, ev.Message)
		}
	}
	return out
}

func (r *recorder) progress(id string) []domain.Event {
	var out []domain.Event
	for _, ev := range r.forJob(id) {
		if ev.Kind == domain.EventProgress {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) terminal(id string) (domain.Event, bool) {
	for _, ev := range r.forJob(id) {
		if ev.Terminal() {
			return ev, true
		}
	}
	return domain.Event{}, false
}

func testOptions() Options {
	return Options{
		OutDir:             "/downloads",
		Concurrency:        2,
		MaxRetries:         3,
		DefaultBitrateKbps: 192,
		ProgressInterval:   20 * time.Millisecond,
		PausePollInterval:  2 * time.Millisecond,
		WakeInterval:       50 * time.Millisecond,
		BackoffBase:        time.Millisecond,
		BackoffMax:         4 * time.Millisecond,
	}
}

type harness struct {
	m        *Manager
	rec      *recorder
	pipeline *fakePipeline
	app      *app.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHarness(t *testing.T, p *fakePipeline, opts Options) *harness {
	t.Helper()

	rec := &recorder{}
	appCtx := app.NewContext(config.Default(), logger.Nop())
	appCtx.Pipeline = p
	appCtx.Notifier = rec
	appCtx.Fs = afero.NewMemMapFs()

	return &harness{
		m:        NewManager(appCtx, opts),
		rec:      rec,
		pipeline: p,
		app:      appCtx,
	}
}

// start runs the scheduler until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		h.m.Start(ctx)
	}()

	t.Cleanup(h.stop)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func (h *harness) submit(t *testing.T, url string) *domain.Job {
	t.Helper()
	job, err := h.m.CreateJob(domain.Request{URL: url, Title: url, Format: "audio"})
	require.NoError(t, err)
	require.NoError(t, h.m.Submit(job))
	return job
}

func (h *harness) waitTerminal(t *testing.T, job *domain.Job) domain.Event {
	t.Helper()
	var ev domain.Event
	require.Eventually(t, func() bool {
		var ok bool
		ev, ok = h.rec.terminal(job.ID)
		return ok
	}, 2*time.Second, 2*time.Millisecond, "job %s never finished", job.ID)

	// Cleanup runs right after the terminal event
	require.Eventually(t, func() bool {
		return !contains(h.m.Running(), job.ID)
	}, time.Second, time.Millisecond)
	return ev
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// gate blocks pipeline runs per URL until released.
type gate struct {
	mu sync.Mutex
	ch map[string]chan struct{}
}

func newGate() *gate { return &gate{ch: make(map[string]chan struct{})} }

func (g *gate) wait(ctx context.Context, url string) error {
	g.mu.Lock()
	c, ok := g.ch[url]
	if !ok {
		c = make(chan struct{})
		g.ch[url] = c
	}
	g.mu.Unlock()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.ch[url]
	if !ok {
		c = make(chan struct{})
		g.ch[url] = c
	}
	close(c)
}

// memStore is an in-memory app.JobStore.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.JobSnapshot
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*domain.JobSnapshot)}
}

func (s *memStore) SaveJob(snap *domain.JobSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.jobs[snap.ID] = &cp
	return nil
}

func (s *memStore) GetJob(id string) (*domain.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (s *memStore) ListJobs(limit int) ([]*domain.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.JobSnapshot
	for _, snap := range s.jobs {
		cp := *snap
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) ListUnfinishedJobs() ([]*domain.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.JobSnapshot
	for _, snap := range s.jobs {
		if !snap.Status.IsFinished() && snap.Status != domain.StatusCreated {
			cp := *snap
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }
