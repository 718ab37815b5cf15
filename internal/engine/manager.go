package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/gotube/internal/app"
	"github.com/datallboy/gotube/internal/domain"
)

// Manager owns the job map, the pending FIFO and the running set, and runs
// the scheduler loop that admits pending jobs while capacity allows.
type Manager struct {
	app  *app.Context
	opts Options

	mu          sync.Mutex
	jobs        map[string]*domain.Job
	order       []*domain.Job
	pending     []*domain.Job
	running     map[string]*domain.Job
	concurrency int
	outDir      string

	wake chan struct{}
	wg   sync.WaitGroup
}

func NewManager(appCtx *app.Context, opts Options) *Manager {
	opts = opts.withDefaults()

	return &Manager{
		app:         appCtx,
		opts:        opts,
		jobs:        make(map[string]*domain.Job),
		running:     make(map[string]*domain.Job),
		concurrency: opts.Concurrency,
		outDir:      opts.OutDir,
		wake:        make(chan struct{}, 1),
	}
}

func (m *Manager) jobOptions() domain.JobOptions {
	return domain.JobOptions{
		Notifier:         m.app.Notifier,
		ProgressInterval: m.opts.ProgressInterval,
		MaxRetries:       m.opts.MaxRetries,
	}
}

// CreateJob validates and normalizes a request, registers the new job and
// returns it. The job is not queued until Submit.
func (m *Manager) CreateJob(req domain.Request) (*domain.Job, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, domain.ErrMissingURL
	}

	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}

	if req.VideoQuality, err = normalizeQuality(req.VideoQuality, "p"); err != nil {
		return nil, err
	}
	if req.AudioQuality, err = normalizeQuality(req.AudioQuality, "k"); err != nil {
		return nil, err
	}

	if req.AudioBitrateKbps <= 0 {
		req.AudioBitrateKbps = m.opts.DefaultBitrateKbps
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		req.Title = domain.DefaultTitle
	}

	if req.Subtitle == "" {
		req.Subtitle = composeSubtitle(req.Channel, req.Duration, format, req.VideoQuality)
	}

	job := domain.NewJob(req, format, m.jobOptions())

	m.mu.Lock()
	m.register(job)
	m.mu.Unlock()

	m.persist(job)

	return job, nil
}

// Submit appends the job to the pending queue and wakes the scheduler.
func (m *Manager) Submit(job *domain.Job) error {
	if job.IsCanceled() {
		return domain.ErrJobCanceled
	}

	m.mu.Lock()
	if m.isActiveLocked(job.ID) {
		m.mu.Unlock()
		return domain.ErrJobActive
	}

	m.register(job)
	job.ResetRetries()
	job.SetStatus(domain.StatusQueued)
	m.pending = append(m.pending, job)
	m.mu.Unlock()

	m.persist(job)
	m.app.Logger.Debug("[Queue] Job %s queued: %s", job.ID, job.URL)

	m.signal()
	return nil
}

// Retry resubmits a finished, non-canceled job under the same identity.
func (m *Manager) Retry(id string) error {
	job, ok := m.Job(id)
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status() == domain.StatusCompleted {
		return fmt.Errorf("job %s already completed", id)
	}
	return m.Submit(job)
}

func (m *Manager) Pause(id string) bool {
	job, ok := m.Job(id)
	if !ok {
		return false
	}

	job.RequestPause()
	job.EmitStatus("Paused")
	m.persist(job)
	return true
}

// Resume clears the pause flag. A paused job that is neither pending nor
// running is resubmitted; the pipeline continues partial files where it can.
func (m *Manager) Resume(id string) bool {
	job, ok := m.Job(id)
	if !ok {
		return false
	}

	wasPaused := job.IsPaused()
	job.RequestResume()

	m.mu.Lock()
	active := m.isActiveLocked(id)
	m.mu.Unlock()

	if wasPaused && !active && !job.IsCanceled() && job.Status() != domain.StatusCompleted {
		if err := m.Submit(job); err != nil {
			m.app.Logger.Warn("[Queue] Job %s: resume could not resubmit: %v", id, err)
		}
	}

	job.EmitStatus("Resumed")
	m.persist(job)
	return true
}

// Cancel sets the job's one-way cancel flag and aborts its run. A job that is
// still pending is dropped from the queue and fails immediately.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	removed := m.removePendingLocked(id)
	m.mu.Unlock()

	job.RequestCancel()
	job.EmitStatus("Canceled")

	if removed {
		job.EmitError(domain.ErrCanceled.Error(), domain.StatusCanceled)
		m.persist(job)
		m.app.Logger.Info("[Queue] Job %s canceled before start", id)
	}

	return true
}

// SetDownloadDir creates the directory and uses it for jobs not yet started.
func (m *Manager) SetDownloadDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("download directory cannot be empty")
	}

	if err := m.app.Fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	m.mu.Lock()
	m.outDir = path
	m.mu.Unlock()
	return nil
}

func (m *Manager) DownloadDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outDir
}

// SetConcurrency changes the running-set limit, clamped to at least 1.
// Jobs already running are not affected.
func (m *Manager) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}

	m.mu.Lock()
	m.concurrency = n
	m.mu.Unlock()

	m.signal()
}

func (m *Manager) Concurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.concurrency
}

// HasAccelerator reports the availability probed at startup.
func (m *Manager) HasAccelerator() bool {
	return m.app.Tools.HasAccelerator()
}

// Job looks up any job created or restored by this manager.
func (m *Manager) Job(id string) (*domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Jobs returns all known jobs in creation order.
func (m *Manager) Jobs() []*domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*domain.Job, len(m.order))
	copy(jobs, m.order)
	return jobs
}

// Pending returns the ids of queued jobs in admission order.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.pending))
	for i, j := range m.pending {
		ids[i] = j.ID
	}
	return ids
}

// Running returns the ids in the running set, in no particular order.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

// Restore requeues unfinished jobs from the store, oldest first.
// Call it before Start.
func (m *Manager) Restore() (int, error) {
	if m.app.Store == nil {
		return 0, nil
	}

	snaps, err := m.app.Store.ListUnfinishedJobs()
	if err != nil {
		return 0, fmt.Errorf("failed to load unfinished jobs: %w", err)
	}

	restored := 0
	for _, s := range snaps {
		job, err := domain.RestoreJob(s, m.jobOptions())
		if err != nil {
			m.app.Logger.Warn("[Queue] Skipping stored job %s: %v", s.ID, err)
			continue
		}
		if err := m.Submit(job); err != nil {
			m.app.Logger.Warn("[Queue] Could not requeue job %s: %v", s.ID, err)
			continue
		}
		restored++
	}

	return restored, nil
}

// Start runs the scheduler loop until ctx is done, then waits for the
// runners it started to return.
func (m *Manager) Start(ctx context.Context) {
	defer m.wg.Wait()

	for {
		m.admit(ctx)

		timer := time.NewTimer(m.opts.WakeInterval)
		select {
		case <-m.wake:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// admit moves pending jobs into the running set, FIFO, while there is
// capacity. The output directory is read under the same lock so a concurrent
// SetDownloadDir applies either fully or not at all to a job.
func (m *Manager) admit(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.running) < m.concurrency && len(m.pending) > 0 {
		if ctx.Err() != nil {
			return
		}

		job := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]

		outDir := job.OutDir
		if outDir == "" {
			outDir = m.outDir
		}

		m.running[job.ID] = job
		job.SetStatus(domain.StatusStarting)

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runJob(ctx, job, outDir)
		}()
	}
}

// release is the runner's cleanup: leave the running set, persist the
// outcome and wake the scheduler so the freed slot is reused right away.
func (m *Manager) release(job *domain.Job) {
	m.mu.Lock()
	delete(m.running, job.ID)
	m.mu.Unlock()

	m.persist(job)
	m.signal()
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}
}

func (m *Manager) register(job *domain.Job) {
	if _, ok := m.jobs[job.ID]; ok {
		return
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job)
}

func (m *Manager) isActiveLocked(id string) bool {
	if _, ok := m.running[id]; ok {
		return true
	}
	for _, j := range m.pending {
		if j.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) removePendingLocked(id string) bool {
	for i, j := range m.pending {
		if j.ID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) persist(job *domain.Job) {
	if m.app.Store == nil {
		return
	}
	if err := m.app.Store.SaveJob(job.Snapshot()); err != nil {
		m.app.Logger.Error("[Store] Failed to save job %s: %v", job.ID, err)
	}
}

// normalizeQuality accepts "best", "" or a positive number with an optional
// unit suffix ("1080p", "320k").
func normalizeQuality(q, suffix string) (string, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" || q == domain.QualityBest {
		return domain.QualityBest, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(q, "bps"), suffix))
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidQuality, q)
	}
	return strconv.Itoa(n), nil
}

func composeSubtitle(channel, duration string, format domain.Format, videoQuality string) string {
	quality := "Best"
	if videoQuality != domain.QualityBest {
		quality = videoQuality + "p"
	}
	return fmt.Sprintf("%s • %s • %s • %s", channel, duration, strings.ToUpper(format.Extension()), quality)
}
