package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobValidation(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())

	_, err := h.m.CreateJob(domain.Request{URL: "  ", Format: "audio"})
	assert.ErrorIs(t, err, domain.ErrMissingURL)

	_, err = h.m.CreateJob(domain.Request{URL: "https://youtu.be/x", Format: "flac"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = h.m.CreateJob(domain.Request{URL: "https://youtu.be/x", Format: "video", VideoQuality: "huge"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuality)
}

func TestCreateJobDefaults(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())

	job, err := h.m.CreateJob(domain.Request{
		URL:      "https://youtu.be/abc",
		Channel:  "Some Channel",
		Duration: "3:45",
		Format:   "mp4",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.FormatVideo, job.Format)
	assert.Equal(t, domain.DefaultTitle, job.Title)
	assert.Equal(t, domain.QualityBest, job.VideoQuality)
	assert.Equal(t, domain.QualityBest, job.AudioQuality)
	assert.Equal(t, 192, job.BitrateKbps)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, "Some Channel • 3:45 • MP4 • Best", job.Subtitle)
	assert.Equal(t, domain.StatusCreated, job.Status())

	got, ok := h.m.Job(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
}

func TestCreateJobNormalizesQuality(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())

	job, err := h.m.CreateJob(domain.Request{
		URL:          "https://youtu.be/abc",
		Format:       "video",
		VideoQuality: "1080p",
		AudioQuality: "160kbps",
	})
	require.NoError(t, err)

	assert.Equal(t, "1080", job.VideoQuality)
	assert.Equal(t, "160", job.AudioQuality)
	assert.Contains(t, job.Subtitle, "MP4 • 1080p")
}

func TestSubmitRejectsActiveAndCanceled(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())

	job, err := h.m.CreateJob(domain.Request{URL: "u1", Format: "audio"})
	require.NoError(t, err)

	require.NoError(t, h.m.Submit(job))
	assert.ErrorIs(t, h.m.Submit(job), domain.ErrJobActive)
	assert.Equal(t, []string{job.ID}, h.m.Pending())

	require.True(t, h.m.Cancel(job.ID))
	assert.ErrorIs(t, h.m.Submit(job), domain.ErrJobCanceled)
}

func TestUnknownJobIsNoop(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())

	assert.False(t, h.m.Pause("missing"))
	assert.False(t, h.m.Resume("missing"))
	assert.False(t, h.m.Cancel("missing"))
}

func TestSetConcurrencyClamps(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())

	h.m.SetConcurrency(0)
	assert.Equal(t, 1, h.m.Concurrency())

	h.m.SetConcurrency(-5)
	assert.Equal(t, 1, h.m.Concurrency())

	h.m.SetConcurrency(4)
	assert.Equal(t, 4, h.m.Concurrency())
}

func TestSetDownloadDirAppliesToNewJobs(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())
	h.start(t)

	require.Error(t, h.m.SetDownloadDir(""))
	require.NoError(t, h.m.SetDownloadDir("/music/new"))

	exists, err := afero.DirExists(h.app.Fs, "/music/new")
	require.NoError(t, err)
	assert.True(t, exists)

	job := h.submit(t, "u1")
	ev := h.waitTerminal(t, job)

	assert.Equal(t, domain.EventDone, ev.Kind)
	assert.Equal(t, "/music/new", h.pipeline.lastConfig().OutputDir)
	assert.Equal(t, "/music/new/track.mp3", ev.Path)
}

func TestConcurrencyBound(t *testing.T) {
	g := newGate()
	p := &fakePipeline{run: func(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
		if err := g.wait(ctx, cfg.URL); err != nil {
			return nil, err
		}
		return okResult(cfg), nil
	}}

	h := newHarness(t, p, testOptions())
	h.start(t)

	var jobs []*domain.Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, h.submit(t, fmt.Sprintf("u%d", i)))
	}

	require.Eventually(t, func() bool {
		return len(h.m.Running()) == 2 && p.active.Load() == 2
	}, time.Second, time.Millisecond)

	// Wait a few wake intervals, the bound must hold
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, h.m.Running(), 2)
	assert.Len(t, h.m.Pending(), 4)

	for i := range jobs {
		g.release(fmt.Sprintf("u%d", i))
	}
	for _, j := range jobs {
		assert.Equal(t, domain.EventDone, h.waitTerminal(t, j).Kind)
	}

	assert.EqualValues(t, 2, p.maxActive.Load())
	assert.Empty(t, h.m.Running())
	assert.Empty(t, h.m.Pending())
}

func TestFiveJobsTwoSlotsFIFO(t *testing.T) {
	g := newGate()
	p := &fakePipeline{run: func(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
		if err := g.wait(ctx, cfg.URL); err != nil {
			return nil, err
		}
		return okResult(cfg), nil
	}}

	h := newHarness(t, p, testOptions())
	h.start(t)

	jobs := make([]*domain.Job, 5)
	for i := range jobs {
		jobs[i] = h.submit(t, fmt.Sprintf("u%d", i))
	}
	ids := func(idx ...int) []string {
		var out []string
		for _, i := range idx {
			out = append(out, jobs[i].ID)
		}
		return out
	}

	require.Eventually(t, func() bool {
		return len(h.m.Running()) == 2
	}, time.Second, time.Millisecond)
	assert.ElementsMatch(t, ids(0, 1), h.m.Running())
	assert.Equal(t, ids(2, 3, 4), h.m.Pending())

	// Each finished job frees exactly one slot for the next queued job
	g.release("u0")
	h.waitTerminal(t, jobs[0])
	require.Eventually(t, func() bool {
		return len(h.m.Running()) == 2
	}, time.Second, time.Millisecond)
	assert.ElementsMatch(t, ids(1, 2), h.m.Running())
	assert.Equal(t, ids(3, 4), h.m.Pending())

	g.release("u2")
	h.waitTerminal(t, jobs[2])
	require.Eventually(t, func() bool {
		return len(h.m.Running()) == 2
	}, time.Second, time.Millisecond)
	assert.ElementsMatch(t, ids(1, 3), h.m.Running())
	assert.Equal(t, ids(4), h.m.Pending())

	for _, u := range []string{"u1", "u3", "u4"} {
		g.release(u)
	}
	for _, j := range jobs {
		h.waitTerminal(t, j)
	}
}

func TestFIFOAdmissionSingleSlot(t *testing.T) {
	p := &fakePipeline{}
	opts := testOptions()
	opts.Concurrency = 1
	h := newHarness(t, p, opts)

	var jobs []*domain.Job
	for i := 0; i < 5; i++ {
		jobs = append(jobs, h.submit(t, fmt.Sprintf("u%d", i)))
	}

	h.start(t)
	for _, j := range jobs {
		h.waitTerminal(t, j)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"u0", "u1", "u2", "u3", "u4"}, p.calls)
}

func TestCancelPendingJob(t *testing.T) {
	g := newGate()
	p := &fakePipeline{run: func(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
		if err := g.wait(ctx, cfg.URL); err != nil {
			return nil, err
		}
		return okResult(cfg), nil
	}}
	opts := testOptions()
	opts.Concurrency = 1
	h := newHarness(t, p, opts)
	h.start(t)

	first := h.submit(t, "u1")
	second := h.submit(t, "u2")

	require.Eventually(t, func() bool {
		return contains(h.m.Running(), first.ID)
	}, time.Second, time.Millisecond)

	require.True(t, h.m.Cancel(second.ID))

	ev, ok := h.rec.terminal(second.ID)
	require.True(t, ok, "pending job must fail immediately")
	assert.Equal(t, domain.EventError, ev.Kind)
	assert.Equal(t, "Canceled by user", ev.Message)
	assert.Equal(t, domain.StatusCanceled, second.Status())
	assert.Empty(t, h.m.Pending())

	g.release("u1")
	h.waitTerminal(t, first)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, p.callCount("u2"))
	assert.Equal(t, 1, h.rec.count(second.ID, domain.EventError))
}

func TestResumeResubmitsIdleJob(t *testing.T) {
	h := newHarness(t, &fakePipeline{}, testOptions())
	h.start(t)

	job, err := h.m.CreateJob(domain.Request{URL: "u1", Format: "audio"})
	require.NoError(t, err)

	require.True(t, h.m.Pause(job.ID))
	assert.True(t, job.IsPaused())

	require.True(t, h.m.Resume(job.ID))
	assert.False(t, job.IsPaused())

	ev := h.waitTerminal(t, job)
	assert.Equal(t, domain.EventDone, ev.Kind)
	assert.Contains(t, h.rec.statuses(job.ID), "Paused")
	assert.Contains(t, h.rec.statuses(job.ID), "Resumed")
	assert.Equal(t, 1, h.pipeline.callCount("u1"))
}

func TestRetryResubmitsFailedJob(t *testing.T) {
	calls := 0
	p := &fakePipeline{run: func(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("ERROR: Unsupported URL")
		}
		return okResult(cfg), nil
	}}
	h := newHarness(t, p, testOptions())
	h.start(t)

	job := h.submit(t, "u1")
	ev := h.waitTerminal(t, job)
	require.Equal(t, domain.EventError, ev.Kind)
	assert.Equal(t, domain.StatusFailed, job.Status())

	require.NoError(t, h.m.Retry(job.ID))
	require.Eventually(t, func() bool {
		return h.rec.count(job.ID, domain.EventDone) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, domain.StatusCompleted, job.Status())

	assert.Error(t, h.m.Retry(job.ID), "completed jobs are not retried")
	assert.Error(t, h.m.Retry("missing"))
}

func TestRestoreRequeuesUnfinishedJobs(t *testing.T) {
	store := newMemStore()
	store.jobs["2a"] = &domain.JobSnapshot{
		ID: "2a", URL: "u-restored", Title: "Restored", Format: "audio",
		BitrateKbps: 128, VideoQuality: "best", AudioQuality: "best",
		Status: domain.StatusDownloading, CreatedAt: time.Now(),
	}

	h := newHarness(t, &fakePipeline{}, testOptions())
	h.app.Store = store

	n, err := h.m.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, ok := h.m.Job("2a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, job.Status())

	h.start(t)
	ev := h.waitTerminal(t, job)
	assert.Equal(t, domain.EventDone, ev.Kind)

	require.Eventually(t, func() bool {
		s, err := store.GetJob("2a")
		return err == nil && s != nil && s.Status == domain.StatusCompleted
	}, time.Second, time.Millisecond)
}

func TestShutdownLeavesJobQueued(t *testing.T) {
	p := &fakePipeline{run: func(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, p, testOptions())
	h.start(t)

	job := h.submit(t, "u1")
	require.Eventually(t, func() bool {
		return job.IsRunning()
	}, time.Second, time.Millisecond)

	h.stop()

	_, ok := h.rec.terminal(job.ID)
	assert.False(t, ok)
	assert.Equal(t, domain.StatusQueued, job.Status())
	assert.Contains(t, h.rec.statuses(job.ID), "Interrupted")
	assert.Empty(t, h.m.Running())
}
