package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/datallboy/gotube/internal/domain"
)

// runJob executes one admitted job through the retry loop. It is the only
// place that sets the running flag, and its deferred cleanup releases the
// running slot exactly once on every exit path, panics included.
func (m *Manager) runJob(ctx context.Context, job *domain.Job, outDir string) {
	terminal := false

	runCtx, cancel := context.WithCancel(ctx)
	job.BindRun(cancel)
	job.SetRunning(true)

	defer func() {
		if r := recover(); r != nil {
			m.app.Logger.Error("[Runner] Job %s panicked: %v", job.ID, r)
			if !terminal {
				job.EmitError(fmt.Sprintf("internal error: %v", r), domain.StatusFailed)
			}
		}

		job.UnbindRun()
		cancel()
		job.SetRunning(false)
		m.release(job)
	}()

	job.SetStatus(domain.StatusStarting)
	job.EmitStatus("Starting…")
	job.StartProgress(unknownSpeed, unknownETA, unknownSize)

	m.app.Logger.Info("[Runner] Job %s started: %s (%s)", job.ID, job.Title, job.Format)

	var lastErr error

	for attempt := 1; attempt <= job.MaxRetries; attempt++ {
		job.IncRetries()

		if job.IsCanceled() {
			lastErr = domain.ErrCanceled
			break
		}

		if attempt > 1 {
			job.SetStatus(domain.StatusStarting)
			job.EmitStatus(fmt.Sprintf("Retrying (%d/%d)…", attempt, job.MaxRetries))

			if err := sleepCtx(runCtx, backoff(attempt-1, m.opts.BackoffBase, m.opts.BackoffMax)); err != nil {
				lastErr = err
				break
			}
		}

		cfg := BuildPipelineConfig(job, outDir, m.app.Tools)

		res, err := m.attempt(runCtx, job, cfg)
		if err == nil && job.IsCanceled() {
			// Canceled after the last hook call, e.g. during conversion
			lastErr = domain.ErrCanceled
			break
		}
		if err == nil {
			path := m.resolvePath(job, res, outDir)
			m.tag(job, path)
			terminal = true
			job.EmitDone(path)
			m.app.Logger.Info("[Runner] Job %s completed: %s", job.ID, path)
			return
		}

		lastErr = err

		if job.IsCanceled() || errors.Is(err, domain.ErrCanceled) {
			break
		}

		if ctx.Err() != nil {
			break
		}

		if !IsRetryable(err) {
			m.app.Logger.Error("[Runner] Job %s failed permanently: %v", job.ID, err)
			break
		}

		if attempt < job.MaxRetries {
			m.app.Logger.Warn("[Retry] Job %s: Attempt %d/%d - Error: %v", job.ID, attempt, job.MaxRetries, err)
		}
	}

	terminal = true

	switch {
	case job.IsCanceled():
		job.EmitError(domain.ErrCanceled.Error(), domain.StatusCanceled)
		m.app.Logger.Info("[Runner] Job %s canceled", job.ID)
	case ctx.Err() != nil:
		// Manager shutdown, not a job outcome. The job stays queued in the
		// store and is picked up again on the next start.
		terminal = false
		job.SetStatus(domain.StatusQueued)
		job.EmitStatus("Interrupted")
		m.app.Logger.Info("[Runner] Job %s interrupted by shutdown", job.ID)
	default:
		msg := "download failed"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		job.EmitError(msg, domain.StatusFailed)
		m.app.Logger.Error("[Runner] Job %s failed after %d attempt(s): %s", job.ID, job.Retries(), msg)
	}
}

// attempt runs the pipeline once, bounded by the per-attempt timeout when set.
func (m *Manager) attempt(ctx context.Context, job *domain.Job, cfg domain.PipelineConfig) (*domain.PipelineResult, error) {
	if m.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.JobTimeout)
		defer cancel()
	}

	m.app.Logger.Debug("[Runner] Job %s: pipeline format=%q out=%s", job.ID, cfg.FormatSelector, cfg.OutputDir)

	res, err := m.app.Pipeline.Run(ctx, cfg, m.newHook(ctx, job))
	if err != nil {
		// A pipeline killed by the attempt deadline reports a generic exit error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	return res, nil
}

// resolvePath falls back to the expected file name when the pipeline did not
// report where it wrote the output.
func (m *Manager) resolvePath(job *domain.Job, res *domain.PipelineResult, outDir string) string {
	if res != nil && res.Path != "" {
		return res.Path
	}
	return filepath.Join(outDir, job.Title+"."+job.Format.Extension())
}

func (m *Manager) tag(job *domain.Job, path string) {
	if !m.opts.TagAudio || m.app.Tagger == nil || job.Format != domain.FormatAudio {
		return
	}
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return
	}

	meta := domain.TrackMeta{Title: job.Title, Artist: job.Channel}
	if err := m.app.Tagger.Tag(path, meta); err != nil {
		m.app.Logger.Warn("[Tagger] Job %s: could not tag %s: %v", job.ID, path, err)
	}
}
