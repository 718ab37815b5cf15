package engine

import (
	"context"
	"time"

	"github.com/datallboy/gotube/internal/domain"
)

// newHook builds the progress callback handed to the pipeline for one attempt.
// Only cancellation (or the run context ending) aborts the pipeline; anything
// else that goes wrong in here is logged and swallowed.
func (m *Manager) newHook(ctx context.Context, job *domain.Job) domain.ProgressHook {
	return func(ev domain.ProgressEvent) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.app.Logger.Warn("[Hook] Job %s: progress hook error: %v", job.ID, r)
				err = nil
			}
		}()

		if job.IsCanceled() {
			return domain.ErrCanceled
		}

		if err := m.waitWhilePaused(ctx, job); err != nil {
			return err
		}

		switch ev.Status {
		case domain.ProgressDownloading:
			if job.Status() != domain.StatusDownloading {
				job.SetStatus(domain.StatusDownloading)
			}
			total := ev.Total()
			job.ThrottleProgress(func() {
				job.EmitProgress(
					percentOf(ev.DownloadedBytes, total),
					FormatSpeed(ev.Speed),
					FormatETA(ev.ETA),
					formatSize(total),
				)
			})
		case domain.ProgressFinished:
			job.SetStatus(domain.StatusConverting)
			job.EmitStatus("Converting…")
		}

		return nil
	}
}

// waitWhilePaused blocks the pipeline while the pause flag is set, polling
// for resume and cancel. "Paused…" is emitted once per pause.
func (m *Manager) waitWhilePaused(ctx context.Context, job *domain.Job) error {
	if !job.IsPaused() {
		return nil
	}

	prev := job.Status()
	job.SetStatus(domain.StatusPaused)
	job.EmitStatus("Paused…")
	m.app.Logger.Debug("[Hook] Job %s paused", job.ID)

	ticker := time.NewTicker(m.opts.PausePollInterval)
	defer ticker.Stop()

	for job.IsPaused() {
		if job.IsCanceled() {
			return domain.ErrCanceled
		}

		select {
		case <-ctx.Done():
			if job.IsCanceled() {
				return domain.ErrCanceled
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if job.IsCanceled() {
		return domain.ErrCanceled
	}

	if prev == domain.StatusPaused {
		prev = domain.StatusDownloading
	}
	job.SetStatus(prev)
	m.app.Logger.Debug("[Hook] Job %s resumed", job.ID)
	return nil
}
