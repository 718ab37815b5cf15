package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/spf13/cobra"
)

const pollInterval = 500 * time.Millisecond

type getOptions struct {
	format       string
	bitrate      int
	videoQuality string
	audioQuality string
	outDir       string
	concurrency  int
}

func newGetCmd(root *rootOptions) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <url>...",
		Short: "Download one or more URLs and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			// Progress owns the terminal
			cfg.Log.IncludeStdout = false
			if opts.outDir != "" {
				cfg.Download.OutDir = opts.outDir
			}
			if opts.concurrency > 0 {
				cfg.Download.Concurrency = opts.concurrency
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			events, unsubscribe := rt.bus.Subscribe()
			defer unsubscribe()

			var jobs []*domain.Job
			for _, url := range args {
				job, err := rt.mgr.CreateJob(domain.Request{
					URL:              url,
					Format:           opts.format,
					AudioBitrateKbps: opts.bitrate,
					VideoQuality:     opts.videoQuality,
					AudioQuality:     opts.audioQuality,
				})
				if err != nil {
					return fmt.Errorf("%s: %w", url, err)
				}
				jobs = append(jobs, job)
			}

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				rt.mgr.Start(runCtx)
				close(done)
			}()

			for _, job := range jobs {
				if err := rt.mgr.Submit(job); err != nil {
					cancel()
					<-done
					return err
				}
			}

			failed := waitForJobs(ctx, cmd.OutOrStdout(), events, jobs)

			cancel()
			<-done

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d download(s) failed", failed, len(jobs))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", "audio", "audio (mp3) or video (mp4)")
	f.IntVarP(&opts.bitrate, "bitrate", "b", 0, "mp3 bitrate in kbps (default from config)")
	f.StringVarP(&opts.videoQuality, "quality", "q", "best", "max video height, e.g. 1080p")
	f.StringVar(&opts.audioQuality, "audio-quality", "best", "max source audio bitrate, e.g. 160k")
	f.StringVarP(&opts.outDir, "out", "o", "", "output directory (default from config)")
	f.IntVarP(&opts.concurrency, "jobs", "j", 0, "parallel downloads (default from config)")

	return cmd
}

// waitForJobs prints events for the given jobs until each has reached a
// terminal event, and returns how many failed. If the bus drops this
// subscriber, the remaining jobs are polled instead.
func waitForJobs(ctx context.Context, w io.Writer, events <-chan domain.Event, jobs []*domain.Job) int {
	titles := make(map[string]string, len(jobs))
	for _, j := range jobs {
		titles[j.ID] = j.URL
	}

	finished := make(map[string]bool, len(jobs))
	failed := 0
	finish := func(id string, ok bool) {
		if finished[id] {
			return
		}
		finished[id] = true
		if !ok {
			failed++
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for len(finished) < len(jobs) {
		select {
		case <-ctx.Done():
			return failed
		case ev, ok := <-events:
			if !ok {
				fmt.Fprintln(w, "event stream lagged, polling job state")
				events = nil
				continue
			}
			name, mine := titles[ev.JobID]
			if !mine {
				continue
			}

			printEvent(w, name, ev)

			if ev.Terminal() {
				finish(ev.JobID, ev.Kind == domain.EventDone)
			}
		case <-ticker.C:
			if events != nil {
				continue
			}
			for _, j := range jobs {
				if st := j.Status(); st.IsFinished() && !finished[j.ID] {
					snap := j.Snapshot()
					if st == domain.StatusCompleted {
						fmt.Fprintf(w, "%s  done: %s\n", j.URL, snap.OutputPath)
					} else {
						fmt.Fprintf(w, "%s  error: %s\n", j.URL, snap.Error)
					}
					finish(j.ID, st == domain.StatusCompleted)
				}
			}
		}
	}
	return failed
}

func printEvent(w io.Writer, name string, ev domain.Event) {
	switch ev.Kind {
	case domain.EventProgress:
		fmt.Fprintf(w, "%s  %3d%%  %s  %s  ETA %s\n", name, ev.Percent, ev.Size, ev.Speed, ev.ETA)
	case domain.EventStatus:
		fmt.Fprintf(w, "%s  %s\n", name, ev.Message)
	case domain.EventDone:
		fmt.Fprintf(w, "%s  done: %s\n", name, ev.Path)
	case domain.EventError:
		fmt.Fprintf(w, "%s  error: %s\n", name, ev.Message)
	}
}
