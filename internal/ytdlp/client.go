package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/infra/logger"
	"golang.org/x/sync/errgroup"
)

// Client runs yt-dlp as a subprocess. It implements app.Pipeline.
type Client struct {
	binary string
	ffmpeg string
	log    *logger.Logger

	// pipeGrace bounds how long output is drained after the run is canceled.
	// Children of yt-dlp (ffmpeg) can keep the pipes open past its death.
	pipeGrace time.Duration
}

func NewClient(binary, ffmpegPath string, log *logger.Logger) *Client {
	if binary == "" {
		binary = "yt-dlp"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{binary: binary, ffmpeg: ffmpegPath, log: log, pipeGrace: 5 * time.Second}
}

// Version returns the output of `yt-dlp --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, "--version")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Run downloads cfg.URL, calling hook for every progress report. Hook calls
// are serialized. A hook error kills yt-dlp and is returned as is.
func (c *Client) Run(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("video URL is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := BuildArgs(cfg, c.ffmpeg)
	c.log.Debug("[yt-dlp] %s %s", c.binary, strings.Join(args, " "))

	cmd := exec.CommandContext(runCtx, c.binary, args...)
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-runCtx.Done():
		}

		grace := time.NewTimer(c.pipeGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			c.log.Debug("[yt-dlp] output still open after cancel, closing pipes")
			stdoutPipe.Close()
			stderrPipe.Close()
		}
	}()

	var (
		mu       sync.Mutex
		hookMu   sync.Mutex
		hookErr  error
		path     string
		errLines []string
	)

	handle := func(line string) {
		switch {
		case strings.HasPrefix(line, progressMarker):
			ev, ok := parseProgress(strings.TrimPrefix(line, progressMarker))
			if !ok {
				c.log.Debug("[yt-dlp] unparsable progress: %s", line)
				return
			}

			hookMu.Lock()
			defer hookMu.Unlock()
			if hookErr != nil || hook == nil {
				return
			}
			if err := hook(ev); err != nil {
				hookErr = err
				cancel()
			}
		case strings.HasPrefix(line, fileMarker):
			mu.Lock()
			path = strings.TrimSpace(strings.TrimPrefix(line, fileMarker))
			mu.Unlock()
		case strings.HasPrefix(line, "ERROR:"):
			mu.Lock()
			errLines = append(errLines, line)
			mu.Unlock()
			c.log.Debug("[yt-dlp] %s", line)
		case strings.HasPrefix(line, "WARNING:"):
			c.log.Debug("[yt-dlp] %s", line)
		}
	}

	var g errgroup.Group
	g.Go(func() error { return scanLines(stdoutPipe, handle) })
	g.Go(func() error { return scanLines(stderrPipe, handle) })
	readErr := g.Wait()

	waitErr := cmd.Wait()

	hookMu.Lock()
	herr := hookErr
	hookMu.Unlock()
	if herr != nil {
		return nil, herr
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("yt-dlp interrupted: %w", ctx.Err())
	}

	if waitErr != nil {
		mu.Lock()
		defer mu.Unlock()
		return nil, pipelineError(errLines, waitErr)
	}

	if readErr != nil {
		c.log.Warn("[yt-dlp] output read error: %v", readErr)
	}

	mu.Lock()
	defer mu.Unlock()
	return &domain.PipelineResult{Path: path}, nil
}

func scanLines(r io.Reader, handle func(string)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	scanner.Split(splitByNewlineOrCR)

	for scanner.Scan() {
		handle(scanner.Text())
	}
	return scanner.Err()
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
