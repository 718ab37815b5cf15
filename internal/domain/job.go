package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"
)

type Format string

const (
	FormatAudio Format = "audio"
	FormatVideo Format = "video"
)

// ParseFormat accepts the canonical names and the container aliases mp3/mp4.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "mp3":
		return FormatAudio, nil
	case "video", "mp4":
		return FormatVideo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Extension is the container the pipeline produces for the format.
func (f Format) Extension() string {
	if f == FormatAudio {
		return "mp3"
	}
	return "mp4"
}

type JobStatus string

const (
	StatusCreated     JobStatus = "created"
	StatusQueued      JobStatus = "queued"
	StatusStarting    JobStatus = "starting"
	StatusDownloading JobStatus = "downloading"
	StatusPaused      JobStatus = "paused"
	StatusConverting  JobStatus = "converting"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCanceled    JobStatus = "canceled"
)

// IsFinished returns true for the terminal states
func (s JobStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// IsActive returns true while a runner owns the job
func (s JobStatus) IsActive() bool {
	switch s {
	case StatusStarting, StatusDownloading, StatusPaused, StatusConverting:
		return true
	}
	return false
}

const (
	QualityBest       = "best"
	DefaultMaxRetries = 3
	DefaultTitle      = "Untitled"
)

// Request is what a caller asks for. Zero values are filled in by the manager.
type Request struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle"`
	Channel          string `json:"channel"`
	Duration         string `json:"duration"`
	Format           string `json:"format"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps"`
	VideoQuality     string `json:"video_quality"`
	AudioQuality     string `json:"audio_quality"`
	OutputDir        string `json:"output_dir"`
}

// JobOptions carries the manager-level knobs every job is created with.
type JobOptions struct {
	Notifier         Notifier
	ProgressInterval time.Duration
	MaxRetries       int
}

// Job is one requested download. Request fields are immutable after creation;
// runtime state is either atomic or guarded by mu.
type Job struct {
	ID           string
	URL          string
	Title        string
	Subtitle     string
	Channel      string
	Format       Format
	BitrateKbps  int
	VideoQuality string
	AudioQuality string
	OutDir       string
	MaxRetries   int
	CreatedAt    time.Time

	paused   atomic.Bool
	canceled atomic.Bool
	running  atomic.Bool
	retries  atomic.Int32

	notifier Notifier
	interval time.Duration

	mu         sync.Mutex
	status     JobStatus
	lastErr    string
	outputPath string
	percent    int
	updatedAt  time.Time
	cancelRun  context.CancelFunc
	gate       *rate.Sometimes
}

// NewJob allocates a fresh identity for an already normalized request.
func NewJob(req Request, format Format, opts JobOptions) *Job {
	return newJob(ksuid.New().String(), req, format, time.Now(), opts)
}

// RestoreJob rebuilds a job from a persisted snapshot, keeping its identity.
func RestoreJob(s *JobSnapshot, opts JobOptions) (*Job, error) {
	format, err := ParseFormat(s.Format)
	if err != nil {
		return nil, err
	}
	req := Request{
		URL:              s.URL,
		Title:            s.Title,
		Subtitle:         s.Subtitle,
		Channel:          s.Channel,
		AudioBitrateKbps: s.BitrateKbps,
		VideoQuality:     s.VideoQuality,
		AudioQuality:     s.AudioQuality,
		OutputDir:        s.OutDir,
	}
	j := newJob(s.ID, req, format, s.CreatedAt, opts)
	j.status = s.Status
	j.lastErr = s.Error
	j.outputPath = s.OutputPath
	// A job paused before the restart stays paused until resumed
	j.paused.Store(s.Paused || s.Status == StatusPaused)
	return j, nil
}

func newJob(id string, req Request, format Format, created time.Time, opts JobOptions) *Job {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NopNotifier
	}
	return &Job{
		ID:           id,
		URL:          req.URL,
		Title:        req.Title,
		Subtitle:     req.Subtitle,
		Channel:      req.Channel,
		Format:       format,
		BitrateKbps:  req.AudioBitrateKbps,
		VideoQuality: req.VideoQuality,
		AudioQuality: req.AudioQuality,
		OutDir:       req.OutputDir,
		MaxRetries:   maxRetries,
		CreatedAt:    created,
		notifier:     notifier,
		interval:     opts.ProgressInterval,
		gate:         newGate(opts.ProgressInterval),
		status:       StatusCreated,
		updatedAt:    created,
	}
}

func (j *Job) RequestPause()  { j.paused.Store(true) }
func (j *Job) RequestResume() { j.paused.Store(false) }

// RequestCancel sets the one-way cancel flag and aborts the current run context, if any.
func (j *Job) RequestCancel() {
	j.canceled.Store(true)

	j.mu.Lock()
	cancel := j.cancelRun
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *Job) IsPaused() bool   { return j.paused.Load() }
func (j *Job) IsCanceled() bool { return j.canceled.Load() }
func (j *Job) IsRunning() bool  { return j.running.Load() }

// SetRunning is only called by the runner that owns the job.
func (j *Job) SetRunning(v bool) { j.running.Store(v) }

func (j *Job) Retries() int { return int(j.retries.Load()) }
func (j *Job) IncRetries() int { return int(j.retries.Add(1)) }
func (j *Job) ResetRetries() { j.retries.Store(0) }

// BindRun attaches the cancel function of the active run. A job canceled
// before the run started is aborted immediately.
func (j *Job) BindRun(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancelRun = cancel
	j.mu.Unlock()

	if j.IsCanceled() {
		cancel()
	}
}

func (j *Job) UnbindRun() {
	j.mu.Lock()
	j.cancelRun = nil
	j.mu.Unlock()
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) SetStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.updatedAt = time.Now()
	j.mu.Unlock()
}

// EmitProgress always emits. ThrottleProgress is the rate limited variant.
func (j *Job) EmitProgress(percent int, speed, eta, size string) {
	j.mu.Lock()
	j.percent = percent
	j.mu.Unlock()

	j.notifier.Notify(Event{
		JobID:   j.ID,
		Kind:    EventProgress,
		At:      time.Now(),
		Percent: percent,
		Speed:   speed,
		ETA:     eta,
		Size:    size,
	})
}

// StartProgress resets the throttle for a new run and emits the initial
// zero progress through it, so the first pipeline report still respects
// the interval.
func (j *Job) StartProgress(speed, eta, size string) {
	gate := newGate(j.interval)

	j.mu.Lock()
	j.gate = gate
	j.mu.Unlock()

	gate.Do(func() { j.EmitProgress(0, speed, eta, size) })
}

// ThrottleProgress runs emit at most once per progress interval.
// Calls inside the interval are dropped.
func (j *Job) ThrottleProgress(emit func()) {
	j.mu.Lock()
	gate := j.gate
	j.mu.Unlock()

	gate.Do(emit)
}

func newGate(interval time.Duration) *rate.Sometimes {
	if interval <= 0 {
		return &rate.Sometimes{Every: 1}
	}
	return &rate.Sometimes{Interval: interval}
}

func (j *Job) EmitStatus(msg string) {
	j.notifier.Notify(Event{JobID: j.ID, Kind: EventStatus, At: time.Now(), Message: msg})
}

// EmitDone records the final path and emits the terminal success event.
func (j *Job) EmitDone(path string) {
	j.mu.Lock()
	j.status = StatusCompleted
	j.outputPath = path
	j.lastErr = ""
	j.percent = 100
	j.updatedAt = time.Now()
	j.mu.Unlock()

	j.notifier.Notify(Event{JobID: j.ID, Kind: EventDone, At: time.Now(), Path: path})
}

// EmitError records the failure and emits the terminal error event.
func (j *Job) EmitError(msg string, status JobStatus) {
	j.mu.Lock()
	j.status = status
	j.lastErr = msg
	j.updatedAt = time.Now()
	j.mu.Unlock()

	j.notifier.Notify(Event{JobID: j.ID, Kind: EventError, At: time.Now(), Message: msg})
}

// JobSnapshot is a point in time copy of a job used by the store and the API.
type JobSnapshot struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Channel      string    `json:"channel,omitempty"`
	Format       string    `json:"format"`
	BitrateKbps  int       `json:"audio_bitrate_kbps"`
	VideoQuality string    `json:"video_quality"`
	AudioQuality string    `json:"audio_quality"`
	OutDir       string    `json:"output_dir,omitempty"`
	Status       JobStatus `json:"status"`
	Percent      int       `json:"percent"`
	Paused       bool      `json:"paused"`
	Canceled     bool      `json:"canceled"`
	Attempts     int       `json:"attempts"`
	MaxRetries   int       `json:"max_retries"`
	OutputPath   string    `json:"output_path,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (j *Job) Snapshot() *JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	return &JobSnapshot{
		ID:           j.ID,
		URL:          j.URL,
		Title:        j.Title,
		Subtitle:     j.Subtitle,
		Channel:      j.Channel,
		Format:       string(j.Format),
		BitrateKbps:  j.BitrateKbps,
		VideoQuality: j.VideoQuality,
		AudioQuality: j.AudioQuality,
		OutDir:       j.OutDir,
		Status:       j.status,
		Percent:      j.percent,
		Paused:       j.IsPaused(),
		Canceled:     j.IsCanceled(),
		Attempts:     j.Retries(),
		MaxRetries:   j.MaxRetries,
		OutputPath:   j.outputPath,
		Error:        j.lastErr,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.updatedAt,
	}
}
