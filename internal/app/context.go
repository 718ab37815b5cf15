package app

import (
	"context"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/infra/config"
	"github.com/datallboy/gotube/internal/infra/logger"
	"github.com/datallboy/gotube/internal/platform"
	"github.com/spf13/afero"
)

type Pipeline interface {
	// Run performs one download synchronously. The hook is called on the
	// caller's goroutine; a hook error aborts the run and is returned.
	Run(ctx context.Context, cfg domain.PipelineConfig, hook domain.ProgressHook) (*domain.PipelineResult, error)
}

type JobStore interface {
	SaveJob(s *domain.JobSnapshot) error
	GetJob(id string) (*domain.JobSnapshot, error)
	ListJobs(limit int) ([]*domain.JobSnapshot, error)
	ListUnfinishedJobs() ([]*domain.JobSnapshot, error)
	Close() error
}

type Tagger interface {
	// Tag writes metadata into a finished file. Unsupported files are skipped.
	Tag(path string, meta domain.TrackMeta) error
}

// Context holds the core environment and shared resources for gotube.
// It is built once at startup and passed down instead of package globals.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Pipeline Pipeline
	Store    JobStore
	Notifier domain.Notifier
	Tagger   Tagger

	// Probed once at startup, read-only afterwards
	Tools platform.Tools

	Fs afero.Fs
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config:   cfg,
		Logger:   log,
		Notifier: domain.NopNotifier,
		Fs:       afero.NewOsFs(),
	}
}
