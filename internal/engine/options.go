package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/infra/config"
	"github.com/datallboy/gotube/internal/platform"
)

// Options are the manager knobs, usually taken from config.DownloadConfig.
type Options struct {
	OutDir             string
	Concurrency        int
	MaxRetries         int
	DefaultBitrateKbps int

	// JobTimeout bounds a single pipeline attempt. Zero disables it.
	JobTimeout        time.Duration
	ProgressInterval  time.Duration
	PausePollInterval time.Duration
	WakeInterval      time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration

	TagAudio bool
}

func OptionsFromConfig(c config.DownloadConfig) Options {
	return Options{
		OutDir:             c.OutDir,
		Concurrency:        c.Concurrency,
		MaxRetries:         c.MaxRetries,
		DefaultBitrateKbps: c.DefaultBitrateKbps,
		JobTimeout:         c.JobTimeout,
		ProgressInterval:   c.ProgressInterval,
		PausePollInterval:  c.PausePollInterval,
		WakeInterval:       c.WakeInterval,
		BackoffBase:        c.BackoffBase,
		BackoffMax:         c.BackoffMax,
		TagAudio:           c.TagAudio,
	}
}

func (o Options) withDefaults() Options {
	if o.OutDir == "" {
		o.OutDir = "."
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = domain.DefaultMaxRetries
	}
	if o.DefaultBitrateKbps <= 0 {
		o.DefaultBitrateKbps = 192
	}
	if o.PausePollInterval <= 0 {
		o.PausePollInterval = 250 * time.Millisecond
	}
	if o.WakeInterval <= 0 {
		o.WakeInterval = time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = 10 * time.Second
		if o.BackoffMax < o.BackoffBase {
			o.BackoffMax = o.BackoffBase
		}
	}
	return o
}

const (
	outputTemplate = "%(title)s [%(id)s].%(ext)s"

	audioSelector = "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best"

	remuxAudioCodec   = "aac"
	remuxAudioBitrate = 320
)

// BuildPipelineConfig maps a job onto the typed pipeline configuration.
// Audio jobs extract a single stream and may use the accelerator; video jobs
// merge two streams and never do, since the accelerator cannot merge.
func BuildPipelineConfig(job *domain.Job, outDir string, tools platform.Tools) domain.PipelineConfig {
	cfg := domain.PipelineConfig{
		URL:                 job.URL,
		OutputDir:           outDir,
		OutputTemplate:      filepath.Join(outDir, outputTemplate),
		ContinueDownload:    true,
		NoPlaylist:          true,
		Retries:             3,
		FragmentRetries:     3,
		ConcurrentFragments: 16,
		HTTPChunkSize:       "10M",
		SocketTimeout:       20 * time.Second,
	}

	switch job.Format {
	case domain.FormatAudio:
		cfg.FormatSelector = audioSelector
		cfg.Audio = &domain.AudioExtract{
			Codec:       "mp3",
			BitrateKbps: job.BitrateKbps,
		}
		if tools.HasAccelerator() {
			cfg.Accelerator = &domain.Accelerator{
				Name:        tools.Accelerator,
				Connections: 16,
				SplitSize:   "1M",
				DiskCache:   "64M",
			}
		}
	default:
		cfg.FormatSelector = videoSelector(job.VideoQuality, job.AudioQuality)
		cfg.Video = &domain.VideoRemux{
			Container:        "mp4",
			AudioCodec:       remuxAudioCodec,
			AudioBitrateKbps: remuxAudioBitrate,
		}
	}

	return cfg
}

// videoSelector always pairs a video stream with an audio stream, falling back
// to the uncapped pair and finally to the best combined stream.
func videoSelector(videoQuality, audioQuality string) string {
	video := "bestvideo"
	if videoQuality != "" && videoQuality != domain.QualityBest {
		video = fmt.Sprintf("bestvideo[height<=%s]", videoQuality)
	}

	audio := "bestaudio"
	if audioQuality != "" && audioQuality != domain.QualityBest {
		audio = fmt.Sprintf("bestaudio[abr<=%s]", audioQuality)
	}

	sel := video + "+" + audio
	if sel != "bestvideo+bestaudio" {
		sel += "/bestvideo+bestaudio"
	}
	return sel + "/best"
}
