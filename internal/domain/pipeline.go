package domain

import "time"

// Progress statuses reported by the pipeline
const (
	ProgressDownloading = "downloading"
	ProgressFinished    = "finished"
)

// ProgressEvent is one structured progress report from the pipeline.
// Nil pointers mean the pipeline did not know the value.
type ProgressEvent struct {
	Status             string
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	Speed              *float64 // bytes per second
	ETA                *float64 // seconds
}

// Total returns the exact size when known, the estimate otherwise.
func (p ProgressEvent) Total() int64 {
	if p.TotalBytes > 0 {
		return p.TotalBytes
	}
	return p.TotalBytesEstimate
}

// ProgressHook is invoked synchronously by the pipeline for every progress
// report. A non-nil return aborts the pipeline.
type ProgressHook func(ev ProgressEvent) error

// AudioExtract converts the single downloaded audio stream.
type AudioExtract struct {
	Codec       string
	BitrateKbps int
}

// VideoRemux merges video+audio into one container. Video is stream copied,
// audio is re-encoded to AudioCodec.
type VideoRemux struct {
	Container        string
	AudioCodec       string
	AudioBitrateKbps int
}

// Accelerator configures the external multi-connection downloader.
type Accelerator struct {
	Name        string
	Connections int
	SplitSize   string
	DiskCache   string
}

// PipelineConfig is the resolved configuration for one download.
// Exactly one of Audio or Video is set.
type PipelineConfig struct {
	URL            string
	OutputDir      string
	OutputTemplate string
	FormatSelector string

	Audio *AudioExtract
	Video *VideoRemux

	Accelerator *Accelerator

	ContinueDownload    bool
	NoPlaylist          bool
	Retries             int
	FragmentRetries     int
	ConcurrentFragments int
	HTTPChunkSize       string
	SocketTimeout       time.Duration
}

// PipelineResult is what the pipeline knows after a successful run.
type PipelineResult struct {
	Path string
}
