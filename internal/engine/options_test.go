package engine

import (
	"testing"
	"time"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/infra/config"
	"github.com/datallboy/gotube/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(format domain.Format, video, audio string) *domain.Job {
	return domain.NewJob(domain.Request{
		URL:              "https://youtu.be/abc",
		Title:            "Track",
		AudioBitrateKbps: 256,
		VideoQuality:     video,
		AudioQuality:     audio,
	}, format, domain.JobOptions{})
}

func TestBuildPipelineConfigAudio(t *testing.T) {
	tools := platform.Tools{YTDLP: "/usr/bin/yt-dlp", Accelerator: "/usr/bin/aria2c"}

	cfg := BuildPipelineConfig(newTestJob(domain.FormatAudio, "best", "best"), "/music", tools)

	assert.Equal(t, "https://youtu.be/abc", cfg.URL)
	assert.Equal(t, "/music", cfg.OutputDir)
	assert.Equal(t, "/music/%(title)s [%(id)s].%(ext)s", cfg.OutputTemplate)
	assert.Equal(t, "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best", cfg.FormatSelector)
	assert.Nil(t, cfg.Video)
	require.NotNil(t, cfg.Audio)
	assert.Equal(t, "mp3", cfg.Audio.Codec)
	assert.Equal(t, 256, cfg.Audio.BitrateKbps)

	require.NotNil(t, cfg.Accelerator)
	assert.Equal(t, "/usr/bin/aria2c", cfg.Accelerator.Name)
	assert.Equal(t, 16, cfg.Accelerator.Connections)
	assert.Equal(t, "1M", cfg.Accelerator.SplitSize)

	assert.True(t, cfg.ContinueDownload)
	assert.True(t, cfg.NoPlaylist)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 16, cfg.ConcurrentFragments)
	assert.Equal(t, 20*time.Second, cfg.SocketTimeout)
}

func TestBuildPipelineConfigAudioWithoutAccelerator(t *testing.T) {
	cfg := BuildPipelineConfig(newTestJob(domain.FormatAudio, "best", "best"), "/music", platform.Tools{})
	assert.Nil(t, cfg.Accelerator)
}

func TestBuildPipelineConfigVideoNeverAccelerated(t *testing.T) {
	tools := platform.Tools{Accelerator: "/usr/bin/aria2c"}

	cfg := BuildPipelineConfig(newTestJob(domain.FormatVideo, "best", "best"), "/video", tools)

	assert.Nil(t, cfg.Accelerator)
	assert.Nil(t, cfg.Audio)
	require.NotNil(t, cfg.Video)
	assert.Equal(t, "mp4", cfg.Video.Container)
	assert.Equal(t, "aac", cfg.Video.AudioCodec)
	assert.Equal(t, 320, cfg.Video.AudioBitrateKbps)
	assert.Equal(t, "bestvideo+bestaudio/best", cfg.FormatSelector)
}

func TestVideoSelector(t *testing.T) {
	tests := []struct {
		video, audio string
		want         string
	}{
		{"best", "best", "bestvideo+bestaudio/best"},
		{"", "", "bestvideo+bestaudio/best"},
		{"1080", "best", "bestvideo[height<=1080]+bestaudio/bestvideo+bestaudio/best"},
		{"720", "128", "bestvideo[height<=720]+bestaudio[abr<=128]/bestvideo+bestaudio/best"},
		{"best", "160", "bestvideo+bestaudio[abr<=160]/bestvideo+bestaudio/best"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, videoSelector(tt.video, tt.audio))
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()

	assert.Equal(t, 1, o.Concurrency)
	assert.Equal(t, domain.DefaultMaxRetries, o.MaxRetries)
	assert.Equal(t, 192, o.DefaultBitrateKbps)
	assert.Equal(t, 250*time.Millisecond, o.PausePollInterval)
	assert.Equal(t, time.Second, o.WakeInterval)
	assert.Equal(t, 2*time.Second, o.BackoffBase)
	assert.Equal(t, 10*time.Second, o.BackoffMax)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	o := OptionsFromConfig(cfg.Download)

	assert.Equal(t, cfg.Download.OutDir, o.OutDir)
	assert.Equal(t, 3, o.Concurrency)
	assert.Equal(t, 250*time.Millisecond, o.ProgressInterval)
	assert.True(t, o.TagAudio)
}
