package ytdlp

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/datallboy/gotube/internal/domain"
)

// Markers prefixed to the lines yt-dlp prints for us, so they can be told
// apart from its regular output on either stream.
const (
	progressMarker = "[gotube:progress]"
	fileMarker     = "[gotube:file]"
)

// BuildArgs turns a typed pipeline config into yt-dlp command line arguments.
func BuildArgs(cfg domain.PipelineConfig, ffmpegPath string) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-color",
		"--windows-filenames",
		"--progress-template", "download:" + progressMarker + "%(progress)j",
		"--print", "after_move:" + fileMarker + "%(filepath)s",
		"-f", cfg.FormatSelector,
		"-o", cfg.OutputTemplate,
	}

	if cfg.ContinueDownload {
		args = append(args, "--continue")
	} else {
		args = append(args, "--no-continue")
	}
	if cfg.NoPlaylist {
		args = append(args, "--no-playlist")
	}
	if cfg.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(cfg.Retries))
	}
	if cfg.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(cfg.FragmentRetries))
	}
	if cfg.ConcurrentFragments > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(cfg.ConcurrentFragments))
	}
	if cfg.HTTPChunkSize != "" {
		args = append(args, "--http-chunk-size", cfg.HTTPChunkSize)
	}
	if cfg.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(cfg.SocketTimeout.Seconds())))
	}
	if ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", ffmpegPath)
	}

	switch {
	case cfg.Audio != nil:
		args = append(args,
			"-x",
			"--audio-format", cfg.Audio.Codec,
			"--audio-quality", fmt.Sprintf("%dK", cfg.Audio.BitrateKbps),
		)
		if acc := cfg.Accelerator; acc != nil {
			name := filepath.Base(acc.Name)
			args = append(args,
				"--downloader", name,
				"--downloader-args", name+":"+acceleratorArgs(acc),
			)
		}
	case cfg.Video != nil:
		args = append(args,
			"--merge-output-format", cfg.Video.Container,
			"--recode-video", cfg.Video.Container,
			"--postprocessor-args", fmt.Sprintf("VideoConvertor:-c:v copy -c:a %s -b:a %dk",
				cfg.Video.AudioCodec, cfg.Video.AudioBitrateKbps),
		)
	}

	return append(args, "--", cfg.URL)
}

func acceleratorArgs(acc *domain.Accelerator) string {
	n := strconv.Itoa(acc.Connections)
	parts := []string{
		"-x", n,
		"-s", n,
		"-k", acc.SplitSize,
		"--max-connection-per-server=" + n,
		"--min-split-size=" + acc.SplitSize,
	}
	if acc.DiskCache != "" {
		parts = append(parts, "--disk-cache="+acc.DiskCache)
	}
	return strings.Join(parts, " ")
}
