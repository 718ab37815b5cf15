package platform

import (
	"fmt"
	"os/exec"

	"github.com/datallboy/gotube/internal/infra/config"
)

// Tools is the result of probing the host for external binaries.
// An empty path means the binary was not found.
type Tools struct {
	YTDLP       string `json:"ytdlp"`
	FFmpeg      string `json:"ffmpeg"`
	Accelerator string `json:"accelerator"`
}

// HasAccelerator reports whether the multi-connection downloader can be used.
func (t Tools) HasAccelerator() bool { return t.Accelerator != "" }

// Missing lists required binaries that were not found.
func (t Tools) Missing() []string {
	var missing []string
	if t.YTDLP == "" {
		missing = append(missing, "yt-dlp")
	}
	if t.FFmpeg == "" {
		missing = append(missing, "ffmpeg")
	}
	return missing
}

// lookPath is swapped in tests
var lookPath = exec.LookPath

// ProbeTools looks up the configured binaries on PATH. It never fails;
// use ValidateDependencies to turn missing required tools into an error.
func ProbeTools(cfg config.ToolsConfig) Tools {
	var t Tools

	t.YTDLP = find(cfg.YTDLPPath, "yt-dlp")
	t.FFmpeg = find(cfg.FFmpegPath, "ffmpeg")

	if !cfg.DisableAccelerator {
		t.Accelerator = find(cfg.Accelerator, "aria2c")
	}

	return t
}

func find(configured, fallback string) string {
	name := configured
	if name == "" {
		name = fallback
	}
	path, err := lookPath(name)
	if err != nil {
		return ""
	}
	return path
}

func ValidateDependencies(t Tools) error {
	if missing := t.Missing(); len(missing) > 0 {
		return fmt.Errorf("required dependency: '%s' not found in PATH", missing[0])
	}
	return nil
}
