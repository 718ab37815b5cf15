package main

import (
	"context"
	"fmt"
	"time"

	"github.com/datallboy/gotube/internal/infra/logger"
	"github.com/datallboy/gotube/internal/platform"
	"github.com/datallboy/gotube/internal/ytdlp"
	"github.com/spf13/cobra"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the external tools are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			tools := platform.ProbeTools(root.cfg.Tools)

			report := func(name, path string, required bool) {
				switch {
				case path != "":
					fmt.Fprintf(out, "  %-8s %s\n", name, path)
				case required:
					fmt.Fprintf(out, "  %-8s MISSING\n", name)
				default:
					fmt.Fprintf(out, "  %-8s not found (optional)\n", name)
				}
			}

			fmt.Fprintln(out, "Tools:")
			report("yt-dlp", tools.YTDLP, true)
			report("ffmpeg", tools.FFmpeg, true)
			report("aria2c", tools.Accelerator, false)

			if tools.YTDLP != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()

				version, err := ytdlp.NewClient(tools.YTDLP, tools.FFmpeg, logger.Nop()).Version(ctx)
				if err != nil {
					fmt.Fprintf(out, "yt-dlp version: error: %v\n", err)
				} else {
					fmt.Fprintf(out, "yt-dlp version: %s\n", version)
				}
			}

			return platform.ValidateDependencies(tools)
		},
	}
}
