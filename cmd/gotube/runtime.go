package main

import (
	"context"
	"fmt"

	"github.com/datallboy/gotube/internal/app"
	"github.com/datallboy/gotube/internal/engine"
	"github.com/datallboy/gotube/internal/infra/config"
	"github.com/datallboy/gotube/internal/infra/logger"
	"github.com/datallboy/gotube/internal/notify"
	"github.com/datallboy/gotube/internal/platform"
	"github.com/datallboy/gotube/internal/store"
	"github.com/datallboy/gotube/internal/tagger"
	"github.com/datallboy/gotube/internal/ytdlp"
)

// runtime is everything a command needs once the config is loaded.
type runtime struct {
	app *app.Context
	mgr *engine.Manager
	bus *notify.Bus

	closers []func() error
}

type runtimeOptions struct {
	withStore bool
	withRedis bool
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	rt := &runtime{app: app.NewContext(cfg, log)}
	rt.closers = append(rt.closers, log.Close)

	rt.app.Tools = platform.ProbeTools(cfg.Tools)
	if err := platform.ValidateDependencies(rt.app.Tools); err != nil {
		rt.Close()
		return nil, err
	}
	if !rt.app.Tools.HasAccelerator() {
		log.Info("Accelerator not found, downloading with yt-dlp's native downloader")
	}

	rt.app.Pipeline = ytdlp.NewClient(rt.app.Tools.YTDLP, rt.app.Tools.FFmpeg, log)

	rt.bus = notify.NewBus(0)
	sinks := notify.Multi{rt.bus}

	if opts.withRedis && cfg.Events.RedisURL != "" {
		pub, err := notify.NewRedisPublisher(ctx, cfg.Events.RedisURL, cfg.Events.Channel, log)
		if err != nil {
			rt.Close()
			return nil, err
		}
		sinks = append(sinks, pub)
		rt.closers = append(rt.closers, pub.Close)
		log.Info("Publishing job events to redis channel %s", cfg.Events.Channel)
	}
	rt.app.Notifier = sinks

	if opts.withStore && cfg.Store.Driver != config.DriverNone {
		st, err := store.Open(cfg.Store)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.app.Store = st
		rt.closers = append(rt.closers, st.Close)
	}

	if cfg.Download.TagAudio {
		rt.app.Tagger = tagger.New()
	}

	rt.mgr = engine.NewManager(rt.app, engine.OptionsFromConfig(cfg.Download))
	if err := rt.mgr.SetDownloadDir(cfg.Download.OutDir); err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	rt.closers = nil
}
