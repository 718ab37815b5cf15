package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/gotube/internal/api"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue with the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg, runtimeOptions{withStore: true, withRedis: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			log := rt.app.Logger

			restored, err := rt.mgr.Restore()
			if err != nil {
				log.Warn("[Queue] %v", err)
			} else if restored > 0 {
				log.Info("[Queue] Restored %d unfinished job(s)", restored)
			}

			e := echo.New()
			api.RegisterRoutes(e, rt.app, rt.mgr, rt.bus)

			g, gctx := errgroup.WithContext(ctx)

			// Request contexts end with the group so event streams close on shutdown
			srv := &http.Server{
				Addr:        ":" + cfg.Port,
				Handler:     e,
				ErrorLog:    stdlog.New(log, "[HTTP] ", 0),
				BaseContext: func(net.Listener) context.Context { return gctx },
			}

			g.Go(func() error {
				rt.mgr.Start(gctx)
				return nil
			})

			g.Go(func() error {
				log.Info("gotube listening on %s (downloads: %s, concurrency: %d)",
					srv.Addr, rt.mgr.DownloadDir(), rt.mgr.Concurrency())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				log.Info("Shutting down...")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP listen port (default from config)")

	return cmd
}
