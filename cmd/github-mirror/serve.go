package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github-mirror/internal/api"
	"github-mirror/internal/config"
	"github-mirror/internal/database"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the mirrored data over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DBURL == "" {
				return config.ErrMissingDBURL
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := database.Connect(ctx, a.cfg.DBURL, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			handler := api.NewHandler(db, a.logger)
			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("http server listening", "addr", a.cfg.HTTPAddr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("shutting down http server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}
