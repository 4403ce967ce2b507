package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/docstore"
	"hud-backend/pkg/handlers"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
	purgeInterval   = time.Hour
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = ":" + cfg.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logrus.StandardLogger()
			srv := &http.Server{
				Addr:              addr,
				Handler:           handlers.PooledHandler(cfg, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(ctx, srv, logger, purgeRevocations(cfg.StoreConfig(), logger))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

// purgeRevocations drops session revocations whose tokens have expired.
func purgeRevocations(storeCfg docstore.StoreConfig, logger *logrus.Logger) func(context.Context) {
	return func(ctx context.Context) {
		store, err := docstore.GetStore(storeCfg)
		if err != nil {
			logger.WithError(err).Warn("purge skipped: store unavailable")
			return
		}
		if _, err := auth.NewService(store).PurgeRevokedSessions(ctx, time.Now()); err != nil {
			logger.WithError(err).Warn("purge of revoked sessions failed")
		}
	}
}

// runServer serves until ctx is canceled, then shuts down gracefully and
// closes the pooled store. A non-nil purge runs every purgeInterval.
func runServer(ctx context.Context, srv *http.Server, logger *logrus.Logger, purge func(context.Context)) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		purgeTicker := time.NewTicker(purgeInterval)
		defer purgeTicker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				docstore.CleanupIdleStore()
			case <-purgeTicker.C:
				if purge != nil {
					purge(gctx)
				}
			}
		}
	})

	err := g.Wait()
	if cerr := docstore.ClosePool(); cerr != nil {
		logger.WithError(cerr).Warn("failed to close store")
	}
	return err
}
