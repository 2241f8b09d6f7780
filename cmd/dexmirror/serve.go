package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/api"
	"github.com/Sternrassler/dexmirror/pkg/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored records over HTTP.",
		Long: `Start the read-only JSON API. With --ingest an ingest run is started in
the background while the API serves whatever is already stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			withIngest, err := cmd.Flags().GetBool("ingest")
			if err != nil {
				return err
			}
			return a.serve(ctx, withIngest)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8080).")
	cmd.Flags().Bool("ingest", false, "Run an ingest in the background while serving.")
	cmd.Flags().Int("total", 0, "Number of ids to visit when ingesting (0 asks the upstream).")
	return cmd
}

// serve runs the API until ctx is cancelled or the listener fails.
func (a *app) serve(ctx context.Context, withIngest bool) error {
	logger := logging.NewLogger("serve")

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	server := api.NewServer(a.cfg.ListenAddr, api.Handler(s, logging.NewLogger("api")), logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if withIngest {
		g.Go(func() error {
			ing, release, err := a.newIngester(gctx, s)
			if err != nil {
				logger.Error().Err(err).Msg("Background ingest not started")
				return nil
			}
			defer release()

			summary, err := ing.Run(gctx, a.cfg.Ingest.Total)
			switch {
			case errors.Is(err, context.Canceled):
				logger.Info().Msg("Background ingest stopped")
			case err != nil:
				logger.Error().Err(err).Msg("Background ingest failed")
			default:
				logger.Info().
					Int("added", summary.Added).
					Int("skipped", summary.Skipped).
					Int("failed", summary.Failed).
					Msg("Background ingest finished")
			}
			return nil
		})
	}

	return g.Wait()
}
