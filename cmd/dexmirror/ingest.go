package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/dexmirror/pkg/ingest"
	"github.com/spf13/cobra"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch upstream records into the local database.",
		Long: `Visit ids 1..total in order, fetching and storing every id that is not
stored yet. Without --total the upstream is asked for its record count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := a.runIngest(ctx)
			if err != nil {
				return err
			}
			printSummary(a, summary)
			return nil
		},
	}
	cmd.Flags().Int("total", 0, "Number of ids to visit (0 asks the upstream).")
	cmd.Flags().String("policy", "", "Resume policy: count, max, cursor or full.")
	return cmd
}

// runIngest performs one complete ingest run against the configured store.
func (a *app) runIngest(ctx context.Context) (ingest.Summary, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return ingest.Summary{}, err
	}
	defer s.Close()

	ing, release, err := a.newIngester(ctx, s)
	if err != nil {
		return ingest.Summary{}, err
	}
	defer release()

	return ing.Run(ctx, a.cfg.Ingest.Total)
}

func printSummary(a *app, s ingest.Summary) {
	fmt.Fprintf(a.stdout, "ingest complete: total=%d start=%d added=%d skipped=%d failed=%d\n",
		s.Total, s.Start, s.Added, s.Skipped, s.Failed)
}
