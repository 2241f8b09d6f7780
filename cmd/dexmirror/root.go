package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/dexmirror/pkg/client"
	"github.com/Sternrassler/dexmirror/pkg/config"
	"github.com/Sternrassler/dexmirror/pkg/cursor"
	"github.com/Sternrassler/dexmirror/pkg/ingest"
	"github.com/Sternrassler/dexmirror/pkg/logging"
	"github.com/Sternrassler/dexmirror/pkg/ratelimit"
	"github.com/Sternrassler/dexmirror/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

// app carries state shared by all subcommands once configuration is loaded.
type app struct {
	v      *viper.Viper
	cfg    *config.AppConfig
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the dexmirror command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      config.New(),
		stdout: stdout,
		stderr: stderr,
	}

	rc := &cobra.Command{
		Use:   "dexmirror",
		Short: "Mirror an upstream catalogue into SQLite and serve it over HTTP.",
		Long: `dexmirror fetches every record of an upstream REST catalogue one id at a
time, stores the transformed records in a local SQLite database and serves
them through a paginated, filterable read-only JSON API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	rc.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error).")
	rc.PersistentFlags().String("db", "", "Path of the SQLite database.")

	rc.AddCommand(newIngestCommand(a))
	rc.AddCommand(newServeCommand(a))
	rc.AddCommand(newVersionCommand(a))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// flagKeys maps command-line flags onto the config keys they override.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"db":        "db_path",
	"addr":      "listen_addr",
	"total":     "ingest.total",
	"policy":    "ingest.policy",
}

// bindFlags lets the flags of the running command override config keys when
// set on the command line.
func (a *app) bindFlags(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := a.v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// load reads configuration and installs the global logger.
func (a *app) load(cmd *cobra.Command) error {
	if err := a.bindFlags(cmd.Flags()); err != nil {
		return err
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("problem getting config flag: %w", err)
	}

	cfg, err := config.Load(a.v, path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = a.stderr
	logging.Setup(logCfg)

	return nil
}

// openStore opens the configured database; Open creates the schema.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.DBPath, logging.NewLogger("store"))
}

// newIngester wires the upstream client, pacer and cursor around s. The
// returned function releases the client and cursor backend.
func (a *app) newIngester(ctx context.Context, s *store.Store) (*ingest.Ingester, func(), error) {
	c, err := client.New(a.cfg.ClientConfig(), logging.NewLogger("client"))
	if err != nil {
		return nil, nil, fmt.Errorf("create upstream client: %w", err)
	}

	cur, closeCursor, err := cursor.Open(ctx, a.cfg.CursorStoreConfig())
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("open cursor: %w", err)
	}

	ing, err := ingest.New(ingest.Config{
		Store:    s,
		Upstream: c,
		Pacer:    ratelimit.NewPacer(a.cfg.Ingest.Delay, logging.NewLogger("pacer")),
		Cursor:   cur,
		Policy:   a.cfg.Policy(),
		Logger:   logging.NewLogger("ingest"),
	})
	if err != nil {
		closeCursor()
		c.Close()
		return nil, nil, err
	}

	release := func() {
		closeCursor()
		c.Close()
	}
	return ing, release, nil
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dexmirror version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "dexmirror %s\n", version)
		},
	}
}
