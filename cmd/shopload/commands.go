package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shopload/internal/backend"
	"github.com/JonMunkholm/shopload/internal/config"
	"github.com/JonMunkholm/shopload/internal/ingest"
	"github.com/JonMunkholm/shopload/internal/logging"
)

// exitRunFailed is the exit code of a load whose run summary reports failure.
const exitRunFailed = 2

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	configPath string
	backend    string
	dataDir    string

	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "shopload",
		Short: "Load e-commerce support data from CSV into PostgreSQL, SQLite or MongoDB",
		Long: `Load e-commerce support data from CSV into PostgreSQL, SQLite or MongoDB.

Configuration comes from defaults, an optional YAML file (--config or
$SHOPLOAD_CONFIG) and environment variables, optionally read from .env.

Examples:
  shopload provision --backend sqlite
  shopload load --data-dir ./exports
  shopload config`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logCloser != nil {
				c.logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "storage backend: postgres, sqlite, mongodb or memory")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "directory holding <entity>.csv sources")

	root.AddCommand(c.provisionCmd(), c.loadCmd(), c.configCmd())
	return root
}

// setup loads configuration, applies flag overrides and configures logging.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.backend != "" {
		cfg.Backend = c.backend
	}
	if c.dataDir != "" {
		cfg.Ingest.DataDir = c.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logCloser = closer
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create tables, indexes and views (or collections) for the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := backend.Provision(ctx, c.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s backend\n", c.cfg.Backend)
			return nil
		},
	}
}

func (c *cli) loadCmd() *cobra.Command {
	var entities []string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Ingest every CSV source in dependency order",
		Long: `Ingest every CSV source in dependency order: categories, products, users,
orders, order_items, conversations, messages.

Exits with status 2 when the run fails, is cancelled, or an entity type
stores nothing although it had new rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			if len(entities) > 0 {
				cfg.Ingest.Entities = entities
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("config validation: %w", err)
				}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.Ingest.Timeout)
			defer cancel()

			var opts []ingest.Option
			if types := cfg.Ingest.EntityTypes(); len(types) > 0 {
				opts = append(opts, ingest.WithEntities(types...))
			}

			summary := ingest.NewCoordinator(backend.Connector(cfg), cfg.Ingest.Sources(), opts...).Run(ctx)
			printSummary(cmd.OutOrStdout(), summary)

			if summary.Failed() {
				return &exitError{code: exitRunFailed, err: fmt.Errorf("run %s did not succeed (status %s)", summary.RunID, summary.Status)}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&entities, "entities", nil, "comma-separated subset of entity types to load")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.cfg.String())
			return nil
		},
	}
}
