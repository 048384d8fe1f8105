// Package cli provides the command-line interface of db-query-tool.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/puhuaqiang/db-query-tool/internal/app"
	"github.com/puhuaqiang/db-query-tool/internal/config"
	"github.com/puhuaqiang/db-query-tool/internal/logging"
	"github.com/puhuaqiang/db-query-tool/internal/query"
	"github.com/puhuaqiang/db-query-tool/internal/store"
)

// Version information (set at build time).
var Version = "0.1.0"

// runtimeKey is used to store the runtime in the command context.
type runtimeKey struct{}

// runtime holds what a command needs once configuration is loaded.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *app.Service
}

// rootOptions let tests swap out live database access.
type rootOptions struct {
	adapters query.AdapterFactory
	// opened is called with every runtime setup creates.
	opened func(*runtime)
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(rootOptions{})
}

func newRootCmd(opts rootOptions) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "dbq",
		Short: "dbq - read-only query tool for PostgreSQL and MySQL",
		Long: `dbq registers PostgreSQL and MySQL connections, stores their schema
metadata locally and runs validated, row-limited SELECT statements against them.

It can be used directly from the terminal, served as an HTTP API, or run as
an MCP server over stdio.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip setup for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			rt, err := setup(cmd, cfgFile, opts)
			if err != nil {
				return err
			}
			if opts.opened != nil {
				opts.opened(rt)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
				return rt.store.Close()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: "+config.DefaultConfigFile+")")
	pf.String("store", "", "Path to the local metadata database")
	pf.Int("default-limit", 0, "Rows returned when a query has no LIMIT")
	pf.Int("max-rows", 0, "Largest limit a caller may request")
	pf.Duration("connect-timeout", 0, "Timeout for connecting to a database")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		newAddCommand(),
		newListCommand(),
		newShowCommand(),
		newRemoveCommand(),
		newRefreshCommand(),
		newLabelCommand(),
		newTestCommand(),
		newQueryCommand(),
		newServeCommand(),
		newMCPCommand(),
	)

	return rootCmd
}

// setup loads configuration, builds the logger, opens the store and wires
// the services together.
func setup(cmd *cobra.Command, cfgFile string, opts rootOptions) (*runtime, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug("using config file", slog.String("path", cfg.File))
	}

	st, err := store.Open(cmd.Context(), cfg.StorePath, logger)
	if err != nil {
		return nil, err
	}

	q := query.NewService(st, query.Options{
		DefaultLimit:   cfg.DefaultLimit,
		MaxRows:        cfg.MaxRows,
		ConnectTimeout: cfg.ConnectTimeout,
		Adapters:       opts.adapters,
		Logger:         logger,
	})

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: app.NewService(st, q, app.Options{Logger: logger}),
	}, nil
}

// getRuntime retrieves the runtime from the command context.
func getRuntime(cmd *cobra.Command) *runtime {
	return cmd.Context().Value(runtimeKey{}).(*runtime)
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
