package cli

import (
	"github.com/spf13/cobra"

	"github.com/puhuaqiang/db-query-tool/internal/api"
	"github.com/puhuaqiang/db-query-tool/internal/config"
	"github.com/puhuaqiang/db-query-tool/internal/mcp"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Example: `  dbq serve
  dbq serve --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt := getRuntime(cmd)
			srv := api.NewServer(api.Config{
				Addr:     rt.cfg.HTTP.Addr,
				Registry: rt.registry,
				Logger:   rt.logger,
			})
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default "+config.DefaultHTTPAddr+")")
	return cmd
}

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server over stdio",
		Long: `Speak the Model Context Protocol on stdin/stdout so an assistant can list
connections, read stored schemas and run read-only queries. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt := getRuntime(cmd)
			rt.logger.Info("mcp server started (read-only)")
			srv := mcp.NewServer(rt.registry, cmd.InOrStdin(), cmd.OutOrStdout(), rt.logger)
			return srv.Run(cmd.Context())
		},
	}
}
