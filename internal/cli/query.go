package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/puhuaqiang/db-query-tool/internal/export"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Limit  int
	Format string
}

func newQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <name> [SQL]",
		Short: "Run a read-only SELECT against a connection",
		Long: `Run a single SELECT statement against a registered connection.

Statements that are not plain reads are rejected before the database is
contacted. A LIMIT is added when the statement has none. With no SQL argument
the statement is read from stdin.`,
		Example: `  dbq query main "SELECT id, email FROM users"
  dbq query main "SELECT * FROM orders" --limit 50 --format csv > orders.csv
  echo "SELECT 1" | dbq query shop`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "l", 0, "Rows to return when the statement has no LIMIT (default from config)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, csv, json")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "csv", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	sql, err := querySQL(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var format export.Format
	if opts.Format != "table" {
		if format, err = export.ParseFormat(opts.Format); err != nil {
			return err
		}
	}

	outcome, err := getRuntime(cmd).registry.Query(cmd.Context(), args[0], sql, opts.Limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == "" {
		renderOutcomeTable(w, outcome)
		return nil
	}
	return export.Write(w, format, outcome)
}

// querySQL takes the statement from the second argument or, failing that,
// from in.
func querySQL(in io.Reader, args []string) (string, error) {
	if len(args) > 1 && args[1] != "-" {
		return args[1], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read SQL from stdin: %w", err)
	}
	sql := strings.TrimSpace(string(data))
	if sql == "" {
		return "", fmt.Errorf("no SQL given")
	}
	return sql, nil
}

func renderOutcomeTable(w io.Writer, outcome *resultset.Outcome) {
	if outcome.RowCount == 0 {
		_, _ = fmt.Fprintf(w, "(0 rows, %.2f ms)\n", outcome.ExecutionTime)
		return
	}

	t := newTable(w)
	header := make(table.Row, len(outcome.Columns))
	for i, c := range outcome.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)

	for _, row := range outcome.Rows {
		r := make(table.Row, len(outcome.Columns))
		for i := range r {
			r[i] = "NULL"
			if i < len(row) && row[i] != nil {
				r[i] = resultset.Text(row[i])
			}
		}
		t.AppendRow(r)
	}
	t.Render()

	noun := "rows"
	if outcome.RowCount == 1 {
		noun = "row"
	}
	_, _ = fmt.Fprintf(w, "(%d %s, %.2f ms)\n", outcome.RowCount, noun, outcome.ExecutionTime)
}
