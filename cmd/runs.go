package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spatial-access/internal/export"
	"github.com/sells-group/spatial-access/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted scoring runs",
}

var runsListFlags struct {
	status string
	method string
	limit  int
	asJSON bool
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scoring runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: store.RunStatus(runsListFlags.status),
			Method: runsListFlags.method,
			Limit:  runsListFlags.limit,
		})
		if err != nil {
			return err
		}

		if runsListFlags.asJSON {
			return printJSON(runs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMETHOD\tSTATUS\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Method, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

var runsScoresFlags struct {
	output   string
	idHeader string
}

var runsScoresCmd = &cobra.Command{
	Use:   "scores <run-id>",
	Short: "Export a run's result columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		results, err := st.Scores(ctx, args[0])
		if err != nil {
			return err
		}

		opts := export.Options{IDHeader: runsScoresFlags.idHeader}
		if runsScoresFlags.output == "-" {
			return export.WriteCSV(os.Stdout, results, opts)
		}
		format, err := outputFormat(runsScoresFlags.output)
		if err != nil {
			return err
		}
		if format == "xlsx" {
			return export.WriteXLSX(runsScoresFlags.output, results, opts)
		}
		return export.WriteCSVFile(runsScoresFlags.output, results, opts)
	},
	Args: cobra.ExactArgs(1),
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	lf := runsListCmd.Flags()
	lf.StringVar(&runsListFlags.status, "status", "", "filter by status (queued, running, complete, failed)")
	lf.StringVar(&runsListFlags.method, "method", "", "filter by scoring method")
	lf.IntVar(&runsListFlags.limit, "limit", 50, "maximum runs to list")
	lf.BoolVar(&runsListFlags.asJSON, "json", false, "emit JSON instead of a table")

	sf := runsScoresCmd.Flags()
	sf.StringVar(&runsScoresFlags.output, "output", "-", "output path (.csv or .xlsx; - for stdout CSV)")
	sf.StringVar(&runsScoresFlags.idHeader, "id-header", "geoid", "header for the location id column")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsScoresCmd)
	rootCmd.AddCommand(runsCmd)
}
