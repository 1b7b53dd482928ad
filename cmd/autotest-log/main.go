// Command autotest-log views protocol logs and the run history written by
// nrf54l-autotest.
//
// Protocol logs are created with the -protocol-log flag of nrf54l-autotest
// or mi-shell; the run history with -history.
//
// Usage:
//
//	autotest-log <command> [flags] <file.milog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//	runs     List recorded runs and flag verdict divergence
//
// Examples:
//
//	# View only MI-layer events
//	autotest-log view --layer mi bench.milog
//
//	# Follow one command and its result
//	autotest-log view --token 12 bench.milog
//
//	# Export to CSV
//	autotest-log export --format csv -o bench.csv bench.milog
//
//	# Last 20 lifecycle runs with their checkpoints
//	autotest-log runs --db history.db --verdicts
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyp/gdb-autotest/cmd/autotest-log/commands"
	"github.com/zyp/gdb-autotest/internal/history"
)

var rootCmd = &cobra.Command{
	Use:           "autotest-log",
	Short:         "nRF54L autotest log analyzer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(viewCmd(), exportCmd(), filterCmd(), statsCmd(), runsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func viewCmd() *cobra.Command {
	var layer, direction, category string
	var token uint64

	cmd := &cobra.Command{
		Use:   "view [flags] <file.milog>",
		Short: "View log file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := commands.ViewFilter{Token: token}
			if layer != "" {
				l, err := commands.ParseLayerFlag(layer)
				if err != nil {
					return err
				}
				filter.Layer = &l
			}
			if direction != "" {
				d, err := commands.ParseDirectionFlag(direction)
				if err != nil {
					return err
				}
				filter.Direction = &d
			}
			if category != "" {
				c, err := commands.ParseCategoryFlag(category)
				if err != nil {
					return err
				}
				filter.Category = &c
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&layer, "layer", "", "Filter by layer (transport, mi, workflow)")
	cmd.Flags().StringVar(&direction, "direction", "", "Filter by direction (in, out)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category (message, state, error)")
	cmd.Flags().Uint64Var(&token, "token", 0, "Filter by command token")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export [flags] <file.milog>",
		Short: "Export log file to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunExport(args[0], format, output)
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func filterCmd() *cobra.Command {
	var opts commands.FilterOptions

	cmd := &cobra.Command{
		Use:   "filter [flags] <file.milog>",
		Short: "Filter log file and write to new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunFilter(args[0], opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Output, "output", "o", "", "Output file (required)")
	f.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	f.Uint64Var(&opts.Token, "token", 0, "Filter by command token")
	f.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	f.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	f.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, mi, workflow)")
	f.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.milog>",
		Short: "Show statistics about the log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}

func runsCmd() *cobra.Command {
	var (
		dbPath string
		opts   commands.RunsOptions
	)

	cmd := &cobra.Command{
		Use:   "runs [flags]",
		Short: "List recorded runs and flag verdict divergence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = os.Getenv("AUTOTEST_HISTORY")
			}
			if dbPath == "" {
				return fmt.Errorf("history database required (--db or $AUTOTEST_HISTORY)")
			}
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			return commands.RunRuns(cmd.Context(), store, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&dbPath, "db", "d", "", "History database (default: $AUTOTEST_HISTORY)")
	f.StringVarP(&opts.Workflow, "workflow", "w", "", "Only runs of this workflow")
	f.IntVarP(&opts.Limit, "limit", "l", 20, "Max runs, 0 for all")
	f.StringVarP(&opts.Format, "format", "f", "text", "Output format: text or json")
	f.BoolVar(&opts.Verdicts, "verdicts", false, "List checkpoint verdicts")
	return cmd
}
