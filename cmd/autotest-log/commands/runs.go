package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zyp/gdb-autotest/internal/history"
)

// RunsOptions selects the runs listed by the runs command.
type RunsOptions struct {
	Workflow string
	Limit    int
	Format   string // text or json
	Verdicts bool   // list every checkpoint verdict
}

// RunSummary is one listed run with its divergence from the previous
// run of the same workflow.
type RunSummary struct {
	history.Run
	Previous   string `json:"previous,omitempty"`
	Diverged   bool   `json:"diverged"`
	Checkpoint int    `json:"checkpoint,omitempty"` // 1-based, set when diverged
}

// ListRuns returns the most recent runs, newest first. A passed run is
// marked diverged when its verdicts differ from the previous passed run.
func ListRuns(ctx context.Context, store *history.Store, workflow string, limit int) ([]RunSummary, error) {
	runs, err := store.Runs(ctx, workflow, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		s := RunSummary{Run: run}
		prev, err := store.Previous(ctx, run.Workflow, run.ID)
		if err != nil {
			return nil, fmt.Errorf("previous of %s: %w", run.ID, err)
		}
		if prev != nil {
			s.Previous = prev.ID
			if prev.Passed && run.Passed {
				if i, diverged := history.Diverges(prev.Verdicts, run.Verdicts); diverged {
					s.Diverged = true
					s.Checkpoint = i + 1
				}
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// RunRuns prints the run history.
func RunRuns(ctx context.Context, store *history.Store, opts RunsOptions, w io.Writer) error {
	runs, err := ListRuns(ctx, store, opts.Workflow, opts.Limit)
	if err != nil {
		return err
	}

	switch opts.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "", "text":
	default:
		return fmt.Errorf("unknown format: %s (supported: text, json)", opts.Format)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tITER\tSTARTED\tDURATION\tRESULT\tNOTE")
	for _, r := range runs {
		result := "PASS"
		note := ""
		if !r.Passed {
			result = "FAIL"
			note = r.Failure
		}
		if r.Diverged {
			note = fmt.Sprintf("diverges from %s at checkpoint %d", r.Previous, r.Checkpoint)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Workflow, r.Iteration,
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			result, note)

		if opts.Verdicts {
			for _, v := range r.Verdicts {
				status := "ok"
				if !v.Passed {
					status = "FAILED"
				}
				fmt.Fprintf(tw, "\t\t\t  %s\t%s\t%s\t\n", v.Step, v.Topology, status)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	latest := runs[0]
	if latest.GDBVersion != "" {
		fmt.Fprintf(w, "\nGDB:   %s\n", latest.GDBVersion)
	}
	if latest.ProbeVersion != "" {
		fmt.Fprintf(w, "Probe: %s\n", strings.SplitN(latest.ProbeVersion, "; ", 2)[0])
	}
	return nil
}
