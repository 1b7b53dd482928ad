package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/zyp/gdb-autotest/internal/history"
	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	plog "github.com/zyp/gdb-autotest/pkg/log"
)

// DivergenceError reports a run whose checkpoint verdicts differ from the
// first run of the same workflow in the session.
type DivergenceError struct {
	Workflow  string
	Iteration int
	Index     int
	Want      *history.Verdict
	Got       *history.Verdict
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%s: iteration %d diverges from iteration 1 at checkpoint %d: want %s, got %s",
		e.Workflow, e.Iteration, e.Index+1, describeVerdict(e.Want), describeVerdict(e.Got))
}

func describeVerdict(v *history.Verdict) string {
	if v == nil {
		return "nothing"
	}
	status := "pass"
	if !v.Passed {
		status = "fail"
	}
	return fmt.Sprintf("%q %s (%s)", v.Step, v.Topology, status)
}

// recordCheckpoint is the engine's step callback. Every step that asserts
// a topology yields one verdict, logged as a checkpoint state change.
func (r *Runner) recordCheckpoint(run *engine.RunResult, sr *engine.StepResult) {
	er, ok := sr.ExpectResults[KeyTopology]
	if !ok {
		return
	}

	topology, _ := sr.Output[KeyTopology].(string)
	v := history.Verdict{Step: sr.Step.Label(), Topology: topology, Passed: er.Passed}

	r.mu.Lock()
	seq := r.verdicts[run]
	previous := ""
	if len(seq) > 0 {
		previous = seq[len(seq)-1].Topology
	}
	r.verdicts[run] = append(seq, v)
	r.mu.Unlock()

	reason := v.Step
	if !er.Passed {
		reason += ": " + er.Message
	}
	r.plog.Log(plog.Event{
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Layer:     plog.LayerWorkflow,
		Category:  plog.CategoryState,
		Endpoint:  r.settings.Endpoint,
		StateChange: &plog.StateChangeEvent{
			Entity:   plog.StateEntityCheckpoint,
			OldState: previous,
			NewState: topology,
			Reason:   reason,
		},
	})
	r.logger.Info("checkpoint", "step", v.Step, "topology", topology, "passed", v.Passed)
}

// Verdicts returns the checkpoint verdicts of run.
func (r *Runner) Verdicts(run *engine.RunResult) []history.Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Verdict(nil), r.verdicts[run]...)
}

// checkIdempotence compares every passed run with the first passed run of
// the same workflow.
func (r *Runner) checkIdempotence(result *engine.SuiteResult) error {
	baseline := make(map[string][]history.Verdict)
	for _, run := range result.Results {
		if !run.Passed {
			continue
		}
		id := run.Workflow.ID
		got := r.Verdicts(run)
		want, seen := baseline[id]
		if !seen {
			baseline[id] = got
			continue
		}
		if i, diverged := history.Diverges(want, got); diverged {
			return &DivergenceError{
				Workflow:  id,
				Iteration: run.Iteration,
				Index:     i,
				Want:      verdictAt(want, i),
				Got:       verdictAt(got, i),
			}
		}
	}
	return nil
}

func verdictAt(seq []history.Verdict, i int) *history.Verdict {
	if i < len(seq) {
		return &seq[i]
	}
	return nil
}

// recordHistory stores every run of result and warns when a run's
// verdicts differ from the previous recorded run of its workflow.
func (r *Runner) recordHistory(ctx context.Context, result *engine.SuiteResult) error {
	store := r.config.History
	if store == nil {
		return nil
	}
	for _, run := range result.Results {
		rec := history.Run{
			Workflow:     run.Workflow.ID,
			Iteration:    run.Iteration,
			StartedAt:    run.StartTime,
			FinishedAt:   run.EndTime,
			Passed:       run.Passed,
			Failure:      run.Diagnostic,
			GDBVersion:   r.gdbVersion,
			ProbeVersion: r.probeVersion,
			Verdicts:     r.Verdicts(run),
		}
		id, err := store.Record(ctx, rec)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}

		prev, err := store.Previous(ctx, rec.Workflow, id)
		if err != nil {
			return fmt.Errorf("previous run: %w", err)
		}
		if prev == nil || !prev.Passed || !rec.Passed {
			continue
		}
		if i, diverged := history.Diverges(prev.Verdicts, rec.Verdicts); diverged {
			r.logger.Warn("verdicts differ from previous run",
				"run", id, "previous", prev.ID, "checkpoint", i+1)
		}
	}
	return nil
}
