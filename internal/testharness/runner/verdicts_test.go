package runner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyp/gdb-autotest/internal/history"
	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/internal/testharness/loader"
)

func verdictRunner(runs map[*engine.RunResult][]history.Verdict) *Runner {
	return &Runner{verdicts: runs}
}

func lifecycleVerdicts(topologies ...string) []history.Verdict {
	out := make([]history.Verdict, len(topologies))
	for i, topo := range topologies {
		out[i] = history.Verdict{Step: "scan", Topology: topo, Passed: true}
	}
	return out
}

func TestCheckIdempotence(t *testing.T) {
	wf := &loader.Workflow{ID: "nrf54l-lifecycle"}
	first := &engine.RunResult{Workflow: wf, Iteration: 1, Passed: true}
	second := &engine.RunResult{Workflow: wf, Iteration: 2, Passed: true}
	suite := &engine.SuiteResult{Results: []*engine.RunResult{first, second}}

	r := verdictRunner(map[*engine.RunResult][]history.Verdict{
		first:  lifecycleVerdicts("locked", "unlocked", "locked"),
		second: lifecycleVerdicts("locked", "unlocked", "locked"),
	})
	assert.NoError(t, r.checkIdempotence(suite))

	r.verdicts[second] = lifecycleVerdicts("locked", "locked", "locked")
	err := r.checkIdempotence(suite)
	require.Error(t, err)

	var div *DivergenceError
	require.True(t, errors.As(err, &div))
	assert.Equal(t, "nrf54l-lifecycle", div.Workflow)
	assert.Equal(t, 2, div.Iteration)
	assert.Equal(t, 1, div.Index)
	assert.Equal(t, "unlocked", div.Want.Topology)
	assert.Equal(t, "locked", div.Got.Topology)
	assert.Equal(t,
		`nrf54l-lifecycle: iteration 2 diverges from iteration 1 at checkpoint 2: want "scan" unlocked (pass), got "scan" locked (pass)`,
		err.Error())
}

func TestCheckIdempotence_ShorterRun(t *testing.T) {
	wf := &loader.Workflow{ID: "nrf54l-lifecycle"}
	first := &engine.RunResult{Workflow: wf, Iteration: 1, Passed: true}
	second := &engine.RunResult{Workflow: wf, Iteration: 2, Passed: true}

	r := verdictRunner(map[*engine.RunResult][]history.Verdict{
		first:  lifecycleVerdicts("locked", "unlocked"),
		second: lifecycleVerdicts("locked"),
	})
	err := r.checkIdempotence(&engine.SuiteResult{Results: []*engine.RunResult{first, second}})

	var div *DivergenceError
	require.True(t, errors.As(err, &div))
	assert.Equal(t, 1, div.Index)
	assert.Nil(t, div.Got)
	assert.Contains(t, err.Error(), "got nothing")
}

func TestCheckIdempotence_IgnoresFailedRuns(t *testing.T) {
	wf := &loader.Workflow{ID: "nrf54l-lifecycle"}
	failed := &engine.RunResult{Workflow: wf, Iteration: 1}
	first := &engine.RunResult{Workflow: wf, Iteration: 2, Passed: true}
	second := &engine.RunResult{Workflow: wf, Iteration: 3, Passed: true}
	other := &engine.RunResult{Workflow: &loader.Workflow{ID: "smoke"}, Iteration: 1, Passed: true}

	r := verdictRunner(map[*engine.RunResult][]history.Verdict{
		failed: lifecycleVerdicts("locked"),
		first:  lifecycleVerdicts("locked", "unlocked"),
		second: lifecycleVerdicts("locked", "unlocked"),
		other:  lifecycleVerdicts("unlocked"),
	})
	suite := &engine.SuiteResult{Results: []*engine.RunResult{failed, first, other, second}}
	assert.NoError(t, r.checkIdempotence(suite))
}

func TestVerdictsReturnsCopy(t *testing.T) {
	run := &engine.RunResult{}
	r := verdictRunner(map[*engine.RunResult][]history.Verdict{
		run: lifecycleVerdicts("locked"),
	})

	got := r.Verdicts(run)
	got[0].Topology = "unlocked"
	assert.Equal(t, "locked", r.Verdicts(run)[0].Topology)
	assert.Empty(t, r.Verdicts(&engine.RunResult{}))
}
