package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somauser/workflow-engine/internal/scheduler/local"
	"github.com/somauser/workflow-engine/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()

	sched := local.NewLocal(4)
	t.Cleanup(func() { _ = sched.Clean() })

	e, err := NewEngine(Config{
		TickInterval:     5 * time.Millisecond,
		SweepInterval:    50 * time.Millisecond,
		SnapshotInterval: time.Hour,
		WALPath:          filepath.Join(dir, "engine.wal"),
		SnapshotPath:     filepath.Join(dir, "engine.snapshot"),
		TransferBaseDir:  filepath.Join(dir, "xfer"),
	}, sched)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func waitJobTerminal(t *testing.T, e *Engine, id types.JobID, timeout time.Duration) types.JobStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		status, err := e.Status(id)
		require.NoError(t, err)
		if status.IsTerminal() {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached a terminal status (last: %s)", id, status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitWorkflowDone(t *testing.T, e *Engine, id types.WorkflowID, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		wf, err := e.db.GetWorkflow(id)
		require.NoError(t, err)
		if wf.Status == types.WorkflowDone {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("workflow %s never reached WORKFLOW_DONE (last: %s)", id, wf.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// S1: a standalone job that exits zero reaches DONE.
func TestEngine_SingleJobSuccess(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitJob(types.Job{Command: []string{"/bin/echo", "hello"}})
	require.NoError(t, err)

	status := waitJobTerminal(t, e, id, 2*time.Second)
	assert.Equal(t, types.JobDone, status)

	info, err := e.ExitInfo(id)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 0, info.Value)
}

// S4: a three-job chain A->B->C runs in dependency order and the
// workflow ends WORKFLOW_DONE.
func TestEngine_DependencyChain(t *testing.T) {
	e := newTestEngine(t)

	a := types.Job{ID: "a", Command: []string{"/bin/sleep", "0.05"}}
	b := types.Job{ID: "b", Command: []string{"/bin/sleep", "0.05"}}
	c := types.Job{ID: "c", Command: []string{"/bin/sleep", "0.05"}}

	wf, err := e.SubmitWorkflow(WorkflowSpec{
		Name: "chain",
		Jobs: []types.Job{a, b, c},
		Dependencies: []types.DependencyEdge{
			{From: types.JobNode("a"), To: types.JobNode("b")},
			{From: types.JobNode("b"), To: types.JobNode("c")},
		},
	})
	require.NoError(t, err)

	waitJobTerminal(t, e, "a", 2*time.Second)
	waitJobTerminal(t, e, "b", 2*time.Second)
	waitJobTerminal(t, e, "c", 2*time.Second)
	waitWorkflowDone(t, e, wf.ID, 2*time.Second)

	for _, id := range []types.JobID{"a", "b", "c"} {
		job, err := e.db.GetJob(id)
		require.NoError(t, err)
		assert.Equal(t, types.JobDone, job.Status)
	}
}

// §8 invariant 2: a job never starts before all its predecessors succeed.
// Here B depends on A, which always fails, so B must never leave
// NOT_SUBMITTED.
func TestEngine_FailurePropagation(t *testing.T) {
	e := newTestEngine(t)

	a := types.Job{ID: "a", Command: []string{"/bin/false"}}
	b := types.Job{ID: "b", Command: []string{"/bin/echo", "should not run"}}

	wf, err := e.SubmitWorkflow(WorkflowSpec{
		Name: "fail-chain",
		Jobs: []types.Job{a, b},
		Dependencies: []types.DependencyEdge{
			{From: types.JobNode("a"), To: types.JobNode("b")},
		},
	})
	require.NoError(t, err)

	waitJobTerminal(t, e, "a", 2*time.Second)

	time.Sleep(100 * time.Millisecond) // give the dispatcher a few ticks
	bJob, err := e.db.GetJob("b")
	require.NoError(t, err)
	assert.Equal(t, types.JobNotSubmitted, bJob.Status)

	_, err = e.db.GetWorkflow(wf.ID)
	require.NoError(t, err)
}

// Cyclic dependencies are rejected at submission.
func TestEngine_SubmitWorkflow_CycleRejected(t *testing.T) {
	e := newTestEngine(t)

	a := types.Job{ID: "a", Command: []string{"/bin/true"}}
	b := types.Job{ID: "b", Command: []string{"/bin/true"}}

	_, err := e.SubmitWorkflow(WorkflowSpec{
		Jobs: []types.Job{a, b},
		Dependencies: []types.DependencyEdge{
			{From: types.JobNode("a"), To: types.JobNode("b")},
			{From: types.JobNode("b"), To: types.JobNode("a")},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidWorkflow)
}

func TestEngine_SubmitJob_EmptyCommandRejected(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.SubmitJob(types.Job{})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

// dispose(job) is idempotent, and a job with an empty command is rejected.
func TestEngine_DisposeIdempotent(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitJob(types.Job{Command: []string{"/bin/sleep", "0.2"}})
	require.NoError(t, err)

	assert.NoError(t, e.DisposeJob(id))
	assert.NoError(t, e.DisposeJob(id))

	_, err = e.SubmitJob(types.Job{})
	assert.Error(t, err)
}

// S6 (input side): a transfer round-trips through register -> mark
// transferred -> consuming job reaching DONE.
func TestEngine_TransferRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	inID, err := e.RegisterTransfer("/tmp/r_in.txt", time.Hour)
	require.NoError(t, err)

	xfer, err := e.db.GetTransfer(inID)
	require.NoError(t, err)

	info, err := e.TransferInformation(xfer.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/r_in.txt", info.RemotePath)

	require.NoError(t, e.SetTransferStatus(info.LocalPath, types.TransferTransferred))

	job := types.Job{
		Command:        []string{"/bin/echo", "payload"},
		InputTransfers: []types.TransferID{inID},
	}
	wf, err := e.SubmitWorkflow(WorkflowSpec{Jobs: []types.Job{job}})
	require.NoError(t, err)
	require.Len(t, wf.Jobs, 1)

	waitJobTerminal(t, e, wf.Jobs[0], 2*time.Second)
	jobState, err := e.db.GetJob(wf.Jobs[0])
	require.NoError(t, err)
	assert.Equal(t, types.JobDone, jobState.Status)
}

// Wait returns without error once every listed job is terminal within the
// timeout.
func TestEngine_Wait(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitJob(types.Job{Command: []string{"/bin/echo", "hi"}})
	require.NoError(t, err)

	require.NoError(t, e.Wait([]types.JobID{id}, time.Second))

	status, err := e.Status(id)
	require.NoError(t, err)
	assert.True(t, status.IsTerminal())
}
