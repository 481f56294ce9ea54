package workflowdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somauser/workflow-engine/pkg/types"
)

func TestPutJob_DuplicateRejected(t *testing.T) {
	db := New()
	job := &types.Job{ID: "j1", Command: []string{"/bin/true"}}

	require.NoError(t, db.PutJob(job))
	err := db.PutJob(job)
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestGetJob_NotFound(t *testing.T) {
	db := New()
	_, err := db.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestUpdateJobStatus(t *testing.T) {
	db := New()
	job := &types.Job{ID: "j1", Command: []string{"/bin/true"}, Status: types.JobNotSubmitted}
	require.NoError(t, db.PutJob(job))

	require.NoError(t, db.UpdateJobStatus("j1", types.JobRunning))

	got, err := db.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
}

func TestAllocateLocalPath_Unique(t *testing.T) {
	db := New()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		p := db.AllocateLocalPath("/tmp/xfer")
		assert.False(t, seen[p], "path %q allocated twice", p)
		seen[p] = true
	}
}

func TestAdjustRefCount(t *testing.T) {
	db := New()
	xfer := &types.Transfer{ID: "t1", RefCount: 1}
	require.NoError(t, db.PutTransfer(xfer))

	count, err := db.AdjustRefCount("t1", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = db.AdjustRefCount("missing", -1)
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestDeleteTransfer(t *testing.T) {
	db := New()
	require.NoError(t, db.PutTransfer(&types.Transfer{ID: "t1"}))

	require.NoError(t, db.DeleteTransfer("t1"))
	_, err := db.GetTransfer("t1")
	assert.ErrorIs(t, err, ErrTransferNotFound)

	err = db.DeleteTransfer("t1")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestSnapshotAndRestore_RoundTrip(t *testing.T) {
	db := New()
	require.NoError(t, db.PutJob(&types.Job{ID: "j1", Command: []string{"/bin/true"}, Status: types.JobDone}))
	require.NoError(t, db.PutTransfer(&types.Transfer{ID: "t1", Status: types.TransferTransferred}))
	require.NoError(t, db.PutWorkflow(&types.Workflow{ID: "w1", Status: types.WorkflowDone}))

	snap := db.Snapshot()
	assert.Len(t, snap.Jobs, 1)
	assert.Len(t, snap.Transfers, 1)
	assert.Len(t, snap.Workflows, 1)

	fresh := New()
	fresh.Restore(snap)

	job, err := fresh.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobDone, job.Status)

	wf, err := fresh.GetWorkflow("w1")
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowDone, wf.Status)
}

func TestRestore_NilMapsBecomeUsable(t *testing.T) {
	db := New()
	db.Restore(types.SnapshotData{})

	assert.Empty(t, db.AllJobIDs())
	require.NoError(t, db.PutJob(&types.Job{ID: "j1", Command: []string{"/bin/true"}}))
}

func TestNextSubmitOrder_Monotonic(t *testing.T) {
	db := New()
	prev := db.NextSubmitOrder()
	for i := 0; i < 10; i++ {
		next := db.NextSubmitOrder()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestJobsByWorkflow(t *testing.T) {
	db := New()
	require.NoError(t, db.PutJob(&types.Job{ID: "j1", WorkflowID: "w1", Command: []string{"/bin/true"}}))
	require.NoError(t, db.PutJob(&types.Job{ID: "j2", WorkflowID: "w2", Command: []string{"/bin/true"}}))
	require.NoError(t, db.PutJob(&types.Job{ID: "j3", WorkflowID: "w1", Command: []string{"/bin/true"}}))

	jobs := db.JobsByWorkflow("w1")
	assert.Len(t, jobs, 2)
}
