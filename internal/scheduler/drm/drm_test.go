package drm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somauser/workflow-engine/internal/scheduler"
	"github.com/somauser/workflow-engine/pkg/types"
)

type fakeBackend struct {
	submitted map[string]*types.Job
	status    map[string]types.JobStatus
	exitInfo  map[string]types.ExitInfo
	killed    map[string]bool
	submitErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		submitted: map[string]*types.Job{},
		status:    map[string]types.JobStatus{},
		exitInfo:  map[string]types.ExitInfo{},
		killed:    map[string]bool{},
	}
}

func (f *fakeBackend) SubmitJob(job *types.Job) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	id := "drm-" + string(job.ID)
	f.submitted[id] = job
	f.status[id] = types.JobQueuedActive
	return id, nil
}

func (f *fakeBackend) JobStatus(id string) (types.JobStatus, error) {
	st, ok := f.status[id]
	if !ok {
		return "", errors.New("unknown drm job")
	}
	return st, nil
}

func (f *fakeBackend) JobExitInfo(id string) (types.ExitInfo, bool, error) {
	info, ok := f.exitInfo[id]
	return info, ok, nil
}

func (f *fakeBackend) KillJob(id string) error {
	f.killed[id] = true
	return nil
}

func TestAdapter_SubmitValidation(t *testing.T) {
	a := NewAdapter(newFakeBackend())

	_, err := a.Submit(nil)
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)

	_, err = a.Submit(&types.Job{ID: "x"})
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)

	_, err = a.Submit(&types.Job{Command: []string{"/bin/true"}})
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)
}

func TestAdapter_SubmitDelegatesToBackend(t *testing.T) {
	backend := newFakeBackend()
	a := NewAdapter(backend)

	id, err := a.Submit(&types.Job{ID: "job-1", Command: []string{"/bin/true"}})
	require.NoError(t, err)
	assert.Equal(t, types.SchedulerJobID("drm-job-1"), id)

	status, err := a.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, types.JobQueuedActive, status)
}

func TestAdapter_GetExitInfo_UnknownMapsToErrUnknownJob(t *testing.T) {
	a := NewAdapter(newFakeBackend())
	_, err := a.GetExitInfo("drm-missing")
	assert.ErrorIs(t, err, scheduler.ErrUnknownJob)
}

func TestAdapter_GetExitInfo_Found(t *testing.T) {
	backend := newFakeBackend()
	backend.exitInfo["drm-job-1"] = types.ExitInfo{Status: types.ExitFinishedRegularly, Value: 0}
	a := NewAdapter(backend)

	info, err := a.GetExitInfo("drm-job-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExitFinishedRegularly, info.Status)
}

func TestAdapter_Kill(t *testing.T) {
	backend := newFakeBackend()
	a := NewAdapter(backend)

	require.NoError(t, a.Kill("drm-job-1"))
	assert.True(t, backend.killed["drm-job-1"])
}

func TestAdapter_SleepWakeClean(t *testing.T) {
	a := NewAdapter(newFakeBackend())
	a.Sleep()
	assert.True(t, a.sleeping)
	a.Wake()
	assert.False(t, a.sleeping)
	assert.NoError(t, a.Clean())
}

func TestAdapter_SubmitPropagatesBackendError(t *testing.T) {
	backend := newFakeBackend()
	backend.submitErr = errors.New("drm unavailable")
	a := NewAdapter(backend)

	_, err := a.Submit(&types.Job{ID: "job-1", Command: []string{"/bin/true"}})
	assert.ErrorContains(t, err, "drm unavailable")
}
