// Package drm provides the low-level scheduler's DRM variant: E in the
// component table, an external distributed resource manager. The
// specification treats the concrete DRM wire protocol as an out-of-scope
// collaborator ("the concrete DRM adapter's wire protocol" per §1's
// Out-of-scope list) — this package only wires the same
// scheduler.Scheduler contract onto a pluggable Backend so the engine
// never needs to know whether it's talking to the local pool, the
// distributed cluster, or a real DRM.
package drm

import (
	"github.com/somauser/workflow-engine/internal/scheduler"
	"github.com/somauser/workflow-engine/pkg/types"
)

// Backend is the minimal surface a concrete DRM client library exposes;
// implementations live outside this module (e.g. a DRMAA binding).
type Backend interface {
	SubmitJob(job *types.Job) (string, error)
	JobStatus(id string) (types.JobStatus, error)
	JobExitInfo(id string) (types.ExitInfo, bool, error)
	KillJob(id string) error
}

// Adapter satisfies scheduler.Scheduler by delegating to a Backend,
// translating between the opaque string ids a DRM client speaks and
// types.SchedulerJobID.
type Adapter struct {
	backend  Backend
	sleeping bool
}

func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

func (a *Adapter) Submit(job *types.Job) (types.SchedulerJobID, error) {
	if job == nil || job.ID == "" || len(job.Command) == 0 {
		return "", scheduler.ErrInvalidJob
	}
	id, err := a.backend.SubmitJob(job)
	if err != nil {
		return "", err
	}
	return types.SchedulerJobID(id), nil
}

func (a *Adapter) GetStatus(id types.SchedulerJobID) (types.JobStatus, error) {
	return a.backend.JobStatus(string(id))
}

func (a *Adapter) GetExitInfo(id types.SchedulerJobID) (types.ExitInfo, error) {
	info, ok, err := a.backend.JobExitInfo(string(id))
	if err != nil {
		return types.ExitInfo{}, err
	}
	if !ok {
		return types.ExitInfo{}, scheduler.ErrUnknownJob
	}
	return info, nil
}

func (a *Adapter) Kill(id types.SchedulerJobID) error {
	return a.backend.KillJob(string(id))
}

// Sleep/Wake have no DRM-side meaning (the DRM's own queue keeps running);
// they only record a flag that nothing else reads (Submit ignores it), kept
// for interface conformance.
func (a *Adapter) Sleep() { a.sleeping = true }
func (a *Adapter) Wake()  { a.sleeping = false }
func (a *Adapter) Clean() error { return nil }

var _ scheduler.Scheduler = (*Adapter)(nil)
