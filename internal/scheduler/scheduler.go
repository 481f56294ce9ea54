// Package scheduler defines the low-level scheduler contract every
// execution backend (local worker pool, distributed message-passing
// cluster, DRM adapter) satisfies, so the workflow engine can drive jobs
// without caring which backend actually runs them — mirroring the way the
// teacher's worker.JobSource interface let a worker.Pool run in push or
// pull mode without caring where jobs came from.
package scheduler

import (
	"errors"

	"github.com/somauser/workflow-engine/pkg/types"
)

// Sentinel errors. get_exit_info is single-shot: a second call for the
// same scheduler id must fail with ErrUnknownJob.
var (
	ErrUnknownJob  = errors.New("scheduler: unknown job")
	ErrInvalidJob  = errors.New("scheduler: invalid job")
	ErrClosed      = errors.New("scheduler: closed")
)

// Scheduler is the uniform contract §4.1 of the specification describes:
// submit / get_status / get_exit_info / kill / sleep / wake / clean. All
// methods must be safe to call concurrently.
type Scheduler interface {
	// Submit enqueues job for execution and returns the scheduler-assigned
	// id. The job must already carry a non-empty JobID.
	Submit(job *types.Job) (types.SchedulerJobID, error)

	// GetStatus returns the current status tag for id, or ErrUnknownJob if
	// id was never submitted.
	GetStatus(id types.SchedulerJobID) (types.JobStatus, error)

	// GetExitInfo returns and consumes the exit tuple for id. A second
	// call for the same id returns ErrUnknownJob.
	GetExitInfo(id types.SchedulerJobID) (types.ExitInfo, error)

	// Kill requests termination of id. Idempotent: killing an already
	// terminal or already-killed job never fails.
	Kill(id types.SchedulerJobID) error

	// Sleep pauses the scheduler's internal driver: no new processes may
	// be launched while asleep.
	Sleep()

	// Wake resumes the driver after Sleep.
	Wake()

	// Clean releases resources held by the scheduler on shutdown.
	Clean() error
}
