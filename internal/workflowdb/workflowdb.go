// Package workflowdb is the workflow database collaborator (A): the
// durable store of workflows, jobs, transfers and dependencies that the
// engine issues queries and updates against. The specification treats its
// persistence internals as out of scope; this package specifies only the
// query/update surface the engine consumes, generalizing the teacher's
// jobmanager hybrid-index state machine (jobs map + queue + in-flight/
// completed/dead maps) from a flat job queue to the three related entity
// tables a workflow needs.
package workflowdb

import (
	"errors"
	"sync"
	"time"

	"github.com/somauser/workflow-engine/pkg/types"
)

var (
	ErrDuplicateJob      = errors.New("workflowdb: duplicate job id")
	ErrDuplicateTransfer = errors.New("workflowdb: duplicate transfer id")
	ErrDuplicateWorkflow = errors.New("workflowdb: duplicate workflow id")
	ErrJobNotFound       = errors.New("workflowdb: job not found")
	ErrTransferNotFound  = errors.New("workflowdb: transfer not found")
	ErrWorkflowNotFound  = errors.New("workflowdb: workflow not found")
)

// DB is an in-memory workflow database. A single mutex protects all three
// tables, the same coarse-then-decomposed granularity the teacher's
// JobManager and the specification's §9 concurrency note both allow.
type DB struct {
	mu sync.RWMutex

	jobs      map[types.JobID]*types.Job
	transfers map[types.TransferID]*types.Transfer
	workflows map[types.WorkflowID]*types.Workflow

	localPathSeq uint64
	submitSeq    uint64
}

func New() *DB {
	return &DB{
		jobs:      make(map[types.JobID]*types.Job),
		transfers: make(map[types.TransferID]*types.Transfer),
		workflows: make(map[types.WorkflowID]*types.Workflow),
	}
}

func now() int64 { return time.Now().UnixMilli() }

// NextSubmitOrder hands out a monotonically increasing counter used to
// break priority ties in submission order, per §4.4's ordering rule.
func (db *DB) NextSubmitOrder() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.submitSeq++
	return db.submitSeq
}

// AllocateLocalPath returns a collision-free local path for a transfer,
// implemented as an atomic counter plus a uniqueness check against the
// transfer table, per §5's shared-resource policy.
func (db *DB) AllocateLocalPath(baseDir string) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	for {
		db.localPathSeq++
		candidate := baseDir + "/xfer-" + itoa(db.localPathSeq)
		if !db.localPathTaken(candidate) {
			return candidate
		}
	}
}

func (db *DB) localPathTaken(path string) bool {
	for _, t := range db.transfers {
		if t.LocalPath == path {
			return true
		}
	}
	return false
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// --- Jobs -------------------------------------------------------------

func (db *DB) PutJob(job *types.Job) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}
	job.CreatedAt = now()
	job.UpdatedAt = job.CreatedAt
	db.jobs[job.ID] = job
	return nil
}

func (db *DB) GetJob(id types.JobID) (*types.Job, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	j, ok := db.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

func (db *DB) UpdateJobStatus(id types.JobID, status types.JobStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	j, ok := db.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = status
	j.UpdatedAt = now()
	return nil
}

func (db *DB) SetJobSchedulerID(id types.JobID, sid types.SchedulerJobID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	j, ok := db.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.SchedulerID = sid
	j.UpdatedAt = now()
	return nil
}

func (db *DB) SetJobExitInfo(id types.JobID, info types.ExitInfo) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	j, ok := db.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.ExitInfo = &info
	j.UpdatedAt = now()
	return nil
}

func (db *DB) JobsByWorkflow(wf types.WorkflowID) []*types.Job {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*types.Job
	for _, j := range db.jobs {
		if j.WorkflowID == wf {
			out = append(out, j)
		}
	}
	return out
}

func (db *DB) AllJobIDs() []types.JobID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]types.JobID, 0, len(db.jobs))
	for id := range db.jobs {
		out = append(out, id)
	}
	return out
}

// --- Transfers ----------------------------------------------------------

func (db *DB) PutTransfer(t *types.Transfer) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.transfers[t.ID]; exists {
		return ErrDuplicateTransfer
	}
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	db.transfers[t.ID] = t
	return nil
}

func (db *DB) GetTransfer(id types.TransferID) (*types.Transfer, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

func (db *DB) UpdateTransferStatus(id types.TransferID, status types.TransferStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	t.Status = status
	t.UpdatedAt = now()
	return nil
}

// AdjustRefCount changes a transfer's refcount by delta under the db lock,
// per §5: "the refcount on each transfer is modified only under the
// engine lock" — the workflowdb is the component that owns that lock for
// refcount bookkeeping.
func (db *DB) AdjustRefCount(id types.TransferID, delta int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.transfers[id]
	if !ok {
		return 0, ErrTransferNotFound
	}
	t.RefCount += delta
	t.UpdatedAt = now()
	return t.RefCount, nil
}

// DeleteTransfer removes a transfer record once its disposal sweep has
// confirmed a zero refcount, per §4.4's disposal-timeout cleanup.
func (db *DB) DeleteTransfer(id types.TransferID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.transfers[id]; !ok {
		return ErrTransferNotFound
	}
	delete(db.transfers, id)
	return nil
}

func (db *DB) AllTransferIDs() []types.TransferID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]types.TransferID, 0, len(db.transfers))
	for id := range db.transfers {
		out = append(out, id)
	}
	return out
}

// --- Workflows ------------------------------------------------------------

func (db *DB) PutWorkflow(wf *types.Workflow) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.workflows[wf.ID]; exists {
		return ErrDuplicateWorkflow
	}
	wf.CreatedAt = now()
	wf.UpdatedAt = wf.CreatedAt
	db.workflows[wf.ID] = wf
	return nil
}

func (db *DB) GetWorkflow(id types.WorkflowID) (*types.Workflow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	wf, ok := db.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return wf, nil
}

func (db *DB) UpdateWorkflowStatus(id types.WorkflowID, status types.WorkflowStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	wf, ok := db.workflows[id]
	if !ok {
		return ErrWorkflowNotFound
	}
	wf.Status = status
	wf.UpdatedAt = now()
	return nil
}

func (db *DB) AllWorkflowIDs() []types.WorkflowID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]types.WorkflowID, 0, len(db.workflows))
	for id := range db.workflows {
		out = append(out, id)
	}
	return out
}

// Snapshot returns a deep-enough copy of all three tables for persistence,
// matching the teacher's JobManager.Snapshot used by the WAL/snapshot
// pair.
func (db *DB) Snapshot() types.SnapshotData {
	db.mu.RLock()
	defer db.mu.RUnlock()
	snap := types.SnapshotData{
		Jobs:      make(map[types.JobID]*types.Job, len(db.jobs)),
		Transfers: make(map[types.TransferID]*types.Transfer, len(db.transfers)),
		Workflows: make(map[types.WorkflowID]*types.Workflow, len(db.workflows)),
		SchemaVer: 1,
	}
	for k, v := range db.jobs {
		jc := *v
		snap.Jobs[k] = &jc
	}
	for k, v := range db.transfers {
		tc := *v
		snap.Transfers[k] = &tc
	}
	for k, v := range db.workflows {
		wc := *v
		snap.Workflows[k] = &wc
	}
	return snap
}

// Restore replaces all three tables from a snapshot, used on engine
// startup recovery.
func (db *DB) Restore(snap types.SnapshotData) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.jobs = snap.Jobs
	db.transfers = snap.Transfers
	db.workflows = snap.Workflows
	if db.jobs == nil {
		db.jobs = make(map[types.JobID]*types.Job)
	}
	if db.transfers == nil {
		db.transfers = make(map[types.TransferID]*types.Transfer)
	}
	if db.workflows == nil {
		db.workflows = make(map[types.WorkflowID]*types.Workflow)
	}
}
