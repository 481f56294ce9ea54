package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/somauser/workflow-engine/internal/storage/wal"
	"github.com/somauser/workflow-engine/internal/workflowdb"
	"github.com/somauser/workflow-engine/pkg/types"
)

// ErrInvalidJob mirrors the *InvalidJob* error kind in §7: missing command
// or, at scheduler submit time, a missing id.
var ErrInvalidJob = errors.New("engine: invalid job (missing command)")

func hoursToDeadline(created int64, d time.Duration) *int64 {
	if d <= 0 {
		return nil
	}
	dl := created + d.Milliseconds()
	return &dl
}

// WorkflowSpec is what a client hands submit_workflow: jobs and transfers
// with caller-chosen or blank ids, plus the declared dependency edges over
// those ids.
type WorkflowSpec struct {
	Name         string
	Jobs         []types.Job
	Transfers    []types.Transfer
	Dependencies []types.DependencyEdge
	Groups       []types.DisplayGroup
}

// SubmitWorkflow implements §4.4's five-step submission: validate the DAG,
// compute the closure, allocate transfer local paths, persist everything,
// and mark the workflow RUNNING (WORKFLOW_IN_PROGRESS).
func (e *Engine) SubmitWorkflow(spec WorkflowSpec) (*types.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wfID := types.NewWorkflowID()
	now := time.Now().UnixMilli()

	outputOf := make(map[types.TransferID]bool)
	for i := range spec.Jobs {
		for _, o := range spec.Jobs[i].OutputTransfers {
			outputOf[o] = true
		}
	}

	jobs := make([]*types.Job, len(spec.Jobs))
	for i := range spec.Jobs {
		j := spec.Jobs[i]
		if len(j.Command) == 0 {
			return nil, fmt.Errorf("%w: job %q has empty command", ErrInvalidJob, j.Name)
		}
		if j.ID == "" {
			j.ID = types.NewJobID()
		}
		j.WorkflowID = wfID
		j.Status = types.JobNotSubmitted
		j.SubmitOrder = e.db.NextSubmitOrder()
		j.Deadline = hoursToDeadline(now, j.DisposalTimeout)
		jobs[i] = &j
	}

	// refDelta counts, per transfer, how many of this submission's jobs
	// reference it as input or output — the job-reference component of §8
	// invariant 3's refcount (refcount = live referencing jobs + containing
	// workflow, if any).
	refDelta := make(map[types.TransferID]int)
	for _, j := range jobs {
		for _, in := range j.InputTransfers {
			refDelta[in]++
		}
		for _, out := range j.OutputTransfers {
			refDelta[out]++
		}
	}

	declared := make(map[types.TransferID]bool, len(spec.Transfers))
	for i := range spec.Transfers {
		declared[spec.Transfers[i].ID] = true
	}

	transfers := make([]*types.Transfer, len(spec.Transfers))
	for i := range spec.Transfers {
		t := spec.Transfers[i]
		if t.ID == "" {
			t.ID = types.NewTransferID()
			declared[t.ID] = true
		}
		wf := wfID
		t.WorkflowID = &wf
		t.LocalPath = e.db.AllocateLocalPath(e.config.TransferBaseDir)
		t.RefCount = 1 + refDelta[t.ID]
		t.ExpiresAt = now + t.DisposalTimeout.Milliseconds()
		if outputOf[t.ID] {
			t.Status = types.TransferNotReady
		} else {
			t.Status = types.TransferReadyToSend
		}
		transfers[i] = &t
	}

	// A transfer a job references that wasn't declared in this submission
	// must already exist in the database — e.g. registered standalone via
	// RegisterTransfer, per scenario S6 — otherwise it's a dangling
	// reference. Such external transfers aren't owned by the new workflow,
	// but they're still predecessor/successor nodes in its dependency
	// closure, so the validation node set must admit them.
	var externalIDs []types.TransferID
	for id := range refDelta {
		if declared[id] {
			continue
		}
		if _, err := e.db.GetTransfer(id); err != nil {
			return nil, fmt.Errorf("%w: job references unknown transfer %q", ErrInvalidWorkflow, id)
		}
		externalIDs = append(externalIDs, id)
	}

	nodes := make([]types.NodeID, 0, len(jobs)+len(transfers)+len(externalIDs))
	for _, j := range jobs {
		nodes = append(nodes, types.JobNode(j.ID))
	}
	for _, t := range transfers {
		nodes = append(nodes, types.TransferNode(t.ID))
	}
	for _, id := range externalIDs {
		nodes = append(nodes, types.TransferNode(id))
	}

	closure := closureFor(jobs, spec.Dependencies)
	if err := validateDAG(nodes, closure); err != nil {
		return nil, err
	}

	for _, j := range jobs {
		if err := e.db.PutJob(j); err != nil {
			return nil, err
		}
	}
	for _, t := range transfers {
		if err := e.db.PutTransfer(t); err != nil {
			return nil, err
		}
	}
	for _, id := range externalIDs {
		if _, err := e.db.AdjustRefCount(id, refDelta[id]); err != nil {
			e.log.Error("refcount increment failed", "transfer_id", id, "err", err)
		}
	}

	jobIDs := make([]types.JobID, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.ID
	}
	transferIDs := make([]types.TransferID, len(transfers))
	for i, t := range transfers {
		transferIDs[i] = t.ID
	}

	wf := &types.Workflow{
		ID:           wfID,
		Name:         spec.Name,
		Jobs:         jobIDs,
		Transfers:    transferIDs,
		Dependencies: spec.Dependencies,
		FullClosure:  closure,
		Groups:       spec.Groups,
		Status:       types.WorkflowInProgress,
	}
	if err := e.db.PutWorkflow(wf); err != nil {
		return nil, err
	}

	for _, j := range jobs {
		_ = e.wal.Append(wal.EventJobSubmitted, string(j.ID), "")
	}
	for _, t := range transfers {
		_ = e.wal.Append(wal.EventTransferStatus, string(t.ID), string(t.Status))
	}

	e.log.Info("workflow submitted", "workflow_id", wfID, "jobs", len(jobs), "transfers", len(transfers))
	if e.metrics != nil {
		e.metrics.RecordWorkflowSubmitted()
		for range jobs {
			e.metrics.RecordJobSubmitted()
		}
		for range transfers {
			e.metrics.RecordTransferRegistered()
		}
	}
	return wf, nil
}

// SubmitJob accepts a standalone job (no workflow), per submit(job-spec).
func (e *Engine) SubmitJob(job types.Job) (types.JobID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(job.Command) == 0 {
		return "", ErrInvalidJob
	}
	if job.ID == "" {
		job.ID = types.NewJobID()
	}
	job.Status = types.JobNotSubmitted
	job.SubmitOrder = e.db.NextSubmitOrder()
	job.Deadline = hoursToDeadline(time.Now().UnixMilli(), job.DisposalTimeout)

	if err := e.db.PutJob(&job); err != nil {
		return "", err
	}
	_ = e.wal.Append(wal.EventJobSubmitted, string(job.ID), "")
	if e.metrics != nil {
		e.metrics.RecordJobSubmitted()
	}
	return job.ID, nil
}

// DisposeJob kills a job (if running) and leaves it inspectable, per §7's
// "failed workflow remains inspectable until explicitly disposed" note
// extended to the job level. Idempotent.
func (e *Engine) DisposeJob(id types.JobID) error {
	job, err := e.db.GetJob(id)
	if err != nil {
		return ErrUnknownJob
	}
	if job.SchedulerID != "" && !job.Status.IsTerminal() {
		if err := e.sched.Kill(job.SchedulerID); err != nil {
			return err
		}
	}
	return nil
}

// DisposeWorkflow kills every in-flight job in the workflow, decrements
// transfer refcounts, and marks the workflow terminal, per dispose's
// contract in §4.4. Idempotent.
func (e *Engine) DisposeWorkflow(id types.WorkflowID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, err := e.db.GetWorkflow(id)
	if err != nil {
		return ErrUnknownWorkflow
	}

	for _, job := range e.db.JobsByWorkflow(id) {
		if job.SchedulerID != "" && !job.Status.IsTerminal() {
			_ = e.sched.Kill(job.SchedulerID)
		}
	}
	if wf.Status != types.WorkflowDone {
		for _, xferID := range wf.Transfers {
			if _, err := e.db.AdjustRefCount(xferID, -1); err != nil && !errors.Is(err, workflowdb.ErrTransferNotFound) {
				e.log.Error("refcount decrement failed", "transfer_id", xferID, "err", err)
			}
		}
		_ = e.db.UpdateWorkflowStatus(id, types.WorkflowDone)
		_ = e.wal.Append(wal.EventWorkflowDone, string(id), "")
	}
	return nil
}

// Status returns a job's current status tag.
func (e *Engine) Status(id types.JobID) (types.JobStatus, error) {
	job, err := e.db.GetJob(id)
	if err != nil {
		return "", ErrUnknownJob
	}
	return job.Status, nil
}

// ExitInfo returns a job's exit tuple, or nil if it hasn't produced one yet.
func (e *Engine) ExitInfo(id types.JobID) (*types.ExitInfo, error) {
	job, err := e.db.GetJob(id)
	if err != nil {
		return nil, ErrUnknownJob
	}
	return job.ExitInfo, nil
}

// JobInfo is job_information's (name, command, submission-time) triple.
type JobInfo struct {
	Name        string
	Command     []string
	SubmittedAt int64
}

func (e *Engine) JobInformation(id types.JobID) (JobInfo, error) {
	job, err := e.db.GetJob(id)
	if err != nil {
		return JobInfo{}, ErrUnknownJob
	}
	return JobInfo{Name: job.Name, Command: job.Command, SubmittedAt: job.CreatedAt}, nil
}

// Wait blocks until every id in ids is terminal or timeout elapses.
// Negative timeout waits indefinitely; zero polls once, per §5.
func (e *Engine) Wait(ids []types.JobID, timeout time.Duration) error {
	const pollInterval = 20 * time.Millisecond

	check := func() (bool, error) {
		for _, id := range ids {
			job, err := e.db.GetJob(id)
			if err != nil {
				return false, ErrUnknownJob
			}
			if !job.Status.IsTerminal() {
				return false, nil
			}
		}
		return true, nil
	}

	done, err := check()
	if err != nil || done {
		return err
	}
	if timeout == 0 {
		return nil
	}

	var deadline time.Time
	bounded := timeout > 0
	if bounded {
		deadline = time.Now().Add(timeout)
	}
	for {
		time.Sleep(pollInterval)
		done, err := check()
		if err != nil || done {
			return err
		}
		if bounded && time.Now().After(deadline) {
			return nil
		}
	}
}

// StopJob moves a not-yet-running job to USER_ON_HOLD; restartable via
// RestartJob. Jobs already dispatched to the low-level scheduler run to
// completion (the Scheduler interface has no per-job pause primitive).
func (e *Engine) StopJob(id types.JobID) error {
	job, err := e.db.GetJob(id)
	if err != nil {
		return ErrUnknownJob
	}
	if job.Status != types.JobNotSubmitted {
		return nil
	}
	return e.db.UpdateJobStatus(id, types.JobUserOnHold)
}

// RestartJob returns a held, suspended, or failed job to NOT_SUBMITTED so
// the dispatch loop will reconsider it.
func (e *Engine) RestartJob(id types.JobID) error {
	job, err := e.db.GetJob(id)
	if err != nil {
		return ErrUnknownJob
	}
	switch job.Status {
	case types.JobUserOnHold, types.JobUserSuspended, types.JobFailed:
		return e.db.UpdateJobStatus(id, types.JobNotSubmitted)
	default:
		return nil
	}
}

// KillJob requests termination of a dispatched job; idempotent.
func (e *Engine) KillJob(id types.JobID) error {
	job, err := e.db.GetJob(id)
	if err != nil {
		return ErrUnknownJob
	}
	if job.SchedulerID == "" || job.Status.IsTerminal() {
		return nil
	}
	return e.sched.Kill(job.SchedulerID)
}

// RegisterTransfer allocates a local path for a client-supplied remote
// path, standalone (not tied to any workflow).
func (e *Engine) RegisterTransfer(remotePath string, disposal time.Duration) (types.TransferID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UnixMilli()
	t := &types.Transfer{
		ID:              types.NewTransferID(),
		RemotePath:      remotePath,
		LocalPath:       e.db.AllocateLocalPath(e.config.TransferBaseDir),
		DisposalTimeout: disposal,
		ExpiresAt:       now + disposal.Milliseconds(),
		Status:          types.TransferReadyToSend,
	}
	if err := e.db.PutTransfer(t); err != nil {
		return "", err
	}
	_ = e.wal.Append(wal.EventTransferStatus, string(t.ID), string(t.Status))
	if e.metrics != nil {
		e.metrics.RecordTransferRegistered()
	}
	return t.ID, nil
}

func (e *Engine) findTransferByLocalPath(localPath string) (*types.Transfer, error) {
	for _, id := range e.db.AllTransferIDs() {
		t, err := e.db.GetTransfer(id)
		if err == nil && t.LocalPath == localPath {
			return t, nil
		}
	}
	return nil, ErrUnknownTransfer
}

// SetTransferStatus lets the client report bytes-moving progress, the
// signal the workflow engine's tick loop is otherwise waiting on.
func (e *Engine) SetTransferStatus(localPath string, status types.TransferStatus) error {
	t, err := e.findTransferByLocalPath(localPath)
	if err != nil {
		return err
	}
	if err := e.db.UpdateTransferStatus(t.ID, status); err != nil {
		return err
	}
	_ = e.wal.Append(wal.EventTransferStatus, string(t.ID), string(status))
	if status == types.TransferTransferred && e.metrics != nil {
		e.metrics.RecordTransferCompleted()
	}
	return nil
}

// TransferInfo is the 4-tuple §9's open question resolves transfer_
// information to: (local, remote, expiry, workflow-id).
type TransferInfo struct {
	LocalPath  string
	RemotePath string
	ExpiresAt  int64
	WorkflowID types.WorkflowID
}

func (e *Engine) TransferInformation(localPath string) (TransferInfo, error) {
	t, err := e.findTransferByLocalPath(localPath)
	if err != nil {
		return TransferInfo{}, err
	}
	var wfID types.WorkflowID
	if t.WorkflowID != nil {
		wfID = *t.WorkflowID
	}
	return TransferInfo{LocalPath: t.LocalPath, RemotePath: t.RemotePath, ExpiresAt: t.ExpiresAt, WorkflowID: wfID}, nil
}

// CancelTransfer releases a transfer immediately if unreferenced, or
// defers to the disposal sweeper if its refcount is still positive.
func (e *Engine) CancelTransfer(localPath string) error {
	t, err := e.findTransferByLocalPath(localPath)
	if err != nil {
		return err
	}
	if t.RefCount > 0 {
		return nil
	}
	return e.db.DeleteTransfer(t.ID)
}

func (e *Engine) Jobs() []types.JobID           { return e.db.AllJobIDs() }
func (e *Engine) Transfers() []types.TransferID { return e.db.AllTransferIDs() }
func (e *Engine) Workflows() []types.WorkflowID { return e.db.AllWorkflowIDs() }

// readLine reads the next unread line from path starting at *offset,
// advancing it past the line on success. Returns ("", nil) if no complete
// line is available yet, matching stdout_readline/stderr_readline's
// poll-friendly single-line contract.
func readLine(path string, offset *int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	if _, err := f.Seek(*offset, io.SeekStart); err != nil {
		return "", err
	}
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	*offset += int64(len(line))
	return line, nil
}

func (e *Engine) StdoutReadline(id types.JobID) (string, error) {
	job, err := e.db.GetJob(id)
	if err != nil {
		return "", ErrUnknownJob
	}
	if job.StdoutFile == "" {
		return "", nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	off := e.stdoutOffsets[id]
	line, err := readLine(job.StdoutFile, &off)
	if err != nil {
		return "", err
	}
	e.stdoutOffsets[id] = off
	return line, nil
}

func (e *Engine) StderrReadline(id types.JobID) (string, error) {
	job, err := e.db.GetJob(id)
	if err != nil {
		return "", ErrUnknownJob
	}
	if job.StderrFile == "" {
		return "", nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	off := e.stderrOffsets[id]
	line, err := readLine(job.StderrFile, &off)
	if err != nil {
		return "", err
	}
	e.stderrOffsets[id] = off
	return line, nil
}
