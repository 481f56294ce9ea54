package engine

import (
	"errors"
	"time"

	"github.com/somauser/workflow-engine/internal/scheduler"
	"github.com/somauser/workflow-engine/internal/storage/wal"
	"github.com/somauser/workflow-engine/internal/workflowdb"
	"github.com/somauser/workflow-engine/pkg/types"
)

// dispatchLoop is the first of F's three ticking loops: on every tick it
// walks each non-terminal workflow plus standalone jobs, submitting newly
// ready nodes and reaping terminal ones. Same tick-and-select shape as the
// teacher's Controller.dispatchLoop, generalized from a flat job queue to
// per-workflow DAG readiness.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, wfID := range e.db.AllWorkflowIDs() {
		wf, err := e.db.GetWorkflow(wfID)
		if err != nil || wf.Status == types.WorkflowDone {
			continue
		}
		e.tickWorkflow(wf)
	}
	e.tickStandaloneJobs()
}

// tickWorkflow advances one workflow's nodes by one step and, once every
// node has settled, marks the workflow WORKFLOW_DONE.
func (e *Engine) tickWorkflow(wf *types.Workflow) {
	for _, jobID := range wf.Jobs {
		e.tickJobNode(jobID, wf.FullClosure)
	}
	for _, xferID := range wf.Transfers {
		e.tickTransferNode(xferID, wf.FullClosure)
	}

	settled := true
	for _, jobID := range wf.Jobs {
		job, err := e.db.GetJob(jobID)
		if err != nil {
			continue
		}
		if !e.nodeSettled(types.JobNode(jobID), job, nil, wf.FullClosure) {
			settled = false
			break
		}
		if !e.releasedRefs[job.ID] && job.Status == types.JobNotSubmitted && e.metrics != nil {
			// Settled while still NOT_SUBMITTED means an ancestor failed and
			// this job will never run — §4.4's failure-propagation case.
			e.metrics.RecordJobBlocked()
		}
		e.releaseJobTransferRefs(job)
	}
	if settled {
		for _, xferID := range wf.Transfers {
			xfer, err := e.db.GetTransfer(xferID)
			if err != nil {
				continue
			}
			if !e.nodeSettled(types.TransferNode(xferID), nil, xfer, wf.FullClosure) {
				settled = false
				break
			}
		}
	}
	if settled && wf.Status != types.WorkflowDone {
		_ = e.db.UpdateWorkflowStatus(wf.ID, types.WorkflowDone)
		e.log.Info("workflow done", "workflow_id", wf.ID)
		_ = e.wal.Append(wal.EventWorkflowDone, string(wf.ID), "")
		if e.metrics != nil {
			e.metrics.RecordWorkflowDone()
		}
	}
}

// tickStandaloneJobs advances jobs submitted outside any workflow, which
// have no predecessors and so are ready the instant they're NOT_SUBMITTED.
func (e *Engine) tickStandaloneJobs() {
	for _, jobID := range e.db.AllJobIDs() {
		job, err := e.db.GetJob(jobID)
		if err != nil || job.WorkflowID != "" {
			continue
		}
		e.tickJobNode(jobID, nil)
	}
}

func (e *Engine) tickJobNode(jobID types.JobID, closure []types.DependencyEdge) {
	job, err := e.db.GetJob(jobID)
	if err != nil {
		return
	}
	switch job.Status {
	case types.JobNotSubmitted:
		if e.isReady(types.JobNode(jobID), closure) {
			e.dispatchJob(job)
		}
	case types.JobQueuedActive, types.JobRunning:
		e.pollJob(job)
	}
}

func (e *Engine) tickTransferNode(xferID types.TransferID, closure []types.DependencyEdge) {
	xfer, err := e.db.GetTransfer(xferID)
	if err != nil {
		return
	}
	if xfer.Status == types.TransferReadyToSend && e.isReady(types.TransferNode(xferID), closure) {
		_ = e.db.UpdateTransferStatus(xferID, types.TransferTransferring)
		_ = e.wal.Append(wal.EventTransferStatus, string(xferID), string(types.TransferTransferring))
	}
}

// dispatchJob submits a ready job to the low-level scheduler. Write-ahead:
// the WAL entry is appended before the in-memory status flips, the same
// ordering the teacher's dispatchLoop uses for its own dispatch event.
func (e *Engine) dispatchJob(job *types.Job) {
	if err := e.wal.Append(wal.EventJobDispatched, string(job.ID), ""); err != nil {
		e.log.Error("wal append failed, deferring dispatch", "job_id", job.ID, "err", err)
		return
	}
	const submitRetryBackoff = 100 * time.Millisecond
	sid, err := e.sched.Submit(job)
	if err != nil {
		// One retry after a fixed backoff; a second failure marks the job FAILED.
		time.Sleep(submitRetryBackoff)
		sid, err = e.sched.Submit(job)
	}
	if err != nil {
		e.log.Error("scheduler submit failed", "job_id", job.ID, "err", err)
		_ = e.wal.Append(wal.EventJobFailed, string(job.ID), "")
		_ = e.db.UpdateJobStatus(job.ID, types.JobFailed)
		return
	}
	_ = e.db.SetJobSchedulerID(job.ID, sid)
	_ = e.db.UpdateJobStatus(job.ID, types.JobQueuedActive)
	if e.metrics != nil {
		e.metrics.RecordJobDispatched()
	}
}

// pollJob checks a dispatched job's scheduler status and, on terminal
// status, consumes its exit info (get_exit_info is single-shot) and
// promotes output transfers that are now producible.
func (e *Engine) pollJob(job *types.Job) {
	if job.SchedulerID == "" {
		return
	}
	status, err := e.sched.GetStatus(job.SchedulerID)
	if err != nil {
		if err == scheduler.ErrUnknownJob {
			// Exit info already consumed by a prior poll racing this one;
			// nothing further to do.
			return
		}
		e.log.Error("scheduler get_status failed", "job_id", job.ID, "err", err)
		return
	}

	if status != types.JobDone && status != types.JobFailed {
		_ = e.db.UpdateJobStatus(job.ID, status)
		return
	}

	info, err := e.sched.GetExitInfo(job.SchedulerID)
	if err != nil {
		e.log.Error("scheduler get_exit_info failed", "job_id", job.ID, "err", err)
		return
	}

	eventType := wal.EventJobDone
	if status == types.JobFailed {
		eventType = wal.EventJobFailed
	}
	if err := e.wal.Append(eventType, string(job.ID), ""); err != nil {
		e.log.Error("wal append failed", "job_id", job.ID, "err", err)
		return
	}
	_ = e.db.SetJobExitInfo(job.ID, info)
	_ = e.db.UpdateJobStatus(job.ID, status)
	e.releaseJobTransferRefs(job)

	if e.metrics != nil {
		latency := float64(time.Now().UnixMilli()-job.CreatedAt) / 1000
		if status == types.JobDone {
			e.metrics.RecordJobDone(latency)
		} else {
			e.metrics.RecordJobFailed(latency)
		}
	}

	if status == types.JobDone {
		for _, outID := range job.OutputTransfers {
			out, err := e.db.GetTransfer(outID)
			if err != nil || out.Status != types.TransferNotReady {
				continue
			}
			_ = e.db.UpdateTransferStatus(outID, types.TransferReadyToSend)
			_ = e.wal.Append(wal.EventTransferStatus, string(outID), string(types.TransferReadyToSend))
		}
	}
}

// releaseJobTransferRefs drops this job's reference-count hold on every
// transfer it consumes or produces, once the job has settled — the
// job-reference component of §8 invariant 3's refcount (refcount = live
// referencing jobs + containing workflow, if any). Idempotent: a settled
// job may be observed settled on more than one tick.
func (e *Engine) releaseJobTransferRefs(job *types.Job) {
	if e.releasedRefs[job.ID] {
		return
	}
	e.releasedRefs[job.ID] = true
	for _, id := range job.InputTransfers {
		if _, err := e.db.AdjustRefCount(id, -1); err != nil && !errors.Is(err, workflowdb.ErrTransferNotFound) {
			e.log.Error("refcount decrement failed", "job_id", job.ID, "transfer_id", id, "err", err)
		}
	}
	for _, id := range job.OutputTransfers {
		if _, err := e.db.AdjustRefCount(id, -1); err != nil && !errors.Is(err, workflowdb.ErrTransferNotFound) {
			e.log.Error("refcount decrement failed", "job_id", job.ID, "transfer_id", id, "err", err)
		}
	}
}

// isReady reports whether every predecessor of n in closure is in a
// terminal-success state — §4.4's launchability rule.
func (e *Engine) isReady(n types.NodeID, closure []types.DependencyEdge) bool {
	for _, p := range predecessors(closure, n) {
		if !e.nodeTerminalSuccess(p) {
			return false
		}
	}
	return true
}

func (e *Engine) nodeTerminalSuccess(n types.NodeID) bool {
	if n.Kind == types.NodeKindJob {
		job, err := e.db.GetJob(n.Job)
		return err == nil && job.Status == types.JobDone
	}
	xfer, err := e.db.GetTransfer(n.Xfer)
	return err == nil && xfer.Status == types.TransferTransferred
}

// isBlocked reports whether n can never become ready: a job predecessor
// has failed, or is itself permanently blocked. Computed on demand rather
// than persisted, per the failure-propagation rule in §4.4.
func (e *Engine) isBlocked(n types.NodeID, closure []types.DependencyEdge) bool {
	for _, p := range predecessors(closure, n) {
		if p.Kind == types.NodeKindJob {
			job, err := e.db.GetJob(p.Job)
			if err == nil && job.Status == types.JobFailed {
				return true
			}
		}
		if e.isBlocked(p, closure) {
			return true
		}
	}
	return false
}

// nodeSettled reports whether n will never change state again: terminal
// success, terminal job failure, or permanently blocked while still
// unsubmitted/not-ready.
func (e *Engine) nodeSettled(n types.NodeID, job *types.Job, xfer *types.Transfer, closure []types.DependencyEdge) bool {
	if n.Kind == types.NodeKindJob {
		if job == nil {
			var err error
			job, err = e.db.GetJob(n.Job)
			if err != nil {
				return true
			}
		}
		switch job.Status {
		case types.JobDone, types.JobFailed:
			return true
		case types.JobNotSubmitted:
			return e.isBlocked(n, closure)
		default:
			return false
		}
	}
	if xfer == nil {
		var err error
		xfer, err = e.db.GetTransfer(n.Xfer)
		if err != nil {
			return true
		}
	}
	switch xfer.Status {
	case types.TransferTransferred:
		return true
	case types.TransferNotReady:
		return e.isBlocked(n, closure)
	default:
		return false
	}
}

// sweepLoop is F's disposal-timeout sweeper: kills jobs that have run past
// their deadline and reclaims unreferenced, expired transfers.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	now := time.Now().UnixMilli()

	e.mu.Lock()
	jobIDs := e.db.AllJobIDs()
	xferIDs := e.db.AllTransferIDs()
	wfIDs := e.db.AllWorkflowIDs()
	e.mu.Unlock()

	inFlight, ready := 0, 0
	for _, id := range jobIDs {
		job, err := e.db.GetJob(id)
		if err != nil {
			continue
		}
		switch job.Status {
		case types.JobQueuedActive, types.JobRunning:
			inFlight++
		case types.JobNotSubmitted:
			var closure []types.DependencyEdge
			if job.WorkflowID != "" {
				if wf, err := e.db.GetWorkflow(job.WorkflowID); err == nil {
					closure = wf.FullClosure
				}
			}
			if e.isReady(types.JobNode(id), closure) {
				ready++
			}
		}
		if job.Status.IsTerminal() || job.Deadline == nil || now <= *job.Deadline {
			continue
		}
		if job.SchedulerID != "" {
			if err := e.sched.Kill(job.SchedulerID); err != nil {
				e.log.Error("disposal-timeout kill failed", "job_id", id, "err", err)
			}
		}
	}

	for _, id := range xferIDs {
		xfer, err := e.db.GetTransfer(id)
		if err != nil || xfer.RefCount > 0 || xfer.ExpiresAt == 0 || now <= xfer.ExpiresAt {
			continue
		}
		if err := e.db.DeleteTransfer(id); err != nil {
			e.log.Error("disposal sweep delete failed", "transfer_id", id, "err", err)
		}
	}

	if e.metrics != nil {
		running := 0
		for _, id := range wfIDs {
			if wf, err := e.db.GetWorkflow(id); err == nil && wf.Status != types.WorkflowDone {
				running++
			}
		}
		e.metrics.UpdateGauges(inFlight, ready, running)
	}
}

// snapshotLoop periodically checkpoints state, same shape as the teacher's.
func (e *Engine) snapshotLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.takeSnapshot(); err != nil {
				e.log.Error("periodic snapshot failed", "err", err)
			}
		}
	}
}
