// Package types defines the core domain model shared by the scheduler,
// the workflow engine, and the storage layer: jobs, transfers, workflows,
// their statuses, and the exit-info contract the low-level scheduler
// interface returns.
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobID uniquely identifies a job within the workflow database.
type JobID string

// TransferID uniquely identifies a transfer within the workflow database.
type TransferID string

// WorkflowID uniquely identifies a workflow.
type WorkflowID string

// SchedulerJobID is the identifier a low-level scheduler implementation
// assigns to a submitted job; opaque to the engine.
type SchedulerJobID string

// NewJobID, NewTransferID and NewWorkflowID allocate collision-free ids.
// Grounded in the teacher/pack's adoption of google/uuid for entity ids.
func NewJobID() JobID             { return JobID(uuid.NewString()) }
func NewTransferID() TransferID   { return TransferID(uuid.NewString()) }
func NewWorkflowID() WorkflowID   { return WorkflowID(uuid.NewString()) }

// NodeKind distinguishes the two kinds of node a workflow's dependency
// closure can hold.
type NodeKind int

const (
	NodeKindJob NodeKind = iota
	NodeKindTransfer
)

// NodeID is a tagged union over JobID and TransferID so the DAG driver can
// hold a single dependency graph over heterogeneous nodes.
type NodeID struct {
	Kind NodeKind
	Job  JobID
	Xfer TransferID
}

func JobNode(id JobID) NodeID      { return NodeID{Kind: NodeKindJob, Job: id} }
func TransferNode(id TransferID) NodeID { return NodeID{Kind: NodeKindTransfer, Xfer: id} }

// DependencyEdge is a directed edge u -> v in a workflow's
// full-dependency-closure: v may not start until u is terminally
// successful.
type DependencyEdge struct {
	From NodeID
	To   NodeID
}

// JobStatus is the status enumeration from the job lifecycle.
type JobStatus string

const (
	JobNotSubmitted  JobStatus = "NOT_SUBMITTED"
	JobQueuedActive  JobStatus = "QUEUED_ACTIVE"
	JobRunning       JobStatus = "RUNNING"
	JobUserOnHold    JobStatus = "USER_ON_HOLD"
	JobUserSuspended JobStatus = "USER_SUSPENDED"
	JobDone          JobStatus = "DONE"
	JobFailed        JobStatus = "FAILED"
	JobUndetermined  JobStatus = "UNDETERMINED"
)

// IsTerminal reports whether the status is final for the current run (DONE
// or FAILED); only an explicit restart moves a FAILED job back.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobFailed
}

// TransferStatus is the status enumeration from the transfer lifecycle.
type TransferStatus string

const (
	TransferNotReady      TransferStatus = "TRANSFER_NOT_READY"
	TransferReadyToSend   TransferStatus = "READY_TO_TRANSFER"
	TransferTransferring  TransferStatus = "TRANSFERRING"
	TransferTransferred   TransferStatus = "TRANSFERRED"
)

func (s TransferStatus) IsTerminal() bool { return s == TransferTransferred }

// WorkflowStatus is the status enumeration from the workflow lifecycle.
type WorkflowStatus string

const (
	WorkflowNotStarted WorkflowStatus = "WORKFLOW_NOT_STARTED"
	WorkflowInProgress WorkflowStatus = "WORKFLOW_IN_PROGRESS"
	WorkflowDone       WorkflowStatus = "WORKFLOW_DONE"
)

// ExitStatus is the exit-status enumeration get_exit_info reports.
type ExitStatus string

const (
	ExitFinishedRegularly ExitStatus = "FINISHED_REGULARLY"
	ExitUserKilled        ExitStatus = "USER_KILLED"
	ExitAborted           ExitStatus = "EXIT_ABORTED"
	ExitNotRun            ExitStatus = "EXIT_NOTRUN"
	ExitUndetermined      ExitStatus = "EXIT_UNDETERMINED"
)

// ResourceUsage is a minimal placeholder for the resource-usage field in
// the exit tuple; the underlying schedulers in this build don't collect
// rusage beyond wall time, so only that is populated.
type ResourceUsage struct {
	WallTime time.Duration `json:"wall_time"`
}

// ExitInfo is the exit tuple get_exit_info returns: (exit-status,
// exit-value, terminating-signal, resource-usage). exit-value is
// meaningful only when Status == ExitFinishedRegularly.
type ExitInfo struct {
	Status   ExitStatus    `json:"status"`
	Value    int           `json:"value"`
	Signal   int           `json:"signal"`
	Usage    ResourceUsage `json:"usage"`
}

// ParallelJobInfo is the optional (configuration-tag, max-node-count) pair
// a parallel job carries.
type ParallelJobInfo struct {
	ConfigurationTag string `json:"configuration_tag"`
	MaxNodeCount     int    `json:"max_node_count"`
}

// Job is a unit of work: a command plus stdio redirection, working
// directory, disposal policy, priority, and references to the transfers
// it consumes and produces.
type Job struct {
	ID            JobID          `json:"id"`
	SchedulerID   SchedulerJobID `json:"scheduler_id,omitempty"`
	WorkflowID    WorkflowID     `json:"workflow_id,omitempty"`
	Name          string         `json:"name"`
	Command       []string       `json:"command"`
	Stdin         string         `json:"stdin,omitempty"`
	StdoutFile    string         `json:"stdout_file,omitempty"`
	StderrFile    string         `json:"stderr_file,omitempty"`
	JoinStderrOut bool           `json:"join_stderr_out"`
	WorkingDir    string         `json:"working_directory,omitempty"`
	Parallel      *ParallelJobInfo `json:"parallel_job_info,omitempty"`
	DisposalTimeout time.Duration `json:"disposal_timeout"`
	Priority      int            `json:"priority"`

	InputTransfers  []TransferID `json:"input_transfers,omitempty"`
	OutputTransfers []TransferID `json:"output_transfers,omitempty"`

	Status      JobStatus `json:"status"`
	ExitInfo    *ExitInfo `json:"exit_info,omitempty"`
	SubmitOrder uint64    `json:"submit_order"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
	Deadline  *int64 `json:"deadline_ms,omitempty"`
}

// Transfer is a remote-path <-> local-path mapping plus disposal policy.
type Transfer struct {
	ID         TransferID     `json:"id"`
	RemotePath string         `json:"remote_path"`
	LocalPath  string         `json:"local_path"`
	DisposalTimeout time.Duration `json:"disposal_timeout"`
	ExpiresAt  int64          `json:"expires_at"`
	WorkflowID *WorkflowID    `json:"workflow_id,omitempty"` // nil => standalone
	Status     TransferStatus `json:"status"`
	RefCount   int            `json:"ref_count"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// DisplayGroup is a cosmetic grouping of nodes; it never affects execution.
type DisplayGroup struct {
	Name  string   `json:"name"`
	Nodes []NodeID `json:"nodes"`
}

// Workflow is a set of job/transfer nodes, the dependency edges the client
// declared, the computed full-dependency-closure, and overall status.
type Workflow struct {
	ID           WorkflowID       `json:"id"`
	Name         string           `json:"name"`
	Jobs         []JobID          `json:"jobs"`
	Transfers    []TransferID     `json:"transfers"`
	Dependencies []DependencyEdge `json:"dependencies"`
	FullClosure  []DependencyEdge `json:"full_closure"`
	Groups       []DisplayGroup   `json:"groups,omitempty"`
	Status       WorkflowStatus   `json:"status"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// SnapshotData is the durable system state persisted and restored across
// engine restarts: the full job, transfer, and workflow tables plus the
// WAL sequence number the snapshot was taken at.
type SnapshotData struct {
	Jobs      map[JobID]*Job           `json:"jobs"`
	Transfers map[TransferID]*Transfer `json:"transfers"`
	Workflows map[WorkflowID]*Workflow `json:"workflows"`
	SchemaVer int                      `json:"schema_ver"`
	LastSeq   uint64                   `json:"last_seq"`
}
