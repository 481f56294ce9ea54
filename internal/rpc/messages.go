package rpc

import (
	"time"

	"github.com/somauser/workflow-engine/internal/engine"
	"github.com/somauser/workflow-engine/pkg/types"
)

// Request/response pairs, one per §6 Engine RPC surface entry.

type SubmitRequest struct{ Job types.Job }
type SubmitResponse struct{ JobID types.JobID }

type SubmitWorkflowRequest struct{ Spec engine.WorkflowSpec }
type SubmitWorkflowResponse struct{ Workflow *types.Workflow }

type DisposeRequest struct {
	JobID      types.JobID
	WorkflowID types.WorkflowID
}
type DisposeResponse struct{}

type StatusRequest struct{ JobID types.JobID }
type StatusResponse struct{ Status types.JobStatus }

type ExitInformationRequest struct{ JobID types.JobID }
type ExitInformationResponse struct{ ExitInfo *types.ExitInfo }

type JobInformationRequest struct{ JobID types.JobID }
type JobInformationResponse struct{ Info engine.JobInfo }

type ReadlineRequest struct{ JobID types.JobID }
type ReadlineResponse struct{ Line string }

type WaitRequest struct {
	JobIDs  []types.JobID
	Timeout time.Duration
}
type WaitResponse struct{}

type JobIDRequest struct{ JobID types.JobID }
type JobIDResponse struct{}

type RegisterTransferRequest struct {
	RemotePath string
	Disposal   time.Duration
}
type RegisterTransferResponse struct{ TransferID types.TransferID }

type SetTransferStatusRequest struct {
	LocalPath string
	Status    types.TransferStatus
}
type SetTransferStatusResponse struct{}

type TransferInformationRequest struct{ LocalPath string }
type TransferInformationResponse struct{ Info engine.TransferInfo }

type CancelTransferRequest struct{ LocalPath string }
type CancelTransferResponse struct{}

type ListRequest struct{}
type ListJobsResponse struct{ IDs []types.JobID }
type ListTransfersResponse struct{ IDs []types.TransferID }
type ListWorkflowsResponse struct{ IDs []types.WorkflowID }
