package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/somauser/workflow-engine/internal/engine"
	"github.com/somauser/workflow-engine/pkg/types"
)

// Client is a thin typed wrapper over a *grpc.ClientConn dialed against an
// EngineServer, forcing every call onto the JSON codec registered in
// codec.go instead of grpc's default proto codec.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(codecName))
}

func (c *Client) Submit(ctx context.Context, job types.Job) (types.JobID, error) {
	out := new(SubmitResponse)
	err := c.invoke(ctx, "Submit", &SubmitRequest{Job: job}, out)
	return out.JobID, err
}

func (c *Client) Status(ctx context.Context, id types.JobID) (types.JobStatus, error) {
	out := new(StatusResponse)
	err := c.invoke(ctx, "Status", &StatusRequest{JobID: id}, out)
	return out.Status, err
}

func (c *Client) ExitInformation(ctx context.Context, id types.JobID) (*types.ExitInfo, error) {
	out := new(ExitInformationResponse)
	err := c.invoke(ctx, "ExitInformation", &ExitInformationRequest{JobID: id}, out)
	return out.ExitInfo, err
}

func (c *Client) Kill(ctx context.Context, id types.JobID) error {
	out := new(JobIDResponse)
	return c.invoke(ctx, "Kill", &JobIDRequest{JobID: id}, out)
}

func (c *Client) Jobs(ctx context.Context) ([]types.JobID, error) {
	out := new(ListJobsResponse)
	err := c.invoke(ctx, "Jobs", &ListRequest{}, out)
	return out.IDs, err
}

func (c *Client) Workflows(ctx context.Context) ([]types.WorkflowID, error) {
	out := new(ListWorkflowsResponse)
	err := c.invoke(ctx, "Workflows", &ListRequest{}, out)
	return out.IDs, err
}

func (c *Client) SubmitWorkflow(ctx context.Context, spec engine.WorkflowSpec) (*types.Workflow, error) {
	out := new(SubmitWorkflowResponse)
	err := c.invoke(ctx, "SubmitWorkflow", &SubmitWorkflowRequest{Spec: spec}, out)
	return out.Workflow, err
}

func (c *Client) Wait(ctx context.Context, ids []types.JobID, timeout time.Duration) error {
	out := new(WaitResponse)
	return c.invoke(ctx, "Wait", &WaitRequest{JobIDs: ids, Timeout: timeout}, out)
}

func (c *Client) JobInformation(ctx context.Context, id types.JobID) (engine.JobInfo, error) {
	out := new(JobInformationResponse)
	err := c.invoke(ctx, "JobInformation", &JobInformationRequest{JobID: id}, out)
	return out.Info, err
}
