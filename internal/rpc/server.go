package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/somauser/workflow-engine/internal/engine"
)

const serviceName = "workflowengine.Engine"

// EngineServer adapts an *engine.Engine to the grpc.ServiceDesc below,
// playing the role the teacher's server.Server played for the job queue:
// one thin method per RPC, no business logic of its own.
type EngineServer struct {
	Engine *engine.Engine
}

func methodDesc(name string, newIn func() interface{}, call func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newIn()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*EngineServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the hand-rolled equivalent of what protoc-gen-go-grpc
// would emit from a .proto describing §6's RPC surface.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("Submit", func() interface{} { return new(SubmitRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*SubmitRequest)
			id, err := s.Engine.SubmitJob(req.Job)
			return &SubmitResponse{JobID: id}, err
		}),
		methodDesc("SubmitWorkflow", func() interface{} { return new(SubmitWorkflowRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*SubmitWorkflowRequest)
			wf, err := s.Engine.SubmitWorkflow(req.Spec)
			return &SubmitWorkflowResponse{Workflow: wf}, err
		}),
		methodDesc("Dispose", func() interface{} { return new(DisposeRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*DisposeRequest)
			if req.WorkflowID != "" {
				return &DisposeResponse{}, s.Engine.DisposeWorkflow(req.WorkflowID)
			}
			return &DisposeResponse{}, s.Engine.DisposeJob(req.JobID)
		}),
		methodDesc("Status", func() interface{} { return new(StatusRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*StatusRequest)
			st, err := s.Engine.Status(req.JobID)
			return &StatusResponse{Status: st}, err
		}),
		methodDesc("ExitInformation", func() interface{} { return new(ExitInformationRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*ExitInformationRequest)
			info, err := s.Engine.ExitInfo(req.JobID)
			return &ExitInformationResponse{ExitInfo: info}, err
		}),
		methodDesc("JobInformation", func() interface{} { return new(JobInformationRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*JobInformationRequest)
			info, err := s.Engine.JobInformation(req.JobID)
			return &JobInformationResponse{Info: info}, err
		}),
		methodDesc("StdoutReadline", func() interface{} { return new(ReadlineRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*ReadlineRequest)
			line, err := s.Engine.StdoutReadline(req.JobID)
			return &ReadlineResponse{Line: line}, err
		}),
		methodDesc("StderrReadline", func() interface{} { return new(ReadlineRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*ReadlineRequest)
			line, err := s.Engine.StderrReadline(req.JobID)
			return &ReadlineResponse{Line: line}, err
		}),
		methodDesc("Wait", func() interface{} { return new(WaitRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*WaitRequest)
			return &WaitResponse{}, s.Engine.Wait(req.JobIDs, req.Timeout)
		}),
		methodDesc("Stop", func() interface{} { return new(JobIDRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*JobIDRequest)
			return &JobIDResponse{}, s.Engine.StopJob(req.JobID)
		}),
		methodDesc("Restart", func() interface{} { return new(JobIDRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*JobIDRequest)
			return &JobIDResponse{}, s.Engine.RestartJob(req.JobID)
		}),
		methodDesc("Kill", func() interface{} { return new(JobIDRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*JobIDRequest)
			return &JobIDResponse{}, s.Engine.KillJob(req.JobID)
		}),
		methodDesc("RegisterTransfer", func() interface{} { return new(RegisterTransferRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*RegisterTransferRequest)
			id, err := s.Engine.RegisterTransfer(req.RemotePath, req.Disposal)
			return &RegisterTransferResponse{TransferID: id}, err
		}),
		methodDesc("SetTransferStatus", func() interface{} { return new(SetTransferStatusRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*SetTransferStatusRequest)
			return &SetTransferStatusResponse{}, s.Engine.SetTransferStatus(req.LocalPath, req.Status)
		}),
		methodDesc("TransferInformation", func() interface{} { return new(TransferInformationRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*TransferInformationRequest)
			info, err := s.Engine.TransferInformation(req.LocalPath)
			return &TransferInformationResponse{Info: info}, err
		}),
		methodDesc("CancelTransfer", func() interface{} { return new(CancelTransferRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			req := in.(*CancelTransferRequest)
			return &CancelTransferResponse{}, s.Engine.CancelTransfer(req.LocalPath)
		}),
		methodDesc("Jobs", func() interface{} { return new(ListRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			return &ListJobsResponse{IDs: s.Engine.Jobs()}, nil
		}),
		methodDesc("Transfers", func() interface{} { return new(ListRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			return &ListTransfersResponse{IDs: s.Engine.Transfers()}, nil
		}),
		methodDesc("Workflows", func() interface{} { return new(ListRequest) }, func(s *EngineServer, ctx context.Context, in interface{}) (interface{}, error) {
			return &ListWorkflowsResponse{IDs: s.Engine.Workflows()}, nil
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "engine.rpc",
}

// Register wires an EngineServer onto an existing *grpc.Server, mirroring
// the generated RegisterXxxServer function protoc-gen-go-grpc would emit.
func Register(s *grpc.Server, srv *EngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}
