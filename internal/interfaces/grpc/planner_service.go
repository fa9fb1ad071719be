package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// PlannerServiceName is the full name of the planner service.
const PlannerServiceName = "tplanner.v1.Planner"

// SimulateRequest starts a run. Scenario is a YAML or JSON scenario document.
type SimulateRequest struct {
	Scenario string `json:"scenario"`
	NoCache  bool   `json:"no_cache,omitempty"`
}

func (r *SimulateRequest) Validate() error {
	if r.Scenario == "" {
		return errors.InvalidParam("scenario is required")
	}
	return nil
}

// RunRequest names a run.
type RunRequest struct {
	ID string `json:"id"`
}

func (r *RunRequest) Validate() error {
	if r.ID == "" {
		return errors.InvalidParam("id is required")
	}
	return nil
}

// ElementsRequest asks for the build plan of a run, optionally of one kind.
type ElementsRequest struct {
	ID   string        `json:"id"`
	Kind terminal.Kind `json:"kind,omitempty"`
}

func (r *ElementsRequest) Validate() error {
	if r.ID == "" {
		return errors.InvalidParam("id is required")
	}
	if r.Kind != "" && !r.Kind.Valid() {
		return errors.InvalidParam("unknown element kind").WithDetail(string(r.Kind))
	}
	return nil
}

type ElementsResponse struct {
	RunID    string             `json:"run_id"`
	Elements []terminal.Element `json:"elements"`
}

// ListRunsRequest pages through recent runs, newest first.
type ListRunsRequest struct {
	Status string `json:"status,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (r *ListRunsRequest) Validate() error {
	if r.Status != "" && !simulation.RunStatus(r.Status).Valid() {
		return errors.InvalidParam("unknown run status").WithDetail(r.Status)
	}
	if r.Offset < 0 || r.Limit < 0 {
		return errors.InvalidParam("offset and limit must not be negative")
	}
	return nil
}

type ListRunsResponse struct {
	Runs   []*simulation.Run `json:"runs"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
}

// WatchRequest follows the events of one run, or of every run when RunID is
// empty.
type WatchRequest struct {
	RunID string `json:"run_id,omitempty"`
}

// PlannerServer adapts the simulation service to the planner service
// description.
type PlannerServer struct {
	svc planning.SimulationService
}

func NewPlannerServer(svc planning.SimulationService) *PlannerServer {
	return &PlannerServer{svc: svc}
}

// Register adds the planner service to s.
func (p *PlannerServer) Register(s *Server) {
	s.RegisterService(&PlannerServiceDesc, p)
}

func (p *PlannerServer) Simulate(ctx context.Context, req *SimulateRequest) (*simulation.Run, error) {
	sc, err := planning.ParseScenario([]byte(req.Scenario))
	if err != nil {
		return nil, err
	}
	return p.svc.Simulate(ctx, &planning.SimulateRequest{Scenario: sc, NoCache: req.NoCache})
}

func (p *PlannerServer) GetRun(ctx context.Context, req *RunRequest) (*simulation.Run, error) {
	return p.svc.GetRun(ctx, req.ID)
}

func (p *PlannerServer) GetNPV(ctx context.Context, req *RunRequest) (*finance.NPVTable, error) {
	return p.svc.GetNPV(ctx, req.ID)
}

func (p *PlannerServer) Elements(ctx context.Context, req *ElementsRequest) (*ElementsResponse, error) {
	elements, err := p.svc.Elements(ctx, req.ID, req.Kind)
	if err != nil {
		return nil, err
	}
	return &ElementsResponse{RunID: req.ID, Elements: elements}, nil
}

func (p *PlannerServer) ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	opts := []simulation.QueryOption{simulation.WithPagination(req.Offset, req.Limit)}
	if req.Status != "" {
		opts = append(opts, simulation.WithStatus(simulation.RunStatus(req.Status)))
	}
	applied := simulation.ApplyOptions(opts...)
	runs, err := p.svc.ListRuns(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &ListRunsResponse{Runs: runs, Offset: applied.Offset, Limit: applied.Limit}, nil
}

// Watch sends planner events until the client leaves. When a run id is given
// the stream ends after that run completes.
func (p *PlannerServer) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	events, cancel := p.svc.Subscribe()
	defer cancel()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if req.RunID != "" && ev.RunID != req.RunID {
				continue
			}
			if err := stream.SendMsg(&ev); err != nil {
				return err
			}
			if req.RunID != "" && ev.Type == planning.EventRunCompleted {
				return nil
			}
		}
	}
}

// unary builds a method handler that decodes Req, runs the interceptor chain
// and calls fn.
func unary[Req any, Resp any](name string, fn func(*PlannerServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	full := "/" + PlannerServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, ic grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, r interface{}) (interface{}, error) {
				resp, err := fn(srv.(*PlannerServer), ctx, r.(*Req))
				return resp, err
			}
			if ic == nil {
				return call(ctx, req)
			}
			return ic(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, call)
		},
	}
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(WatchRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*PlannerServer).Watch(req, stream)
}

// PlannerServiceDesc describes the planner service. Messages use the JSON
// codec.
var PlannerServiceDesc = grpc.ServiceDesc{
	ServiceName: PlannerServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		unary("Simulate", (*PlannerServer).Simulate),
		unary("GetRun", (*PlannerServer).GetRun),
		unary("GetNPV", (*PlannerServer).GetNPV),
		unary("Elements", (*PlannerServer).Elements),
		unary("ListRuns", (*PlannerServer).ListRuns),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		Handler:       watchHandler,
		ServerStreams: true,
	}},
	Metadata: "tplanner/v1/planner",
}
