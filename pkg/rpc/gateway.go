// Package rpc is the gRPC submission gateway a remote process uses to
// submit work against a runtime.Runtime it does not itself own, adapted
// from pkg/api/server.go's grpc.Server lifecycle (Start/Stop,
// net.Listen+Serve, GracefulStop) with mTLS dropped: a single-machine
// task-graph runtime has no multi-tenant cluster boundary to authenticate
// across the way a fleet of untrusted worker nodes does.
package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/log"
	"github.com/cuemby/taskrunner/pkg/runtime"
	"github.com/cuemby/taskrunner/pkg/sched"
	"github.com/cuemby/taskrunner/pkg/task"
	"google.golang.org/grpc"
)

// Server exposes one Runtime's Submit/Wait over gRPC.
type Server struct {
	rt   *runtime.Runtime
	grpc *grpc.Server

	mu    sync.Mutex
	tasks map[string]*task.Task
}

func NewServer(rt *runtime.Runtime) *Server {
	return &Server{
		rt:    rt,
		grpc:  grpc.NewServer(),
		tasks: make(map[string]*task.Task),
	}
}

// Start listens on addr and blocks serving RPCs until Stop is called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	s.grpc.RegisterService(&serviceDesc, s)
	log.Logger.Info().Str("addr", addr).Msg("rpc gateway listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	cl, ok := task.LookupCodelet(req.CodeletName)
	if !ok {
		return nil, fmt.Errorf("rpc: unknown codelet %q", req.CodeletName)
	}
	if len(req.HandleIDs) != len(req.Modes) {
		return nil, fmt.Errorf("rpc: handle/mode count mismatch")
	}

	buffers := make([]task.Buffer, len(req.HandleIDs))
	for i, id := range req.HandleIDs {
		h, err := s.rt.Arena.Get(datawizard.HandleID(id))
		if err != nil {
			return nil, fmt.Errorf("rpc: handle %d: %w", id, err)
		}
		buffers[i] = task.Buffer{Handle: h, Mode: datawizard.AccessMode(req.Modes[i])}
	}

	t := task.Create(cl, buffers, req.Args)
	t.Priority = req.Priority
	if err := s.rt.Submit(t); err != nil {
		return nil, fmt.Errorf("rpc: submit: %w", err)
	}

	s.mu.Lock()
	s.tasks[string(t.ID)] = t
	s.mu.Unlock()

	return &SubmitResponse{TaskID: string(t.ID)}, nil
}

func (s *Server) Wait(ctx context.Context, req *WaitRequest) (*WaitResponse, error) {
	s.mu.Lock()
	t, ok := s.tasks[req.TaskID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rpc: unknown task %q", req.TaskID)
	}

	resp := &WaitResponse{}
	if err := t.Wait(); err != nil {
		resp.Error = err.Error()
	}

	s.mu.Lock()
	delete(s.tasks, req.TaskID)
	s.mu.Unlock()

	return resp, nil
}

func (s *Server) Info(ctx context.Context, req *InfoRequest) (*InfoResponse, error) {
	return &InfoResponse{
		Policies: sched.PolicyNames(),
		Codelets: task.CodeletNames(),
		NCPU:     len(s.rt.Context.Workers()),
	}, nil
}
