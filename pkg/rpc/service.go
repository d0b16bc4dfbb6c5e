package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// SubmitRequest names a registered codelet and the already-registered
// datawizard handles to bind to it; handle ids must come from a prior
// Arena.Register call made by an in-process caller (pkg/rpc exposes no RPC
// for registering raw data itself, only for submitting work against data
// the host process already holds).
type SubmitRequest struct {
	CodeletName string
	HandleIDs   []int
	Modes       []uint8
	Args        []byte
	Priority    int
}

type SubmitResponse struct {
	TaskID string
}

type WaitRequest struct {
	TaskID string
}

type WaitResponse struct {
	Error string // empty on success
}

type InfoRequest struct{}

type InfoResponse struct {
	Policies []string
	Codelets []string
	NCPU     int
}

// taskRunnerServer is the gRPC-visible method set; Server implements it.
type taskRunnerServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	Wait(context.Context, *WaitRequest) (*WaitResponse, error)
	Info(context.Context, *InfoRequest) (*InfoResponse, error)
}

// serviceDesc is the hand-rolled equivalent of what protoc-gen-go-grpc
// would emit for a TaskRunnerService with Submit/Wait/Info unary RPCs.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "taskrunner.TaskRunnerService",
	HandlerType: (*taskRunnerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "Wait", Handler: waitHandler},
		{MethodName: "Info", Handler: infoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskrunner.proto",
}

func submitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(taskRunnerServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/taskrunner.TaskRunnerService/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(taskRunnerServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func waitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WaitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(taskRunnerServer).Wait(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/taskrunner.TaskRunnerService/Wait"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(taskRunnerServer).Wait(ctx, req.(*WaitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func infoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(taskRunnerServer).Info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/taskrunner.TaskRunnerService/Info"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(taskRunnerServer).Info(ctx, req.(*InfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}
