package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "shiftstore.v1.Focus"

const (
	submitMethod = "/" + ServiceName + "/Submit"
	getRunMethod = "/" + ServiceName + "/GetRun"
)

// FocusServer is the server side of shiftstore.v1.Focus. Requests and
// responses are google.protobuf.Struct values.
type FocusServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes shiftstore.v1.Focus for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FocusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler(submitMethod, FocusServer.Submit)},
		{MethodName: "GetRun", Handler: unaryHandler(getRunMethod, FocusServer.GetRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shiftstore/v1/focus.proto",
}

// RegisterFocusServer registers srv on s.
func RegisterFocusServer(s grpc.ServiceRegistrar, srv FocusServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(FocusServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FocusServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FocusServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
