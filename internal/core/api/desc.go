package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "inboxkeeper.v1.Organizer"

// Full method names.
const (
	MethodEvaluate  = "/" + ServiceName + "/Evaluate"
	MethodOrganize  = "/" + ServiceName + "/Organize"
	MethodListRules = "/" + ServiceName + "/ListRules"
)

// OrganizerServer is the server API for the organizer service.
type OrganizerServer interface {
	// Evaluate returns the actions the rule set selects for a record
	// without dispatching them.
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Organize evaluates and dispatches a batch of records.
	Organize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListRules returns the loaded rules in evaluation order with their
	// diagnostics.
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(OrganizerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrganizerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OrganizerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrganizerServiceDesc describes the organizer service for grpc.Server.
var OrganizerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrganizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(MethodEvaluate, OrganizerServer.Evaluate)},
		{MethodName: "Organize", Handler: unaryHandler(MethodOrganize, OrganizerServer.Organize)},
		{MethodName: "ListRules", Handler: unaryHandler(MethodListRules, OrganizerServer.ListRules)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inboxkeeper/v1/organizer.proto",
}

// RegisterOrganizerServer registers srv with s.
func RegisterOrganizerServer(s grpc.ServiceRegistrar, srv OrganizerServer) {
	s.RegisterService(&OrganizerServiceDesc, srv)
}

// OrganizerClient calls the organizer service.
type OrganizerClient struct {
	cc grpc.ClientConnInterface
}

// NewOrganizerClient returns a client over cc.
func NewOrganizerClient(cc grpc.ClientConnInterface) *OrganizerClient {
	return &OrganizerClient{cc: cc}
}

func (c *OrganizerClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Evaluate calls Organizer/Evaluate.
func (c *OrganizerClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodEvaluate, in, opts...)
}

// Organize calls Organizer/Organize.
func (c *OrganizerClient) Organize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodOrganize, in, opts...)
}

// ListRules calls Organizer/ListRules.
func (c *OrganizerClient) ListRules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListRules, in, opts...)
}
