package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "memlab.v1.ReportService"

// ReportServiceServer is the server API. Every message is a
// google.protobuf.Struct, so the service needs no generated code.
type ReportServiceServer interface {
	// Run executes the suite and returns the report with its narration.
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Get returns the stored report {"id": n}.
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// List returns {"reports": [...]} newest first, honoring {"limit": n}.
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportService_ServiceDesc, srv)
}

type unaryCall func(ReportServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReportServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReportServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ReportService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unary("Run", ReportServiceServer.Run)},
		{MethodName: "Get", Handler: unary("Get", ReportServiceServer.Get)},
		{MethodName: "List", Handler: unary("List", ReportServiceServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "memlab/v1/report_service.proto",
}

// -------------------- Client --------------------

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Run", in, opts...)
}

func (c *Client) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Get", in, opts...)
}

func (c *Client) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "List", in, opts...)
}
