// Package approvalsv1 defines the erp.approvals.v1.ApprovalService gRPC
// contract. Messages are google.protobuf.Struct values whose fields mirror
// the JSON bodies of the HTTP API.
package approvalsv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "erp.approvals.v1.ApprovalService"

const (
	ApprovalService_SubmitApproval_FullMethodName       = "/" + ServiceName + "/SubmitApproval"
	ApprovalService_Approve_FullMethodName              = "/" + ServiceName + "/Approve"
	ApprovalService_Reject_FullMethodName               = "/" + ServiceName + "/Reject"
	ApprovalService_GetApproval_FullMethodName          = "/" + ServiceName + "/GetApproval"
	ApprovalService_GetApprovalHistory_FullMethodName   = "/" + ServiceName + "/GetApprovalHistory"
	ApprovalService_ListPendingApprovals_FullMethodName = "/" + ServiceName + "/ListPendingApprovals"
)

// ApprovalServiceServer is the server API for ApprovalService.
type ApprovalServiceServer interface {
	// SubmitApproval starts a chain for {entityType, entityId, entityDescription}.
	SubmitApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Approve decides the current level of {id} with an optional {comment}.
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Reject stops {id} with a mandatory {reason} and optional {comment}.
	Reject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApprovalHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListPendingApprovals pages through {page, pageSize} of the caller's queue.
	ListPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterApprovalServiceServer registers srv with s.
func RegisterApprovalServiceServer(s grpc.ServiceRegistrar, srv ApprovalServiceServer) {
	s.RegisterService(&ApprovalService_ServiceDesc, srv)
}

type serverMethod func(ApprovalServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, m serverMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(ApprovalServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(ApprovalServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ApprovalService_ServiceDesc is the grpc.ServiceDesc for ApprovalService.
var ApprovalService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApprovalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitApproval",
			Handler:    unaryHandler(ApprovalService_SubmitApproval_FullMethodName, ApprovalServiceServer.SubmitApproval),
		},
		{
			MethodName: "Approve",
			Handler:    unaryHandler(ApprovalService_Approve_FullMethodName, ApprovalServiceServer.Approve),
		},
		{
			MethodName: "Reject",
			Handler:    unaryHandler(ApprovalService_Reject_FullMethodName, ApprovalServiceServer.Reject),
		},
		{
			MethodName: "GetApproval",
			Handler:    unaryHandler(ApprovalService_GetApproval_FullMethodName, ApprovalServiceServer.GetApproval),
		},
		{
			MethodName: "GetApprovalHistory",
			Handler:    unaryHandler(ApprovalService_GetApprovalHistory_FullMethodName, ApprovalServiceServer.GetApprovalHistory),
		},
		{
			MethodName: "ListPendingApprovals",
			Handler:    unaryHandler(ApprovalService_ListPendingApprovals_FullMethodName, ApprovalServiceServer.ListPendingApprovals),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "erp/approvals/v1/approvals.proto",
}

// ApprovalServiceClient is the client API for ApprovalService.
type ApprovalServiceClient interface {
	SubmitApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Approve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Reject(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetApprovalHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListPendingApprovals(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type approvalServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewApprovalServiceClient creates a client over cc.
func NewApprovalServiceClient(cc grpc.ClientConnInterface) ApprovalServiceClient {
	return &approvalServiceClient{cc: cc}
}

func (c *approvalServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *approvalServiceClient) SubmitApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ApprovalService_SubmitApproval_FullMethodName, in, opts)
}

func (c *approvalServiceClient) Approve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ApprovalService_Approve_FullMethodName, in, opts)
}

func (c *approvalServiceClient) Reject(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ApprovalService_Reject_FullMethodName, in, opts)
}

func (c *approvalServiceClient) GetApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ApprovalService_GetApproval_FullMethodName, in, opts)
}

func (c *approvalServiceClient) GetApprovalHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ApprovalService_GetApprovalHistory_FullMethodName, in, opts)
}

func (c *approvalServiceClient) ListPendingApprovals(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ApprovalService_ListPendingApprovals_FullMethodName, in, opts)
}
