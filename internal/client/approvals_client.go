package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-erp-approvals/internal/approvalsv1"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// ApprovalsGRPCClient is the typed client other ERP services use to drive
// approvals. The caller's bearer token is taken from the incoming request
// metadata.
type ApprovalsGRPCClient struct {
	client approvalsv1.ApprovalServiceClient
	conn   *grpc.ClientConn
}

// NewApprovalsGRPCClient dials the approvals gRPC service and returns a client.
func NewApprovalsGRPCClient(addr string, opts ...grpc.DialOption) (*ApprovalsGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &ApprovalsGRPCClient{
		client: approvalsv1.NewApprovalServiceClient(conn),
		conn:   conn,
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *ApprovalsGRPCClient) Close() error {
	return c.conn.Close()
}

// ApprovalView is a request as returned over gRPC, with comments when the
// call includes them.
type ApprovalView struct {
	repository.ApprovalRequest
	Comments []*repository.ApprovalComment `json:"comments,omitempty"`
}

// SubmitApproval starts the approval chain for an entity.
func (c *ApprovalsGRPCClient) SubmitApproval(ctx context.Context, entityType repository.EntityType, entityID, description string) (*ApprovalView, error) {
	return c.call(ctx, c.client.SubmitApproval, map[string]any{
		"entityType":        string(entityType),
		"entityId":          entityID,
		"entityDescription": description,
	})
}

// Approve approves the current level of a request.
func (c *ApprovalsGRPCClient) Approve(ctx context.Context, id, comment string) (*ApprovalView, error) {
	return c.call(ctx, c.client.Approve, map[string]any{"id": id, "comment": comment})
}

// Reject rejects a request at its current level.
func (c *ApprovalsGRPCClient) Reject(ctx context.Context, id, reason, comment string) (*ApprovalView, error) {
	return c.call(ctx, c.client.Reject, map[string]any{"id": id, "reason": reason, "comment": comment})
}

// GetApproval returns a request with its levels and comments.
func (c *ApprovalsGRPCClient) GetApproval(ctx context.Context, id string) (*ApprovalView, error) {
	return c.call(ctx, c.client.GetApproval, map[string]any{"id": id})
}

type unaryCall func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (c *ApprovalsGRPCClient) call(ctx context.Context, fn unaryCall, fields map[string]any) (*ApprovalView, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	out, err := fn(ctx, in)
	if err != nil {
		return nil, err
	}

	data, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	view := &ApprovalView{}
	if err := json.Unmarshal(data, view); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return view, nil
}
