package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-erp-approvals/internal/approvalsv1"
)

func startGRPC(t *testing.T, f *fixture) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(AuthInterceptor(f.verifier)))
	approvalsv1.RegisterApprovalServiceServer(srv, NewGRPCHandler(f.approvals, zerolog.Nop()))
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *fixture) rpcContext(t *testing.T, userID string) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+f.token(t, userID))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPCApprovalFlow(t *testing.T) {
	f := newFixture(t)
	client := approvalsv1.NewApprovalServiceClient(startGRPC(t, f))

	created, err := client.SubmitApproval(f.rpcContext(t, "u-sales"), mustStruct(t, map[string]any{
		"entityType": "QUOTATION",
		"entityId":   "Q-200",
	}))
	require.NoError(t, err)
	id := created.GetFields()["id"].GetStringValue()
	require.NotEmpty(t, id)
	assert.Equal(t, "PENDING", created.GetFields()["status"].GetStringValue())

	pending, err := client.ListPendingApprovals(f.rpcContext(t, "u-manager"), mustStruct(t, map[string]any{}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.GetFields()["total"].GetNumberValue())

	_, err = client.Approve(f.rpcContext(t, "u-director"), mustStruct(t, map[string]any{"id": id}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = client.Approve(f.rpcContext(t, "u-manager"), mustStruct(t, map[string]any{"id": id}))
	require.NoError(t, err)

	approved, err := client.Approve(f.rpcContext(t, "u-director"), mustStruct(t, map[string]any{"id": id, "comment": "go"}))
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", approved.GetFields()["status"].GetStringValue())

	_, err = client.Reject(f.rpcContext(t, "u-director"), mustStruct(t, map[string]any{"id": id, "reason": "late"}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	history, err := client.GetApprovalHistory(f.rpcContext(t, "u-sales"), mustStruct(t, map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Len(t, history.GetFields()["entries"].GetListValue().GetValues(), 3)

	details, err := client.GetApproval(f.rpcContext(t, "u-sales"), mustStruct(t, map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Len(t, details.GetFields()["levels"].GetListValue().GetValues(), 2)

	_, err = client.GetApproval(f.rpcContext(t, "u-sales"), mustStruct(t, map[string]any{"id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCRequiresToken(t *testing.T) {
	f := newFixture(t)
	conn := startGRPC(t, f)

	_, err := approvalsv1.NewApprovalServiceClient(conn).GetApproval(context.Background(), mustStruct(t, map[string]any{"id": "x"}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRecoveryInterceptorConvertsPanic(t *testing.T) {
	intercept := RecoveryInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: approvalsv1.ApprovalService_ListPendingApprovals_FullMethodName}

	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("slice bounds out of range")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := intercept(context.Background(), "req", info, func(_ context.Context, req any) (any, error) {
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
}
