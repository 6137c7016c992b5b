package handler

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-erp-approvals/internal/approvalsv1"
	"github.com/pesio-ai/be-erp-approvals/internal/auth"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
	"github.com/pesio-ai/be-erp-approvals/internal/service"
)

// GRPCHandler implements the ApprovalService gRPC interface
type GRPCHandler struct {
	approvals *service.ApprovalService
	logger    zerolog.Logger
}

var _ approvalsv1.ApprovalServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(approvals *service.ApprovalService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		approvals: approvals,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// userID extracts the authenticated user ID from context, or returns empty string.
func userID(ctx context.Context) string {
	if uc, err := auth.GetUserContext(ctx); err == nil {
		return uc.UserID
	}
	return ""
}

// SubmitApproval creates an approval request for an entity
func (h *GRPCHandler) SubmitApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	h.logger.Info().
		Str("entity_type", stringField(in, "entityType")).
		Str("entity_id", stringField(in, "entityId")).
		Msg("gRPC SubmitApproval called")

	req, err := h.approvals.CreateApprovalRequest(ctx, service.CreateApprovalInput{
		EntityType:        repository.EntityType(strings.ToUpper(stringField(in, "entityType"))),
		EntityID:          stringField(in, "entityId"),
		EntityDescription: stringField(in, "entityDescription"),
		SubmittedByID:     userID(ctx),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to submit approval")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(req)
}

// Approve approves the current level of a request
func (h *GRPCHandler) Approve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(in, "id")
	h.logger.Info().Str("id", id).Msg("gRPC Approve called")

	req, err := h.approvals.Approve(ctx, id, userID(ctx), stringField(in, "comment"))
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to approve")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(req)
}

// Reject rejects a request at its current level
func (h *GRPCHandler) Reject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(in, "id")
	h.logger.Info().Str("id", id).Msg("gRPC Reject called")

	req, err := h.approvals.Reject(ctx, id, userID(ctx), stringField(in, "reason"), stringField(in, "comment"))
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to reject")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(req)
}

// GetApproval returns a request with its levels and comments
func (h *GRPCHandler) GetApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	details, err := h.approvals.GetApprovalDetails(ctx, stringField(in, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(details)
}

// GetApprovalHistory returns the audit trail of a request
func (h *GRPCHandler) GetApprovalHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	entries, err := h.approvals.GetApprovalHistory(ctx, stringField(in, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{"entries": entries})
}

// ListPendingApprovals returns the caller's approval queue
func (h *GRPCHandler) ListPendingApprovals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	page, err := h.approvals.ListPendingApprovals(ctx, userID(ctx), repository.Page{
		Number: intField(in, "page"),
		Size:   intField(in, "pageSize"),
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(page)
}

// AuthInterceptor verifies the bearer token in the "authorization" metadata
// of every call except health checks and reflection.
func AuthInterceptor(v *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.") || strings.HasPrefix(info.FullMethod, "/grpc.reflection.") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		uc, err := v.VerifyHeader(header)
		if err != nil {
			return nil, mapErrorToGRPC(err)
		}
		return handler(auth.WithUser(ctx, uc), req)
	}
}

// RecoveryInterceptor turns a panic in a handler into codes.Internal.
func RecoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error().
					Interface("panic", p).
					Str("method", info.FullMethod).
					Bytes("stack", debug.Stack()).
					Msg("Recovered from panic in gRPC handler")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	switch errors.Code(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.ErrCodeBusiness:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.ErrCodeAccessDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func stringField(s *structpb.Struct, name string) string {
	return strings.TrimSpace(s.GetFields()[name].GetStringValue())
}

func intField(s *structpb.Struct, name string) int {
	return int(s.GetFields()[name].GetNumberValue())
}

// toStruct converts a JSON-tagged value to a Struct using its JSON shape.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
