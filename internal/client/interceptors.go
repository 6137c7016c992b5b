package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// forwardMetadata is a gRPC unary client interceptor that propagates incoming
// request metadata, including the bearer token, to outgoing calls. Metadata
// already set on the outgoing context wins.
func forwardMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if in, ok := metadata.FromIncomingContext(ctx); ok {
		out, _ := metadata.FromOutgoingContext(ctx)
		ctx = metadata.NewOutgoingContext(ctx, metadata.Join(out, in))
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
