package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/HienH/sale-smell/internal/observability/logging"
	"github.com/HienH/sale-smell/internal/observability/metrics"
)

// requestIDKey is the metadata key shared with the HTTP request id header.
const requestIDKey = "x-request-id"

// UnaryServerInterceptor records gRPC metrics and logs each health or
// reflection call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(ctx, m, logger, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor does the same for streams such as Health/Watch.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observeCall(ss.Context(), m, logger, info.FullMethod, "stream", start, err)
		return err
	}
}

func observeCall(ctx context.Context, m *metrics.Metrics, logger zerolog.Logger, rpc, kind string, start time.Time, err error) {
	code := status.Code(err)
	m.RecordGRPCRequest(rpc, code.String())

	event := logger.Debug()
	if serverFault(code) {
		event = logger.Error().Err(err)
	}
	event.
		Str("requestId", requestID(ctx)).
		Str("rpc", rpc).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC call")
}

// serverFault reports codes that point at this service rather than the
// caller.
func serverFault(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return true
	}
	return false
}

func requestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(requestIDKey); len(v) > 0 {
		return v[0]
	}
	return ""
}
