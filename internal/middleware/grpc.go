package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/metrics"
)

// correlationKey is the gRPC metadata key for correlation IDs.
const correlationKey = "x-correlation-id"

// UnaryLogger logs every unary call and records its latency. The correlation
// ID is taken from incoming metadata or generated, and echoed in the header.
func UnaryLogger(logger zerolog.Logger, collector *metrics.Collector) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		correlationID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(correlationKey); len(values) > 0 {
				correlationID = values[0]
			}
		}
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(correlationKey, correlationID))

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err)
		if collector != nil {
			collector.RPCRequest(info.FullMethod, code.String(), duration)
		}

		var event *zerolog.Event
		switch code {
		case codes.OK:
			event = logger.Debug()
		case codes.Internal, codes.Unknown, codes.DataLoss:
			event = logger.Error().Err(err)
		default:
			event = logger.Warn().Err(err)
		}
		event.
			Str("correlation_id", correlationID).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", duration).
			Msg("RPC completed")

		return resp, err
	}
}
