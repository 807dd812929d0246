package server

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RequestObserver records finished calls. Satisfied by *metrics.Collector.
type RequestObserver interface {
	ObserveRequest(method, code string)
}

// RecoveryInterceptor turns a handler panic into INTERNAL so one bad request
// cannot take the server down.
func RecoveryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("method", info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs each call with its status code and latency.
// Client errors log at warn, server errors at error. observer may be nil.
func LoggingInterceptor(logger zerolog.Logger, observer RequestObserver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		var event *zerolog.Event
		switch code {
		case codes.OK:
			event = logger.Debug()
		case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.Canceled:
			event = logger.Warn()
		default:
			event = logger.Error()
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("grpc call")

		if observer != nil {
			observer.ObserveRequest(info.FullMethod, code.String())
		}
		return resp, err
	}
}

// TimeoutInterceptor applies a per-request deadline unless the client set a shorter one.
func TimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if timeout <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}
