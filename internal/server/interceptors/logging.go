package interceptors

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"orbit-account/backend/internal/audit"
)

// LoggingUnary returns a unary server interceptor that logs one line per RPC with its action,
// status code, duration and client IP. skipMethods is the set of full method names not logged
// (health checks).
func LoggingUnary(skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		log.Printf("grpc: %s %s code=%s duration=%s ip=%s",
			ar.Resource, ar.Action, status.Code(err), time.Since(start).Round(time.Microsecond), ClientIP(ctx))
		return resp, err
	}
}
