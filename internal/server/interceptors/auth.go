package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"orbit-account/backend/internal/security"
)

const bearerPrefix = "bearer "

// TokenVerifier verifies session tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*security.SessionClaims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer token from gRPC
// metadata and sets the account id and identity in context. publicMethods is the set of full
// method names that do not require a token (Register, VerifyOTP, ResendOTP, Login, health).
func AuthUnary(tokens TokenVerifier, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, err := tokens.VerifyToken(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		ctx = WithIdentity(ctx, claims.AccountID, claims.Identity())
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return BearerToken(vals[0])
}

// BearerToken returns the token of an "Authorization: Bearer <token>" value, or "" if malformed.
// The scheme is matched case-insensitively.
func BearerToken(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
