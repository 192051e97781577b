package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	accounthandler "orbit-account/backend/internal/account/handler"
	"orbit-account/backend/internal/server/interceptors"
)

// Health RPCs are public and not logged.
var healthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/List",
	"/grpc.health.v1.Health/Watch",
}

// GRPCDeps holds the dependencies of the gRPC server.
type GRPCDeps struct {
	// Account serves orbit.account.v1.AccountService.
	Account accounthandler.AccountServer
	// Tokens verifies bearer tokens for protected RPCs (Me).
	Tokens interceptors.TokenVerifier
	// Health is the grpc.health.v1 server. If nil, the health service is not registered.
	Health *health.Server
}

// NewGRPCServer builds a gRPC server with OTel stats, request logging and bearer auth, and
// registers the account and health services.
func NewGRPCServer(deps GRPCDeps, opts ...grpc.ServerOption) *grpc.Server {
	public := accounthandler.PublicMethods()
	skip := make(map[string]bool, len(healthMethods))
	for _, m := range healthMethods {
		public[m] = true
		skip[m] = true
	}

	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(skip),
			interceptors.AuthUnary(deps.Tokens, public),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)

	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the account service and, when set, the health service on s.
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	accounthandler.RegisterAccountServer(s, deps.Account)
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
