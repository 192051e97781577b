package handler

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"orbit-account/backend/internal/account/service"
	"orbit-account/backend/internal/server/interceptors"
)

// ServiceName is the fully qualified gRPC service name of the account API.
const ServiceName = "orbit.account.v1.AccountService"

// AccountServer is the server API for the account service. Requests and responses are
// JSON-shaped structs carrying the same fields as the HTTP API.
type AccountServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyOTP(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResendOTP(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Me(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AccountServiceDesc describes the account service for grpc.ServiceRegistrar.
var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler("Register", AccountServer.Register)},
		{MethodName: "VerifyOTP", Handler: unaryHandler("VerifyOTP", AccountServer.VerifyOTP)},
		{MethodName: "ResendOTP", Handler: unaryHandler("ResendOTP", AccountServer.ResendOTP)},
		{MethodName: "Login", Handler: unaryHandler("Login", AccountServer.Login)},
		{MethodName: "Me", Handler: unaryHandler("Me", AccountServer.Me)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orbit/account/v1/account.proto",
}

// FullMethod returns the full gRPC method name for an account RPC.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PublicMethods returns the account RPCs that do not require a bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		FullMethod("Register"):  true,
		FullMethod("VerifyOTP"): true,
		FullMethod("ResendOTP"): true,
		FullMethod("Login"):     true,
	}
}

// RegisterAccountServer registers srv on s.
func RegisterAccountServer(s grpc.ServiceRegistrar, srv AccountServer) {
	s.RegisterService(&AccountServiceDesc, srv)
}

type unaryCall func(AccountServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AccountServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AccountServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCServer implements AccountServer on top of the account service.
type GRPCServer struct {
	svc AccountService
}

// NewGRPCServer returns a new account gRPC server.
func NewGRPCServer(svc AccountService) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// Register creates an unverified account and sends its OTP.
func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.svc.Register(ctx, stringField(req, "email"), stringField(req, "password"), stringField(req, "name"))
	if err != nil {
		return nil, grpcError(err)
	}
	msg := msgRegistered
	if !res.CodeDispatched {
		msg = msgRegisteredNoCode
	}
	return newStruct(map[string]any{
		"message":         msg,
		"id":              res.AccountID,
		"email":           res.Identity,
		"code_dispatched": res.CodeDispatched,
	})
}

// VerifyOTP marks the account verified when the code is accepted.
func (s *GRPCServer) VerifyOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.svc.VerifyOTP(ctx, stringField(req, "email"), stringField(req, "otp")); err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{"message": msgVerified})
}

// ResendOTP issues a fresh code for an unverified account.
func (s *GRPCServer) ResendOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.svc.RequestOTP(ctx, stringField(req, "email")); err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{"message": msgResent})
}

// Login returns a session token for a verified account.
func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.svc.Login(ctx, stringField(req, "email"), stringField(req, "password"))
	if err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{
		"message":    msgLoggedIn,
		"token":      res.Token,
		"name":       res.Profile.DisplayName,
		"email":      res.Profile.Identity,
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Me returns the profile of the caller. The identity is set by the auth interceptor.
func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	identity, ok := interceptors.GetIdentity(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, msgUnauthenticated)
	}
	p, err := s.svc.Profile(ctx, identity)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, msgUnauthenticated)
		}
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{
		"id":         p.ID,
		"email":      p.Identity,
		"name":       p.DisplayName,
		"verified":   p.Verified,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func grpcError(err error) error {
	_, code, msg := mapError(err)
	return status.Error(code, msg)
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, msgInternal)
	}
	return out, nil
}
