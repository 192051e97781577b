package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"orbit-account/backend/internal/account/service"
	"orbit-account/backend/internal/security"
)

// Outward messages. Unknown identity and wrong password share one message, as do wrong,
// absent and expired codes.
const (
	msgRegistered        = "OTP sent to email. Please verify."
	msgRegisteredNoCode  = "Account created, but the OTP could not be sent. Please request a new code."
	msgVerified          = "Account verified successfully!"
	msgLoggedIn          = "Login successful"
	msgResent            = "If the account is awaiting verification, a new OTP has been sent."
	msgDuplicate         = "Email already exists"
	msgNotVerified       = "Account not verified"
	msgInvalidCredential = "Invalid email or password"
	msgInvalidOTP        = "Invalid OTP"
	msgDenied            = "Registration is not allowed for this email"
	msgUnauthenticated   = "Invalid or expired token"
	msgNotFound          = "Account not found"
	msgUnavailable       = "Service temporarily unavailable. Please try again."
	msgInternal          = "Internal server error"
)

// mapError returns the HTTP status, gRPC code and outward message for a service error.
func mapError(err error) (int, codes.Code, string) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, codes.InvalidArgument, err.Error()
	case errors.Is(err, service.ErrDuplicateIdentity):
		return http.StatusConflict, codes.AlreadyExists, msgDuplicate
	case errors.Is(err, service.ErrNotVerified):
		return http.StatusForbidden, codes.FailedPrecondition, msgNotVerified
	case errors.Is(err, service.ErrCredentialMismatch):
		return http.StatusUnauthorized, codes.Unauthenticated, msgInvalidCredential
	case errors.Is(err, service.ErrChallengeRejected):
		return http.StatusBadRequest, codes.InvalidArgument, msgInvalidOTP
	case errors.Is(err, service.ErrRegistrationDenied):
		return http.StatusForbidden, codes.PermissionDenied, msgDenied
	case errors.Is(err, security.ErrTokenExpired), errors.Is(err, security.ErrTokenInvalid):
		return http.StatusUnauthorized, codes.Unauthenticated, msgUnauthenticated
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, codes.NotFound, msgNotFound
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, codes.Unavailable, msgUnavailable
	default:
		return http.StatusInternalServerError, codes.Internal, msgInternal
	}
}
