package engine

import (
	"context"
)

// Decision is the outcome of a registration admission check.
type Decision struct {
	Allowed bool
	Reason  string // set when Allowed is false
}

// Evaluator decides whether an identity may register, using OPA or other engines.
type Evaluator interface {
	// AllowRegistration evaluates the registration policy for identity.
	// An error means the policy could not be evaluated, not that registration is denied.
	AllowRegistration(ctx context.Context, identity string) (Decision, error)
	// HealthCheck verifies the policy compiles and evaluates.
	HealthCheck(ctx context.Context) error
}
