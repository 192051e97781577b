package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"

	"orbit-account/backend/internal/account/domain"
)

const (
	allowQuery  = "data.orbit.registration.allow"
	reasonQuery = "data.orbit.registration.reason"
)

// Default Rego policy: any domain when data.allowed_domains is empty, otherwise only the listed ones.
const defaultRegoPolicy = `package orbit.registration

default allow := false

allow if {
	count(data.allowed_domains) == 0
}

allow if {
	some d in data.allowed_domains
	lower(input.domain) == d
}

reason := "email domain is not allowed to register" if {
	not allow
}
`

// OPAEvaluator evaluates the registration policy using OPA Rego. The policy is compiled
// once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	allow  rego.PreparedEvalQuery
	reason rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (the default policy when empty) with allowedDomains as
// data.allowed_domains. Domains are compared lowercased.
func NewOPAEvaluator(ctx context.Context, allowedDomains []string, policy string) (*OPAEvaluator, error) {
	if strings.TrimSpace(policy) == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"registration.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile registration policy: %w", err)
	}
	domains := make([]interface{}, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		domains = append(domains, strings.ToLower(d))
	}
	store := inmem.NewFromObject(map[string]interface{}{"allowed_domains": domains})

	allow, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare registration policy: %w", err)
	}
	reason, err := rego.New(
		rego.Query(reasonQuery),
		rego.Compiler(compiler),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare registration policy: %w", err)
	}
	return &OPAEvaluator{allow: allow, reason: reason}, nil
}

// AllowRegistration evaluates the policy with input {identity, domain}.
func (e *OPAEvaluator) AllowRegistration(ctx context.Context, identity string) (Decision, error) {
	input := map[string]interface{}{
		"identity": identity,
		"domain":   domain.Domain(identity),
	}
	rs, err := e.allow.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("eval registration policy: %w", err)
	}
	allowed := false
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		allowed, _ = rs[0].Expressions[0].Value.(bool)
	}
	if allowed {
		return Decision{Allowed: true}, nil
	}

	d := Decision{Reason: "registration not allowed"}
	rs, err = e.reason.Eval(ctx, rego.EvalInput(input))
	if err == nil && len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if s, ok := rs[0].Expressions[0].Value.(string); ok && s != "" {
			d.Reason = s
		}
	}
	return d, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can evaluate the prepared policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.allow.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"identity": "health@example.com",
		"domain":   "example.com",
	}))
	if err != nil {
		return fmt.Errorf("eval registration policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}
