package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check that the registration policy compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker reports readiness of the account store and the registration policy.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. pinger and policy may be nil; nil dependencies are skipped.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns the first dependency failure, or nil when ready.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return err
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Status maps Check to a grpc health serving status.
func (c *Checker) Status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if err := c.Check(ctx); err != nil {
		log.Printf("health: not serving: %v", err)
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// ServeHTTP answers readiness probes: 200 {"status":"SERVING"} or 503 {"status":"NOT_SERVING"}.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := c.Status(r.Context())
	code := http.StatusOK
	if st != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": st.String()})
}

// Watch sets the status of each service on hs from Check every interval until ctx is done.
// The empty service name reports overall server health.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration, services ...string) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if len(services) == 0 {
		services = []string{""}
	}
	update := func() {
		st := c.Status(ctx)
		for _, svc := range services {
			hs.SetServingStatus(svc, st)
		}
	}
	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
