// Package telemetry holds the account service's OpenTelemetry instruments. Provider setup lives
// in the otel subpackage.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNilMeter is returned by NewMetrics when no meter is supplied.
var ErrNilMeter = errors.New("telemetry: nil meter")

// Outcome attribute values.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeNotVerified = "not_verified"
	OutcomeMismatch    = "mismatch"
	OutcomeError       = "error"
)

// DropCounter reports how many delivery requests were discarded before reaching a sender.
type DropCounter interface {
	Dropped() uint64
}

// Metrics records account lifecycle counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registrations    metric.Int64Counter
	otpIssued        metric.Int64Counter
	otpVerifications metric.Int64Counter
	logins           metric.Int64Counter
	deliveryFailures metric.Int64Counter
	registration     metric.Registration
}

// NewMetrics creates the account instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	m := &Metrics{}
	var err error
	if m.registrations, err = meter.Int64Counter("account.registrations",
		metric.WithDescription("Accounts created and awaiting verification.")); err != nil {
		return nil, fmt.Errorf("create counter account.registrations: %w", err)
	}
	if m.otpIssued, err = meter.Int64Counter("account.otp.issued",
		metric.WithDescription("Verification codes issued.")); err != nil {
		return nil, fmt.Errorf("create counter account.otp.issued: %w", err)
	}
	if m.otpVerifications, err = meter.Int64Counter("account.otp.verifications",
		metric.WithDescription("Verification attempts by outcome.")); err != nil {
		return nil, fmt.Errorf("create counter account.otp.verifications: %w", err)
	}
	if m.logins, err = meter.Int64Counter("account.logins",
		metric.WithDescription("Login attempts by outcome.")); err != nil {
		return nil, fmt.Errorf("create counter account.logins: %w", err)
	}
	if m.deliveryFailures, err = meter.Int64Counter("account.delivery.failures",
		metric.WithDescription("Verification messages that could not be handed off or sent.")); err != nil {
		return nil, fmt.Errorf("create counter account.delivery.failures: %w", err)
	}
	return m, nil
}

// ObserveDropped registers an observable counter reporting src.Dropped(). Call Close to unregister.
func (m *Metrics) ObserveDropped(meter metric.Meter, src DropCounter) error {
	if m == nil || src == nil {
		return nil
	}
	if meter == nil {
		return ErrNilMeter
	}
	dropped, err := meter.Int64ObservableCounter("account.delivery.dropped",
		metric.WithDescription("Delivery requests dropped because the queue was full or closed."))
	if err != nil {
		return fmt.Errorf("create observable counter account.delivery.dropped: %w", err)
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(dropped, int64(src.Dropped()))
		return nil
	}, dropped)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}
	m.registration = reg
	return nil
}

// Close unregisters observable callbacks.
func (m *Metrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// Registered counts one created account.
func (m *Metrics) Registered(ctx context.Context) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1)
}

// OTPIssued counts one issued code.
func (m *Metrics) OTPIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.otpIssued.Add(ctx, 1)
}

// OTPVerification counts one verification attempt with the given outcome.
func (m *Metrics) OTPVerification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.otpVerifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Login counts one login attempt with the given outcome.
func (m *Metrics) Login(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// DeliveryFailure counts one failed hand-off or send.
func (m *Metrics) DeliveryFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.deliveryFailures.Add(ctx, 1)
}
