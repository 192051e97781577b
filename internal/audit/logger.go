package audit

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Account lifecycle actions.
const (
	ActionRegister       = "register"
	ActionOTPIssued      = "otp_issued"
	ActionOTPVerified    = "otp_verified"
	ActionOTPRejected    = "otp_rejected"
	ActionLoginSuccess   = "login_success"
	ActionLoginFailure   = "login_failure"
	ActionDeliveryFailed = "delivery_failed"
)

// scopeName is the instrumentation scope of emitted records.
const scopeName = "orbit-account/audit"

// Event is one account lifecycle event. Detail carries a short reason code, never a password
// or verification code.
type Event struct {
	Action    string
	Identity  string
	AccountID string
	Detail    string
}

// IPExtractor returns the client IP from the request context (gRPC metadata, peer or HTTP request).
type IPExtractor func(context.Context) string

// AuditLogger records account lifecycle events. LogEvent is best-effort: it never fails the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, event Event)
}

// RecordEmitter is the part of an OTel log.Logger used by Logger.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// Logger implements AuditLogger by emitting OTel log records.
type Logger struct {
	emitter     RecordEmitter
	ipExtractor IPExtractor
	nowF        func() time.Time
}

// NewLogger returns an AuditLogger that emits through provider. ipExtractor may be nil; then IP is
// recorded as "unknown". If provider is nil, events are discarded.
func NewLogger(provider *sdklog.LoggerProvider, ipExtractor IPExtractor) AuditLogger {
	if provider == nil {
		return Nop{}
	}
	return NewLoggerWithEmitter(provider.Logger(scopeName), ipExtractor)
}

// NewLoggerWithEmitter returns a Logger writing records to emitter.
func NewLoggerWithEmitter(emitter RecordEmitter, ipExtractor IPExtractor) *Logger {
	return &Logger{
		emitter:     emitter,
		ipExtractor: ipExtractor,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent emits one record for event.
func (l *Logger) LogEvent(ctx context.Context, event Event) {
	if l == nil || l.emitter == nil || event.Action == "" {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	rec := otellog.Record{}
	rec.SetTimestamp(l.nowF())
	rec.SetEventName("account." + event.Action)
	rec.SetSeverity(severityFor(event.Action))
	rec.SetSeverityText(severityFor(event.Action).String())
	rec.SetBody(otellog.StringValue(event.Action))
	rec.AddAttributes(
		otellog.String("action", event.Action),
		otellog.String("client_ip", ip),
	)
	if event.Identity != "" {
		rec.AddAttributes(otellog.String("identity", event.Identity))
	}
	if event.AccountID != "" {
		rec.AddAttributes(otellog.String("account_id", event.AccountID))
	}
	if event.Detail != "" {
		rec.AddAttributes(otellog.String("detail", event.Detail))
	}
	l.emitter.Emit(ctx, rec)
}

func severityFor(action string) otellog.Severity {
	switch action {
	case ActionLoginFailure, ActionOTPRejected:
		return otellog.SeverityWarn
	case ActionDeliveryFailed:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}

// Nop discards events.
type Nop struct{}

// LogEvent does nothing.
func (Nop) LogEvent(context.Context, Event) {}
