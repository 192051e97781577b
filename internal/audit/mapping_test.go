package audit

import (
	"testing"
)

func TestParseFullMethod(t *testing.T) {
	testCases := []struct {
		fullMethod string
		action     string
		resource   string
	}{
		{"/orbit.account.v1.AccountService/Register", "register", "account"},
		{"/orbit.account.v1.AccountService/VerifyOTP", "verify_otp", "account"},
		{"/orbit.account.v1.AccountService/ResendOTP", "resend_otp", "account"},
		{"/orbit.account.v1.AccountService/Login", "login", "account"},
		{"/orbit.account.v1.AccountService/Me", "me", "account"},
		{"/grpc.health.v1.Health/Check", "check", "health"},
		{"/NoPackage/Method", "method", "unknown"},
		{"invalid", "unknown", "unknown"},
		{"/orbit.account.v1.AccountService/", "unknown", "account"},
	}
	for _, tc := range testCases {
		ar := ParseFullMethod(tc.fullMethod)
		if ar.Action != tc.action {
			t.Errorf("ParseFullMethod(%q) action = %q, want %q", tc.fullMethod, ar.Action, tc.action)
		}
		if ar.Resource != tc.resource {
			t.Errorf("ParseFullMethod(%q) resource = %q, want %q", tc.fullMethod, ar.Resource, tc.resource)
		}
	}
}

func TestToSnake(t *testing.T) {
	testCases := map[string]string{
		"Login":        "login",
		"VerifyOTP":    "verify_otp",
		"OTPRequest":   "otp_request",
		"GetHTTPValue": "get_http_value",
		"already":      "already",
	}
	for in, want := range testCases {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}
