package server

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"orbit-account/backend/internal/account/domain"
	accounthandler "orbit-account/backend/internal/account/handler"
	"orbit-account/backend/internal/account/service"
	healthhandler "orbit-account/backend/internal/health/handler"
	"orbit-account/backend/internal/server/interceptors"
)

// stubAccounts satisfies accounthandler.AccountService; only Register is exercised.
type stubAccounts struct{}

func (stubAccounts) Register(_ context.Context, identity, _, _ string) (*service.RegisterResult, error) {
	return &service.RegisterResult{AccountID: "acc-1", Identity: identity, CodeDispatched: true}, nil
}
func (stubAccounts) VerifyOTP(context.Context, string, string) error { return nil }
func (stubAccounts) Login(context.Context, string, string) (*service.LoginResult, error) {
	return nil, service.ErrCredentialMismatch
}
func (stubAccounts) RequestOTP(context.Context, string) error { return nil }
func (stubAccounts) Authenticate(context.Context, string) (*service.Principal, error) {
	return nil, service.ErrNotFound
}
func (stubAccounts) Profile(context.Context, string) (*domain.Profile, error) {
	return nil, service.ErrNotFound
}
func (stubAccounts) DevOTP(context.Context, string) (string, bool) { return "", false }

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestHTTPRouter_Healthz(t *testing.T) {
	r := NewHTTPRouter(accounthandler.NewHTTPHandler(stubAccounts{}, false), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header not set")
	}
}

func TestHTTPRouter_Readyz(t *testing.T) {
	ready := healthhandler.NewChecker(failingPinger{err: errors.New("db down")}, nil)
	r := NewHTTPRouter(accounthandler.NewHTTPHandler(stubAccounts{}, false), ready)
	captureLog(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHTTPRouter_AccountRoutesMounted(t *testing.T) {
	r := NewHTTPRouter(accounthandler.NewHTTPHandler(stubAccounts{}, false), nil)
	buf := captureLog(t)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":"ada@example.com","password":"pw"}`))
	req.Header.Set("X-Request-Id", "req-42")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}
	line := buf.String()
	for _, want := range []string{"POST /register", "status=201", "ip=203.0.113.9", "request_id=req-42"} {
		if !strings.Contains(line, want) {
			t.Errorf("log %q missing %q", line, want)
		}
	}
}

func TestRecoverMiddleware(t *testing.T) {
	buf := captureLog(t)
	r := chi.NewRouter()
	r.Use(recoverMiddleware)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("log %q missing panic value", buf.String())
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var got string
	h := clientIPMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = interceptors.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "198.51.100.7" {
		t.Errorf("ClientIP = %q, want 198.51.100.7", got)
	}
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rec.Write([]byte("hi"))
	if rec.statusCode != http.StatusOK || rec.bytes != 2 {
		t.Errorf("statusRecorder = (%d, %d), want (200, 2)", rec.statusCode, rec.bytes)
	}
}

func TestServe_WaitsForInFlightRequests(t *testing.T) {
	captureLog(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	started := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, srv, lis, 5*time.Second) }()

	type result struct {
		status int
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + lis.Addr().String() + "/register")
		if err != nil {
			resCh <- result{err: err}
			return
		}
		_ = resp.Body.Close()
		resCh <- result{status: resp.StatusCode}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}
	cancel()

	select {
	case err := <-served:
		t.Fatalf("Serve returned %v while a request was in flight", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	res := <-resCh
	if res.err != nil {
		t.Fatalf("request: %v", res.err)
	}
	if res.status != http.StatusOK {
		t.Errorf("status = %d, want %d", res.status, http.StatusOK)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the request finished")
	}
}

func TestServe_ReturnsServeError(t *testing.T) {
	captureLog(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	_ = lis.Close()
	err = Serve(context.Background(), &http.Server{Handler: http.NotFoundHandler()}, lis, time.Second)
	if err == nil {
		t.Error("Serve on a closed listener should fail")
	}
}
