package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	accounthandler "orbit-account/backend/internal/account/handler"
	"orbit-account/backend/internal/server/interceptors"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// NewHTTPRouter returns the JSON API: liveness at /healthz, readiness at /readyz (when ready is
// non-nil) and the account routes at the root, matching the paths existing clients call.
func NewHTTPRouter(account *accounthandler.HTTPHandler, ready http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(clientIPMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if ready != nil {
		r.Method(http.MethodGet, "/readyz", ready)
	}

	account.Routes(r)
	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("http: panic recovered: %s %s request_id=%s: %v",
					r.Method, r.URL.Path, requestIDFromContext(r.Context()), rec)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientIPMiddleware stores the caller address in the context for audit records.
func clientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := interceptors.WithClientIP(r.Context(), interceptors.RequestClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			return
		}
		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		log.Printf("http: %s %s status=%d bytes=%d duration=%s ip=%s request_id=%s",
			r.Method, r.URL.Path, statusCode, recorder.bytes,
			time.Since(start).Round(time.Microsecond), interceptors.ClientIP(r.Context()),
			requestIDFromContext(r.Context()))
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ServeHTTP listens on srv.Addr and serves until ctx is done. See Serve.
func ServeHTTP(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, srv, lis, timeout)
}

// Serve runs srv on lis until ctx is done, then shuts it down within timeout. It returns
// only after Shutdown has finished, so in-flight requests have completed or been cut off.
func Serve(ctx context.Context, srv *http.Server, lis net.Listener, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("http: listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Println("http: shutting down...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("http: server stopped")
	return nil
}
