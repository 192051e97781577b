package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"orbit-account/backend/internal/account/domain"
	"orbit-account/backend/internal/account/service"
	"orbit-account/backend/internal/server/interceptors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// AccountService is the account use-case surface served over HTTP and gRPC.
type AccountService interface {
	Register(ctx context.Context, identity, password, displayName string) (*service.RegisterResult, error)
	VerifyOTP(ctx context.Context, identity, code string) error
	Login(ctx context.Context, identity, password string) (*service.LoginResult, error)
	RequestOTP(ctx context.Context, identity string) error
	Authenticate(ctx context.Context, token string) (*service.Principal, error)
	Profile(ctx context.Context, identity string) (*domain.Profile, error)
	DevOTP(ctx context.Context, identity string) (string, bool)
}

// HTTPHandler serves the JSON account API.
type HTTPHandler struct {
	svc    AccountService
	devOTP bool
}

// NewHTTPHandler returns an HTTPHandler. devOTP enables GET /dev/otp; set it only outside production.
func NewHTTPHandler(svc AccountService, devOTP bool) *HTTPHandler {
	return &HTTPHandler{svc: svc, devOTP: devOTP}
}

// Routes registers the account routes on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/verify-otp", h.verifyOTP)
	r.Post("/login", h.login)
	r.Post("/resend-otp", h.resendOTP)
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Get("/me", h.me)
	})
	if h.devOTP {
		r.Get("/dev/otp", h.devOTPCode)
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resendOTPRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msg := msgRegistered
	if !res.CodeDispatched {
		msg = msgRegisteredNoCode
	}
	writeMessage(w, http.StatusCreated, msg)
}

func (h *HTTPHandler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		writeServiceError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msgVerified)
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message:   msgLoggedIn,
		Token:     res.Token,
		Name:      res.Profile.DisplayName,
		Email:     res.Profile.Identity,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *HTTPHandler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.RequestOTP(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msgResent)
}

func (h *HTTPHandler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := interceptors.GetIdentity(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
		return
	}
	p, err := h.svc.Profile(r.Context(), identity)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			// The token outlived its account.
			writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		ID:        p.ID,
		Email:     p.Identity,
		Name:      p.DisplayName,
		Verified:  p.Verified,
		CreatedAt: p.CreatedAt,
	})
}

func (h *HTTPHandler) devOTPCode(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeMessage(w, http.StatusBadRequest, "email is required")
		return
	}
	code, ok := h.svc.DevOTP(r.Context(), email)
	if !ok {
		writeMessage(w, http.StatusNotFound, "no pending OTP")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "otp": code})
}

func (h *HTTPHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := interceptors.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		p, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		ctx := interceptors.WithIdentity(r.Context(), p.AccountID, p.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// decodeBody decodes a single JSON object into dst, writing a 400 and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body must be a JSON object")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "request body must contain a single JSON value")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, _, msg := mapError(err)
	writeMessage(w, status, msg)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
