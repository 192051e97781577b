package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orbit-account/backend/internal/account/domain"
	"orbit-account/backend/internal/account/repository"
	"orbit-account/backend/internal/audit"
	"orbit-account/backend/internal/delivery"
	"orbit-account/backend/internal/otp"
	policyengine "orbit-account/backend/internal/policy/engine"
	"orbit-account/backend/internal/security"
	"orbit-account/backend/internal/telemetry"
)

// Sentinel errors for the account service; handlers map them to transport codes.
var (
	ErrDuplicateIdentity  = errors.New("email already exists")
	ErrNotVerified        = errors.New("account not verified")
	ErrCredentialMismatch = errors.New("invalid email or password")
	ErrChallengeRejected  = errors.New("invalid OTP")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrRegistrationDenied = errors.New("registration not allowed")
	ErrNotFound           = errors.New("account not found")
	ErrUnavailable        = errors.New("service temporarily unavailable")
)

// maxDisplayNameLen bounds the stored display name in runes.
const maxDisplayNameLen = 200

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// ChallengeManager issues and consumes verification codes.
type ChallengeManager interface {
	Issue(ctx context.Context, identity string) (string, error)
	Check(ctx context.Context, identity, code string) (otp.Outcome, error)
	TTL() time.Duration
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	IssueToken(identity string, claims security.TokenClaims) (string, time.Time, error)
	VerifyToken(token string) (*security.SessionClaims, error)
}

// Deps holds the collaborators of AccountService. Repo, Hasher, Challenges and Tokens are required.
type Deps struct {
	Repo       repository.Repository
	Hasher     PasswordHasher
	Challenges ChallengeManager
	Tokens     TokenIssuer
	// Delivery receives verification mails. Ignored when DevOutbox is set.
	Delivery delivery.Enqueuer
	// DevOutbox, when set, keeps codes for GET /dev/otp instead of mailing them.
	DevOutbox *delivery.DevOutbox
	// Policy admits registrations. If nil, every well-formed identity may register.
	Policy policyengine.Evaluator
	// Audit records lifecycle events. If nil, events are discarded.
	Audit audit.AuditLogger
	// Metrics counts lifecycle events. May be nil.
	Metrics *telemetry.Metrics
	// PasswordMinLength is the shortest accepted password in characters.
	PasswordMinLength int
}

// RegisterResult is the outcome of Register and RequestOTP.
type RegisterResult struct {
	AccountID string
	Identity  string
	// CodeDispatched is false when the account was committed but the code could not be issued
	// or handed to delivery; the caller can request a new code.
	CodeDispatched bool
	// CodeExpiresAt is zero when codes do not expire.
	CodeExpiresAt time.Time
}

// LoginResult is the outcome of a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Profile   domain.Profile
}

// Principal is the identity asserted by a verified session token.
type Principal struct {
	AccountID   string
	Identity    string
	DisplayName string
	ExpiresAt   time.Time
}

// AccountService implements registration, OTP verification and password login.
type AccountService struct {
	repo       repository.Repository
	hasher     PasswordHasher
	challenges ChallengeManager
	tokens     TokenIssuer
	delivery   delivery.Enqueuer
	outbox     *delivery.DevOutbox
	policy     policyengine.Evaluator
	audit      audit.AuditLogger
	metrics    *telemetry.Metrics
	minPwLen   int
	nowF       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService returns an AccountService wired to deps.
func NewAccountService(deps Deps) *AccountService {
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AccountService{
		repo:       deps.Repo,
		hasher:     deps.Hasher,
		challenges: deps.Challenges,
		tokens:     deps.Tokens,
		delivery:   deps.Delivery,
		outbox:     deps.DevOutbox,
		policy:     deps.Policy,
		audit:      auditLogger,
		metrics:    deps.Metrics,
		minPwLen:   deps.PasswordMinLength,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified account and sends it a verification code. The identity is
// stored exactly as given. A second registration of the same identity fails with
// ErrDuplicateIdentity whatever the state of the first account.
func (s *AccountService) Register(ctx context.Context, identity, password, displayName string) (*RegisterResult, error) {
	if err := domain.ValidateIdentity(identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := domain.ValidatePassword(password, s.minPwLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	displayName = strings.TrimSpace(displayName)
	if len([]rune(displayName)) > maxDisplayNameLen {
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrInvalidArgument, maxDisplayNameLen)
	}

	if s.policy != nil {
		dec, err := s.policy.AllowRegistration(ctx, identity)
		if err != nil {
			log.Printf("account: registration policy: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if !dec.Allowed {
			s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRegister, Identity: identity, Detail: "denied: " + dec.Reason})
			return nil, ErrRegistrationDenied
		}
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		log.Printf("account: hash password: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := s.nowF()
	acct := &domain.Account{
		ID:           uuid.New().String(),
		Identity:     identity,
		PasswordHash: digest,
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			return nil, ErrDuplicateIdentity
		}
		log.Printf("account: create account: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.metrics.Registered(ctx)
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRegister, Identity: identity, AccountID: acct.ID})

	res := &RegisterResult{AccountID: acct.ID, Identity: identity}
	// The account is committed; a failed issue or hand-off is recoverable through RequestOTP.
	expiresAt, err := s.issueAndDispatch(ctx, acct)
	if err != nil {
		log.Printf("account: issue verification code: %v", err)
		return res, nil
	}
	res.CodeDispatched = true
	res.CodeExpiresAt = expiresAt
	return res, nil
}

// VerifyOTP consumes the pending code for identity and activates the account. Wrong, absent,
// expired and exhausted codes are all ErrChallengeRejected.
func (s *AccountService) VerifyOTP(ctx context.Context, identity, code string) error {
	if identity == "" || code == "" {
		s.metrics.OTPVerification(ctx, telemetry.OutcomeRejected)
		return ErrChallengeRejected
	}
	outcome, err := s.challenges.Check(ctx, identity, code)
	if err != nil {
		log.Printf("account: consume challenge: %v", err)
		s.metrics.OTPVerification(ctx, telemetry.OutcomeError)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if outcome != otp.OutcomeAccepted {
		s.metrics.OTPVerification(ctx, telemetry.OutcomeRejected)
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionOTPRejected, Identity: identity, Detail: outcome.String()})
		return ErrChallengeRejected
	}
	if err := s.repo.MarkVerified(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.OTPVerification(ctx, telemetry.OutcomeRejected)
			return ErrChallengeRejected
		}
		log.Printf("account: mark verified: %v", err)
		s.metrics.OTPVerification(ctx, telemetry.OutcomeError)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if s.outbox != nil {
		s.outbox.Forget(ctx, identity)
	}
	s.metrics.OTPVerification(ctx, telemetry.OutcomeSuccess)
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionOTPVerified, Identity: identity})
	return nil
}

// Login checks identity and password and returns a session token with the public profile.
// An unknown identity and a wrong password both yield ErrCredentialMismatch; an unverified
// account yields ErrNotVerified.
func (s *AccountService) Login(ctx context.Context, identity, password string) (*LoginResult, error) {
	if identity == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidArgument)
	}
	acct, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Spend the same bcrypt work as a real check so timing does not reveal unknown identities.
			s.hasher.Verify(password, s.dummyDigest())
			s.loginFailed(ctx, identity, telemetry.OutcomeMismatch, "unknown_identity")
			return nil, ErrCredentialMismatch
		}
		log.Printf("account: load account: %v", err)
		s.metrics.Login(ctx, telemetry.OutcomeError)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !acct.Verified {
		s.loginFailed(ctx, identity, telemetry.OutcomeNotVerified, "not_verified")
		return nil, ErrNotVerified
	}
	if !s.hasher.Verify(password, acct.PasswordHash) {
		s.loginFailed(ctx, identity, telemetry.OutcomeMismatch, "password_mismatch")
		return nil, ErrCredentialMismatch
	}
	token, expiresAt, err := s.tokens.IssueToken(acct.Identity, security.TokenClaims{
		AccountID:   acct.ID,
		DisplayName: acct.DisplayName,
	})
	if err != nil {
		log.Printf("account: issue token: %v", err)
		s.metrics.Login(ctx, telemetry.OutcomeError)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.metrics.Login(ctx, telemetry.OutcomeSuccess)
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLoginSuccess, Identity: identity, AccountID: acct.ID})
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Profile: acct.Profile()}, nil
}

// RequestOTP issues a fresh code for an unverified account, invalidating the previous one.
// Unknown and already verified identities get the same nil result and no mail.
func (s *AccountService) RequestOTP(ctx context.Context, identity string) error {
	if err := domain.ValidateIdentity(identity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	acct, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		log.Printf("account: load account: %v", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if acct.Verified {
		return nil
	}
	if _, err := s.issueAndDispatch(ctx, acct); err != nil {
		log.Printf("account: reissue verification code: %v", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Authenticate verifies a session token and returns the principal it asserts. Errors are
// security.ErrTokenExpired or security.ErrTokenInvalid (possibly wrapped).
func (s *AccountService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, security.ErrTokenMalformed
	}
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	p := &Principal{
		AccountID:   claims.AccountID,
		Identity:    claims.Identity(),
		DisplayName: claims.Name,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Profile returns the public profile of identity.
func (s *AccountService) Profile(ctx context.Context, identity string) (*domain.Profile, error) {
	acct, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Printf("account: load account: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p := acct.Profile()
	return &p, nil
}

// DevOTP returns the last code issued to identity when dev OTP mode is enabled.
func (s *AccountService) DevOTP(ctx context.Context, identity string) (string, bool) {
	if s.outbox == nil {
		return "", false
	}
	return s.outbox.Get(ctx, identity)
}

// issueAndDispatch issues a code for acct and hands it to the dev outbox or delivery. A
// delivery failure is recorded but only an issue failure is returned.
func (s *AccountService) issueAndDispatch(ctx context.Context, acct *domain.Account) (time.Time, error) {
	code, err := s.challenges.Issue(ctx, acct.Identity)
	if err != nil {
		s.deliveryFailed(ctx, acct, "issue_failed")
		return time.Time{}, err
	}
	var expiresAt time.Time
	if ttl := s.challenges.TTL(); ttl > 0 {
		expiresAt = s.nowF().Add(ttl)
	}
	s.metrics.OTPIssued(ctx)
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionOTPIssued, Identity: acct.Identity, AccountID: acct.ID})

	if s.outbox != nil {
		s.outbox.Put(ctx, acct.Identity, code, expiresAt)
		return expiresAt, nil
	}
	if s.delivery == nil {
		s.deliveryFailed(ctx, acct, "no_delivery_channel")
		return expiresAt, errors.New("account: no delivery channel configured")
	}
	if err := s.delivery.Enqueue(ctx, delivery.OTPMessage(acct.Identity, code)); err != nil {
		s.deliveryFailed(ctx, acct, err.Error())
		return expiresAt, fmt.Errorf("enqueue verification mail: %w", err)
	}
	return expiresAt, nil
}

func (s *AccountService) deliveryFailed(ctx context.Context, acct *domain.Account, detail string) {
	s.metrics.DeliveryFailure(ctx)
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionDeliveryFailed, Identity: acct.Identity, AccountID: acct.ID, Detail: detail})
}

func (s *AccountService) loginFailed(ctx context.Context, identity, outcome, detail string) {
	s.metrics.Login(ctx, outcome)
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLoginFailure, Identity: identity, Detail: detail})
}

// dummyDigest returns a digest of a fixed password, computed once, for timing-equalizing checks.
func (s *AccountService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		d, err := s.hasher.Hash("orbit-account-timing-equalizer")
		if err != nil {
			log.Printf("account: dummy digest: %v", err)
			return
		}
		s.dummyHash = d
	})
	return s.dummyHash
}
