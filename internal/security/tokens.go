package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned when a correctly signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned when a token cannot be trusted. ErrTokenMalformed and
	// ErrTokenBadSignature wrap it.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenMalformed is returned when a token cannot be parsed.
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrTokenInvalid)
	// ErrTokenBadSignature is returned when the signature does not verify with the issuer key.
	ErrTokenBadSignature = fmt.Errorf("%w: bad signature", ErrTokenInvalid)
)

// TokenClaims are the caller-supplied attributes asserted next to the identity.
type TokenClaims struct {
	AccountID   string
	DisplayName string
}

// SessionClaims holds JWT claims for a session token. Subject is the account identity.
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	Name      string `json:"name,omitempty"`
}

// Identity returns the authenticated identity (the sub claim).
func (c *SessionClaims) Identity() string {
	return c.Subject
}

// TokenIssuer issues and verifies signed session tokens with a fixed lifetime. It holds no
// record of issued tokens: verification depends only on the token and the signing key, so a
// token stays valid until it expires.
type TokenIssuer struct {
	key      SigningKey
	issuer   string
	audience string
	ttl      time.Duration
	nowF     func() time.Time
}

// NewTokenIssuer returns a TokenIssuer signing with key. issuer and audience are set on
// claims and checked on verification.
func NewTokenIssuer(key SigningKey, issuer, audience string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the token lifetime.
func (p *TokenIssuer) TTL() time.Duration {
	return p.ttl
}

// IssueToken signs a token asserting identity, valid from now until now+TTL.
// Returns the token string and its expiration time.
func (p *TokenIssuer) IssueToken(identity string, claims TokenClaims) (token string, expiresAt time.Time, err error) {
	if identity == "" {
		return "", time.Time{}, errors.New("security: identity is required")
	}
	if p.key.method == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	now := p.nowF()
	expiresAt = now.Add(p.ttl)
	sc := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: claims.AccountID,
		Name:      claims.DisplayName,
	}
	token, err = jwt.NewWithClaims(p.key.method, sc).SignedString(p.key.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyToken parses and validates token (signature, alg, exp, iss, aud) and returns its claims.
// Errors are ErrTokenExpired, ErrTokenMalformed, ErrTokenBadSignature, or ErrTokenInvalid.
func (p *TokenIssuer) VerifyToken(tokenString string) (*SessionClaims, error) {
	if p.key.method == nil {
		return nil, ErrInvalidKey
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return p.key.verify, nil },
		jwt.WithValidMethods([]string{p.key.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
