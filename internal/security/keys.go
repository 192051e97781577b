package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM, key type, or secret is invalid.
var ErrInvalidKey = errors.New("invalid key")

// minSecretLen is the shortest HMAC secret accepted for HS256.
const minSecretLen = 32

// SigningKey is the immutable signing material of a TokenIssuer. It is built once at
// startup from configuration and handed only to the issuer.
type SigningKey struct {
	method jwt.SigningMethod
	sign   interface{}
	verify interface{}
}

// Alg returns the JWT alg header value for the key ("HS256", "RS256", "ES256").
func (k SigningKey) Alg() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// NewHMACKey returns an HS256 signing key from a shared secret of at least 32 bytes.
// The secret is copied.
func NewHMACKey(secret []byte) (SigningKey, error) {
	if len(secret) < minSecretLen {
		return SigningKey{}, ErrInvalidKey
	}
	b := make([]byte, len(secret))
	copy(b, secret)
	return SigningKey{method: jwt.SigningMethodHS256, sign: b, verify: b}, nil
}

// NewAsymmetricKey returns an RS256 or ES256 (P-256) signing key. The public key must
// belong to the private key.
func NewAsymmetricKey(priv crypto.Signer, pub crypto.PublicKey) (SigningKey, error) {
	if priv == nil || pub == nil {
		return SigningKey{}, ErrInvalidKey
	}
	type equaler interface{ Equal(crypto.PublicKey) bool }
	if eq, ok := priv.Public().(equaler); !ok || !eq.Equal(pub) {
		return SigningKey{}, ErrInvalidKey
	}
	switch p := pub.(type) {
	case *rsa.PublicKey:
		return SigningKey{method: jwt.SigningMethodRS256, sign: priv, verify: p}, nil
	case *ecdsa.PublicKey:
		if p.Curve != elliptic.P256() {
			return SigningKey{}, ErrInvalidKey
		}
		return SigningKey{method: jwt.SigningMethodES256, sign: priv, verify: p}, nil
	default:
		return SigningKey{}, ErrInvalidKey
	}
}

// NewSigningKeyFromConfig picks the key pair when both PEM values are set, otherwise the
// HMAC secret. PEM values may be inline or file paths.
func NewSigningKeyFromConfig(secret, privatePEM, publicPEM string) (SigningKey, error) {
	if privatePEM != "" || publicPEM != "" {
		priv, err := ParsePrivateKey(privatePEM)
		if err != nil {
			return SigningKey{}, err
		}
		pub, err := ParsePublicKey(publicPEM)
		if err != nil {
			return SigningKey{}, err
		}
		return NewAsymmetricKey(priv, pub)
	}
	return NewHMACKey([]byte(secret))
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		// Env files often carry PEM on one line with literal \n separators.
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

func decodePEM(s string) (*pem.Block, error) {
	raw, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}
