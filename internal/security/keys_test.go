package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPEM_Inline(t *testing.T) {
	got, err := LoadPEM("  " + testPublicKeyPEM + "\n")
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(got) != testPublicKeyPEM {
		t.Error("LoadPEM should return trimmed inline PEM unchanged")
	}
}

func TestLoadPEM_EscapedNewlines(t *testing.T) {
	oneLine := strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`)
	got, err := LoadPEM(oneLine)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(got) != testPublicKeyPEM {
		t.Error("LoadPEM should convert literal \\n to newlines")
	}
	if _, err := ParsePublicKey(oneLine); err != nil {
		t.Errorf("ParsePublicKey(one line): %v", err)
	}
}

func TestLoadPEM_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pub.pem")
	if err := os.WriteFile(path, []byte(testPublicKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := LoadPEM(path)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(got) != testPublicKeyPEM {
		t.Error("LoadPEM should return file contents")
	}
}

func TestLoadPEM_Empty(t *testing.T) {
	if _, err := LoadPEM("   "); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("LoadPEM(blank) err = %v, want ErrInvalidKey", err)
	}
	if _, err := LoadPEM(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("LoadPEM(missing file) should fail")
	}
}

func TestParseKeys(t *testing.T) {
	priv, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	key, err := NewAsymmetricKey(priv, pub)
	if err != nil {
		t.Fatalf("NewAsymmetricKey: %v", err)
	}
	if key.Alg() != "RS256" {
		t.Errorf("Alg = %q, want RS256", key.Alg())
	}

	if _, err := ParsePrivateKey(testPublicKeyPEM); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ParsePrivateKey(public PEM) err = %v, want ErrInvalidKey", err)
	}
	if _, err := ParsePublicKey("-----BEGIN PUBLIC KEY-----\nnot base64\n-----END PUBLIC KEY-----"); err == nil {
		t.Error("ParsePublicKey(garbage) should fail")
	}
}

func TestNewHMACKey(t *testing.T) {
	if _, err := NewHMACKey([]byte("too-short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("NewHMACKey(short) err = %v, want ErrInvalidKey", err)
	}
	secret := []byte(TestSecret)
	key, err := NewHMACKey(secret)
	if err != nil {
		t.Fatalf("NewHMACKey: %v", err)
	}
	if key.Alg() != "HS256" {
		t.Errorf("Alg = %q, want HS256", key.Alg())
	}
	secret[0] = 'X'
	if key.sign.([]byte)[0] == 'X' {
		t.Error("NewHMACKey should copy the secret")
	}
}

func TestNewAsymmetricKey_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := NewAsymmetricKey(priv, &priv.PublicKey)
	if err != nil {
		t.Fatalf("NewAsymmetricKey: %v", err)
	}
	if key.Alg() != "ES256" {
		t.Errorf("Alg = %q, want ES256", key.Alg())
	}

	p384, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if _, err := NewAsymmetricKey(p384, &p384.PublicKey); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("P-384 err = %v, want ErrInvalidKey", err)
	}
}

func TestNewAsymmetricKey_MismatchedPair(t *testing.T) {
	priv, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	other, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if _, err := NewAsymmetricKey(priv, &other.PublicKey); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("mismatched pair err = %v, want ErrInvalidKey", err)
	}
	rsaPub, _ := ParsePublicKey(testPublicKeyPEM)
	if _, err := NewAsymmetricKey(priv, rsaPub); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ecdsa private with rsa public err = %v, want ErrInvalidKey", err)
	}
	if _, err := NewAsymmetricKey(nil, nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("nil keys err = %v, want ErrInvalidKey", err)
	}
}

func TestNewSigningKeyFromConfig(t *testing.T) {
	key, err := NewSigningKeyFromConfig(TestSecret, "", "")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	if key.Alg() != "HS256" {
		t.Errorf("secret Alg = %q, want HS256", key.Alg())
	}

	key, err = NewSigningKeyFromConfig("", testPrivateKeyPEM, testPublicKeyPEM)
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	if key.Alg() != "RS256" {
		t.Errorf("key pair Alg = %q, want RS256", key.Alg())
	}

	if _, err := NewSigningKeyFromConfig(TestSecret, testPrivateKeyPEM, ""); err == nil {
		t.Error("private key without public key should fail")
	}

	priv, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	key, err = NewSigningKeyFromConfig("", privPEM, pubPEM)
	if err != nil {
		t.Fatalf("ecdsa pair: %v", err)
	}
	if key.Alg() != "ES256" {
		t.Errorf("ecdsa pair Alg = %q, want ES256", key.Alg())
	}
}
