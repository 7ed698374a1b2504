package credsvc

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AssertionTTL is the platform's maximum lifetime for an app assertion.
const AssertionTTL = 10 * time.Minute

// ErrPKCS1Key is returned when the configured private key uses the legacy
// PKCS1 encoding. The signer refuses to start rather than risk producing a
// malformed assertion; re-encode the key with
// `openssl pkcs8 -topk8 -nocrypt`.
var ErrPKCS1Key = errors.New("private key is PKCS1-encoded (\"BEGIN RSA PRIVATE KEY\"), re-encode it as PKCS8")

// Signer mints short-lived app-level assertions. The private key never
// leaves the service; assertions are generated fresh per call and never
// cached.
type Signer struct {
	appID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewSignerFromFile loads the app's private key and returns a Signer. Any
// key problem is a configuration error: the service must not start without a
// working signer.
func NewSignerFromFile(appID, path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return NewSigner(appID, raw)
}

// NewSigner builds a Signer from PEM-encoded key material. Only PKCS8 RSA
// keys are accepted.
func NewSigner(appID string, pemBytes []byte) (*Signer, error) {
	if appID == "" {
		return nil, errors.New("app id is required")
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("private key is not valid PEM")
	}
	if block.Type == "RSA PRIVATE KEY" {
		return nil, ErrPKCS1Key
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return &Signer{appID: appID, key: key, now: time.Now}, nil
}

// Mint produces a fresh RS256-signed assertion claiming the app's identity,
// valid from now until now + AssertionTTL.
func (s *Signer) Mint() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AssertionTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}
