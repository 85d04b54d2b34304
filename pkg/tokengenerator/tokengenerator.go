package tokengenerator

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/ezlogin/pkg/jwks"
)

// KeySource supplies the current signing key and verification keys by kid.
type KeySource interface {
	SigningKey() *jwks.KeyPair
	PublicKey(kid string) (*rsa.PublicKey, error)
}

// TokenSigner signs claim sets into compact JWS strings
type TokenSigner interface {
	Sign(claims jwt.Claims) (string, error)
}

// TokenVerifier parses and checks a compact JWS into claims
type TokenVerifier interface {
	Verify(tokenStr string, claims jwt.Claims, expect Expectation) error
}

// Expectation lists what a verified token must carry besides a valid
// signature, the configured issuer and an unexpired exp. Empty fields are not checked.
type Expectation struct {
	Audience string
	Subject  string
}
