package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// JWKS represents a JSON Web Key Set as defined in RFC 7517
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of a signing key. Private components are never part of it.
type JWK struct {
	// Key Type - "RSA" for RSA keys
	Kty string `json:"kty"`

	// RSA public key exponent (base64url encoded)
	E string `json:"e"`

	// Public Key Use - "sig" for signature
	Use string `json:"use"`

	// Key ID - unique identifier for this key
	Kid string `json:"kid"`

	// Algorithm - "RS256" for RSA with SHA-256
	Alg string `json:"alg"`

	// RSA public key modulus (base64url encoded)
	N string `json:"n"`
}

// KeyPair represents an RSA key pair with metadata
type KeyPair struct {
	Kid        string
	Alg        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	CreatedAt  time.Time
	Active     bool
}

// NewKeyPair wraps an RSA private key as an RS256 key pair. The kid is the
// RFC 7638 thumbprint of the public key when kid is empty.
func NewKeyPair(privateKey *rsa.PrivateKey, kid string) *KeyPair {
	if kid == "" {
		kid = Thumbprint(&privateKey.PublicKey)
	}
	return &KeyPair{
		Kid:        kid,
		Alg:        "RS256",
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		CreatedAt:  time.Now().UTC(),
	}
}

// ToJWK converts a KeyPair to a JWK (public key only)
func (kp *KeyPair) ToJWK() JWK {
	return JWK{
		Kty: "RSA",
		E:   EncodeRSAPublicKeyExponent(kp.PublicKey),
		Use: "sig",
		Kid: kp.Kid,
		Alg: kp.Alg,
		N:   EncodeRSAPublicKeyModulus(kp.PublicKey),
	}
}

// Find returns the key with the given kid
func (s *JWKS) Find(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// PublicKey decodes the RSA public key of a published JWK
func (j JWK) PublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", j.Kty)
	}
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("invalid RSA key %s", j.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}, nil
}
