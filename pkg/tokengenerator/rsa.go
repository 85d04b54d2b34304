package tokengenerator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/ezlogin/pkg/errors"
)

// RSATokenGenerator signs and verifies RS256 tokens with keys from an injected KeySource
type RSATokenGenerator struct {
	keys   KeySource
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Option configures an RSATokenGenerator
type Option func(*RSATokenGenerator)

// WithLeeway sets the clock skew tolerated when checking exp and nbf
func WithLeeway(leeway time.Duration) Option {
	return func(g *RSATokenGenerator) {
		g.leeway = leeway
	}
}

// WithClock overrides the time source used during verification
func WithClock(now func() time.Time) Option {
	return func(g *RSATokenGenerator) {
		g.now = now
	}
}

// NewRSATokenGenerator creates a new RSA token generator
func NewRSATokenGenerator(keys KeySource, issuer string, opts ...Option) *RSATokenGenerator {
	g := &RSATokenGenerator{
		keys:   keys,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issuer returns the iss value tokens are expected to carry
func (g *RSATokenGenerator) Issuer() string {
	return g.issuer
}

// Sign creates an RS256 token for claims, with the active key id in the header
func (g *RSATokenGenerator) Sign(claims jwt.Claims) (string, error) {
	key := g.keys.SigningKey()
	if key == nil || key.PrivateKey == nil {
		return "", fmt.Errorf("no signing key available")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.Kid

	tokenString, err := token.SignedString(key.PrivateKey)
	if err != nil {
		slog.Error("Failed to sign RSA JWT token", "kid", key.Kid, "err", err)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify parses tokenStr into claims. Any signature, algorithm, issuer,
// audience, subject or time-validity mismatch yields an invalid_token error.
func (g *RSATokenGenerator) Verify(tokenStr string, claims jwt.Claims, expect Expectation) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(g.issuer),
		jwt.WithLeeway(g.leeway),
		jwt.WithTimeFunc(g.now),
	}
	if expect.Audience != "" {
		opts = append(opts, jwt.WithAudience(expect.Audience))
	}
	if expect.Subject != "" {
		opts = append(opts, jwt.WithSubject(expect.Subject))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, g.keyFunc, opts...)
	if err != nil {
		slog.Debug("Token verification failed", "err", err)
		return errors.Authentication("invalid token", err)
	}
	if !token.Valid {
		return errors.Authentication("invalid token", nil)
	}
	return nil
}

func (g *RSATokenGenerator) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	return g.keys.PublicKey(kid)
}
