package oidc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/ezlogin/pkg/claims"
)

const (
	DefaultCodeTTL        = 5 * time.Minute
	DefaultAccessTokenTTL = 20 * time.Minute
	codeBytes             = 32
)

// Authorization is a single-use authorization code issued to a client on
// behalf of a user, together with the request it answers.
type Authorization struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	UserID              string    `json:"user_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	Nonce               string    `json:"nonce,omitempty"`
	State               *string   `json:"state,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	AuthTime            *int64    `json:"auth_time,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewAuthorization creates an authorization for userID from req, valid for ttl
func NewAuthorization(req *AuthorizationRequest, userID string, authTime *int64, now time.Time, ttl time.Duration) (*Authorization, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	created := now.UTC()
	return &Authorization{
		ID:                  uuid.NewString(),
		Code:                code,
		UserID:              userID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		Nonce:               req.Nonce,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		AuthTime:            authTime,
		ExpiresAt:           created.Add(ttl),
		CreatedAt:           created,
	}, nil
}

// Expired reports whether the code can no longer be exchanged at now
func (a *Authorization) Expired(now time.Time) bool {
	return a.ExpiresAt.Before(now)
}

// Scopes returns the granted scopes
func (a *Authorization) Scopes() []string {
	return claims.ParseScope(a.Scope)
}

func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
