package claims

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/ezlogin/pkg/errors"
)

// AccessTokenClaims always carries sub, aud, iss, exp, iat, nbf and scope.
type AccessTokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// AccessTokenInput holds what an access token is issued for
type AccessTokenInput struct {
	Subject  string
	ClientID string
	Issuer   string
	Scope    string
	TokenID  string
	IssuedAt time.Time
	TTL      time.Duration
}

// BuildAccessTokenClaims assembles and validates access token claims
func BuildAccessTokenClaims(in AccessTokenInput) (*AccessTokenClaims, error) {
	issued := in.IssuedAt.Unix()
	expires := in.IssuedAt.Add(in.TTL).Unix()

	issues := requiredTokenIssues(in.Subject, in.ClientID, in.Issuer, expires, issued)
	if in.IssuedAt.IsZero() {
		issues = append(issues, errors.Issue{Field: "iat", Code: "required", Message: "iat is required"})
	}
	if in.Scope == "" {
		issues = append(issues, errors.Issue{Field: "scope", Code: "required", Message: "scope is required"})
	}
	if len(issues) > 0 {
		return nil, errors.Validation("Invalid access token claims", issues...)
	}

	issuedAt := jwt.NewNumericDate(in.IssuedAt)
	return &AccessTokenClaims{
		Scope: in.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.Subject,
			Audience:  jwt.ClaimStrings{in.ClientID},
			Issuer:    in.Issuer,
			ExpiresAt: jwt.NewNumericDate(in.IssuedAt.Add(in.TTL)),
			IssuedAt:  issuedAt,
			NotBefore: issuedAt,
			ID:        in.TokenID,
		},
	}, nil
}
