package claims

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/ezlogin/pkg/errors"
)

// IDTokenClaims is the full ID token claim schema before scoping.
// Empty strings and nil pointers are treated as absent.
type IDTokenClaims struct {
	// core
	Subject   string
	Audience  string
	Issuer    string
	ExpiresAt int64
	IssuedAt  int64
	NotBefore *int64
	AuthTime  *int64
	Nonce     string
	ACR       string
	AMR       []string
	AZP       string
	JTI       string
	AtHash    string
	CHash     string
	SHash     string
	CreatedAt *int64
	UpdatedAt *int64

	// profile
	Name              string
	GivenName         string
	FamilyName        string
	MiddleName        string
	Nickname          string
	PreferredUsername string
	Profile           string
	Picture           string
	Website           string
	Gender            string
	Birthdate         string
	Locale            string
	Zoneinfo          string

	Email               string
	EmailVerified       *bool
	Address             *Address
	PhoneNumber         string
	PhoneNumberVerified *bool
}

// Validate checks the claims every signed ID token must carry
func (c IDTokenClaims) Validate() error {
	issues := requiredTokenIssues(c.Subject, c.Audience, c.Issuer, c.ExpiresAt, c.IssuedAt)
	if c.NotBefore != nil && *c.NotBefore < 0 {
		issues = append(issues, errors.Issue{Field: "nbf", Code: "invalid_timestamp", Message: "nbf must not be negative"})
	}
	if c.AuthTime != nil && *c.AuthTime < 0 {
		issues = append(issues, errors.Issue{Field: "auth_time", Code: "invalid_timestamp", Message: "auth_time must not be negative"})
	}
	if len(issues) > 0 {
		return errors.Validation("Invalid ID token claims", issues...)
	}
	return nil
}

// Map returns every present claim keyed by its registered name
func (c IDTokenClaims) Map() map[string]interface{} {
	m := make(map[string]interface{})
	setString := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	setInt := func(key string, value *int64) {
		if value != nil {
			m[key] = *value
		}
	}
	setBool := func(key string, value *bool) {
		if value != nil {
			m[key] = *value
		}
	}

	setString("sub", c.Subject)
	setString("aud", c.Audience)
	setString("iss", c.Issuer)
	if c.ExpiresAt != 0 {
		m["exp"] = c.ExpiresAt
	}
	if c.IssuedAt != 0 {
		m["iat"] = c.IssuedAt
	}
	setInt("nbf", c.NotBefore)
	setInt("auth_time", c.AuthTime)
	setString("nonce", c.Nonce)
	setString("acr", c.ACR)
	if len(c.AMR) > 0 {
		m["amr"] = c.AMR
	}
	setString("azp", c.AZP)
	setString("jti", c.JTI)
	setString("at_hash", c.AtHash)
	setString("c_hash", c.CHash)
	setString("s_hash", c.SHash)
	setInt("created_at", c.CreatedAt)
	setInt("updated_at", c.UpdatedAt)

	setString("name", c.Name)
	setString("given_name", c.GivenName)
	setString("family_name", c.FamilyName)
	setString("middle_name", c.MiddleName)
	setString("nickname", c.Nickname)
	setString("preferred_username", c.PreferredUsername)
	setString("profile", c.Profile)
	setString("picture", c.Picture)
	setString("website", c.Website)
	setString("gender", c.Gender)
	setString("birthdate", c.Birthdate)
	setString("locale", c.Locale)
	setString("zoneinfo", c.Zoneinfo)

	setString("email", c.Email)
	setBool("email_verified", c.EmailVerified)
	if c.Address != nil {
		m["address"] = *c.Address
	}
	setString("phone_number", c.PhoneNumber)
	setBool("phone_number_verified", c.PhoneNumberVerified)
	return m
}

// BuildIDTokenClaims validates base and keeps only the claims granted by scopes.
func BuildIDTokenClaims(base IDTokenClaims, scopes []string) (jwt.MapClaims, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return Scope(base.Map(), scopes), nil
}

// Scope filters a claim map down to the keys granted by scopes
func Scope(all map[string]interface{}, scopes []string) jwt.MapClaims {
	allowed := AllowedClaims(scopes)
	scoped := make(jwt.MapClaims, len(allowed))
	for key, value := range all {
		if _, ok := allowed[key]; ok {
			scoped[key] = value
		}
	}
	return scoped
}

// AccessTokenHash computes at_hash for an RS256-signed access token: the
// base64url encoding of the left half of its SHA-256 digest.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func requiredTokenIssues(sub, aud, iss string, exp, iat int64) []errors.Issue {
	var issues []errors.Issue
	if sub == "" {
		issues = append(issues, errors.Issue{Field: "sub", Code: "required", Message: "sub is required"})
	}
	if aud == "" {
		issues = append(issues, errors.Issue{Field: "aud", Code: "required", Message: "aud is required"})
	}
	if iss == "" {
		issues = append(issues, errors.Issue{Field: "iss", Code: "required", Message: "iss is required"})
	}
	switch {
	case iat <= 0:
		issues = append(issues, errors.Issue{Field: "iat", Code: "invalid_timestamp", Message: "iat must be a positive timestamp"})
	case exp <= iat:
		issues = append(issues, errors.Issue{Field: "exp", Code: "invalid_timestamp", Message: "exp must be after iat"})
	}
	if exp <= 0 && iat <= 0 {
		issues = append(issues, errors.Issue{Field: "exp", Code: "invalid_timestamp", Message: "exp must be a positive timestamp"})
	}
	return issues
}
