package claims

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of the session token set at login
type SessionClaims struct {
	AuthTime *int64 `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

// NewSessionClaims creates claims for a login of subject into clientID at authTime
func NewSessionClaims(subject, clientID, issuer string, authTime time.Time, ttl time.Duration) SessionClaims {
	at := authTime.Unix()
	return SessionClaims{
		AuthTime: &at,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(authTime),
			ExpiresAt: jwt.NewNumericDate(authTime.Add(ttl)),
		},
	}
}

// Complete reports whether the claims name both a subject and an audience
func (c SessionClaims) Complete() bool {
	return c.Subject != "" && len(c.Audience) > 0 && c.Audience[0] != ""
}

// LoginExpired reports whether a login is too old for maxAge seconds.
// A missing auth_time always counts as expired. skew is subtracted from now.
func (c SessionClaims) LoginExpired(maxAge int64, now time.Time, skew time.Duration) bool {
	if c.AuthTime == nil {
		return true
	}
	return now.Add(-skew).Unix()-*c.AuthTime > maxAge
}
