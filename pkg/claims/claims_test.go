package claims

import (
	"crypto/sha256"
	"encoding/base64"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/ezlogin/pkg/errors"
)

func fullClaims() IDTokenClaims {
	verified := true
	phoneVerified := false
	created := int64(1_600_000_000)
	return IDTokenClaims{
		Subject:             "user-1",
		Audience:            "client-1",
		Issuer:              "https://ezlog.in",
		ExpiresAt:           1_700_001_200,
		IssuedAt:            1_700_000_000,
		Nonce:               "n-0S6_WzA2Mj",
		AtHash:              "hash",
		CreatedAt:           &created,
		Name:                "Jane Doe",
		GivenName:           "Jane",
		FamilyName:          "Doe",
		Nickname:            "jd",
		Website:             "https://jane.example",
		Locale:              "en-US",
		Email:               "jane@example.com",
		EmailVerified:       &verified,
		Address:             &Address{Formatted: "1 Main St", Country: "US"},
		PhoneNumber:         "+1 555 0100",
		PhoneNumberVerified: &phoneVerified,
	}
}

func TestBuildIDTokenClaims(t *testing.T) {
	t.Run("OpenIDEmail", func(t *testing.T) {
		scoped, err := BuildIDTokenClaims(fullClaims(), []string{"openid", "email"})
		require.NoError(t, err)

		assert.Equal(t, "user-1", scoped["sub"])
		assert.Equal(t, "jane@example.com", scoped["email"])
		assert.Equal(t, true, scoped["email_verified"])
		assert.Equal(t, "Jane Doe", scoped["name"])
		assert.Equal(t, "n-0S6_WzA2Mj", scoped["nonce"])
		assert.Equal(t, "hash", scoped["at_hash"])

		for _, key := range []string{"given_name", "family_name", "nickname", "website", "address", "phone_number", "phone_number_verified", "locale"} {
			assert.NotContains(t, scoped, key)
		}
	})

	t.Run("AllScopes", func(t *testing.T) {
		scoped, err := BuildIDTokenClaims(fullClaims(), []string{"openid", "profile", "email", "address", "phone"})
		require.NoError(t, err)

		assert.Equal(t, "Jane", scoped["given_name"])
		assert.Equal(t, Address{Formatted: "1 Main St", Country: "US"}, scoped["address"])
		assert.Equal(t, "+1 555 0100", scoped["phone_number"])
		assert.Equal(t, false, scoped["phone_number_verified"])
		// not mapped by any scope
		assert.NotContains(t, scoped, "locale")
	})

	t.Run("UnknownScopeGrantsNothing", func(t *testing.T) {
		scoped, err := BuildIDTokenClaims(fullClaims(), []string{"offline_access"})
		require.NoError(t, err)
		assert.Empty(t, scoped)
	})

	t.Run("Deterministic", func(t *testing.T) {
		first, err := BuildIDTokenClaims(fullClaims(), []string{"openid", "profile"})
		require.NoError(t, err)
		second, err := BuildIDTokenClaims(fullClaims(), []string{"profile", "openid"})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		base := fullClaims()
		base.Subject = ""
		base.Issuer = ""
		_, err := BuildIDTokenClaims(base, []string{"openid"})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindValidation))
		assert.Len(t, errors.As(err).Issues, 2)
	})

	t.Run("NegativeTimestamps", func(t *testing.T) {
		base := fullClaims()
		base.IssuedAt = -1
		_, err := BuildIDTokenClaims(base, []string{"openid"})
		assert.True(t, errors.IsKind(err, errors.KindValidation))

		base = fullClaims()
		nbf := int64(-5)
		base.NotBefore = &nbf
		_, err = BuildIDTokenClaims(base, []string{"openid"})
		assert.True(t, errors.IsKind(err, errors.KindValidation))
	})

	t.Run("ExpiryBeforeIssue", func(t *testing.T) {
		base := fullClaims()
		base.ExpiresAt = base.IssuedAt - 1
		_, err := BuildIDTokenClaims(base, []string{"openid"})
		assert.True(t, errors.IsKind(err, errors.KindValidation))
	})
}

func TestBuildAccessTokenClaims(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)

	t.Run("Valid", func(t *testing.T) {
		c, err := BuildAccessTokenClaims(AccessTokenInput{
			Subject:  "user-1",
			ClientID: "client-1",
			Issuer:   "https://ezlog.in",
			Scope:    "openid email",
			TokenID:  "jti-1",
			IssuedAt: issued,
			TTL:      20 * time.Minute,
		})
		require.NoError(t, err)

		assert.Equal(t, "user-1", c.Subject)
		assert.Equal(t, []string{"client-1"}, []string(c.Audience))
		assert.Equal(t, "https://ezlog.in", c.Issuer)
		assert.Equal(t, "openid email", c.Scope)
		assert.Equal(t, issued.Add(20*time.Minute).Unix(), c.ExpiresAt.Unix())
		assert.Equal(t, issued.Unix(), c.IssuedAt.Unix())
		assert.Equal(t, issued.Unix(), c.NotBefore.Unix())
		assert.Equal(t, "jti-1", c.ID)
	})

	tests := []struct {
		name  string
		input AccessTokenInput
	}{
		{"missing subject", AccessTokenInput{ClientID: "c", Issuer: "i", Scope: "openid", IssuedAt: issued, TTL: time.Minute}},
		{"missing audience", AccessTokenInput{Subject: "s", Issuer: "i", Scope: "openid", IssuedAt: issued, TTL: time.Minute}},
		{"empty issuer", AccessTokenInput{Subject: "s", ClientID: "c", Scope: "openid", IssuedAt: issued, TTL: time.Minute}},
		{"missing scope", AccessTokenInput{Subject: "s", ClientID: "c", Issuer: "i", IssuedAt: issued, TTL: time.Minute}},
		{"zero ttl", AccessTokenInput{Subject: "s", ClientID: "c", Issuer: "i", Scope: "openid", IssuedAt: issued}},
		{"negative issue time", AccessTokenInput{Subject: "s", ClientID: "c", Issuer: "i", Scope: "openid", IssuedAt: time.Unix(-10, 0), TTL: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAccessTokenClaims(tt.input)
			assert.True(t, errors.IsKind(err, errors.KindValidation), "got %v", err)
		})
	}
}

func TestAccessTokenHash(t *testing.T) {
	token := "eyJhbGciOiJSUzI1NiJ9.payload.signature"
	sum := sha256.Sum256([]byte(token))
	expected := base64.RawURLEncoding.EncodeToString(sum[:16])

	assert.Equal(t, expected, AccessTokenHash(token))
	assert.Len(t, AccessTokenHash(token), 22)
	assert.NotEqual(t, AccessTokenHash(token), AccessTokenHash(token+"x"))
}

func TestScopeTable(t *testing.T) {
	assert.Equal(t, []string{"email", "email_verified"}, ClaimsForScope("email"))
	assert.Equal(t, []string{"address"}, ClaimsForScope("address"))
	assert.Empty(t, ClaimsForScope("unknown"))
	assert.Equal(t, []string{"openid", "profile", "email", "address", "phone"}, SupportedScopes())
	assert.Contains(t, SupportedClaims(), "phone_number_verified")

	// callers cannot mutate the table
	keys := ClaimsForScope("email")
	keys[0] = "mutated"
	assert.Equal(t, "email", ClaimsForScope("email")[0])
}

func TestParseScope(t *testing.T) {
	assert.Equal(t, []string{"openid", "email"}, ParseScope("  openid email openid "))
	assert.Nil(t, ParseScope(""))
	assert.True(t, HasScope("openid profile", "profile"))
	assert.False(t, HasScope("openid profiles", "profile"))
}

func TestSessionClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewSessionClaims("user-1", "client-1", "https://ezlog.in", now.Add(-100*time.Second), 10*time.Minute)

	assert.True(t, c.Complete())
	assert.False(t, c.LoginExpired(100, now, 5*time.Second))
	assert.False(t, c.LoginExpired(96, now, 5*time.Second))
	assert.True(t, c.LoginExpired(94, now, 5*time.Second))
	assert.False(t, c.LoginExpired(math.MaxInt64, now, 5*time.Second))
	assert.False(t, c.LoginExpired(math.MaxInt64, now.Add(-100*time.Second), 0))

	c.AuthTime = nil
	assert.True(t, c.LoginExpired(3600, now, 5*time.Second))

	assert.False(t, SessionClaims{}.Complete())
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "1 Main St Springfield, IL US 62701", FormatAddress("1 Main St", "Springfield", "IL", "US", "62701"))
	assert.Equal(t, ", US", FormatAddress("", "", "", "US", ""))
}
