package tokengenerator

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/jwks"
)

const testIssuer = "https://ezlog.in"

func newKeySet(t *testing.T) *jwks.KeySet {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ks, err := jwks.NewKeySet(jwks.NewKeyPair(key, "test-kid"))
	require.NoError(t, err)
	return ks
}

func registered(sub, aud string, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{aud},
		Issuer:    testIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func TestSignAndVerify(t *testing.T) {
	ks := newKeySet(t)
	g := NewRSATokenGenerator(ks, testIssuer)

	token, err := g.Sign(registered("user-1", "client-1", time.Now().Add(time.Minute)))
	require.NoError(t, err)

	t.Run("HeaderCarriesKid", func(t *testing.T) {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
		require.NoError(t, err)
		assert.Equal(t, "test-kid", parsed.Header["kid"])
		assert.Equal(t, "RS256", parsed.Header["alg"])
	})

	t.Run("Valid", func(t *testing.T) {
		var claims jwt.RegisteredClaims
		err := g.Verify(token, &claims, Expectation{Audience: "client-1", Subject: "user-1"})
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		err := g.Verify(token, &jwt.RegisteredClaims{}, Expectation{Audience: "client-2"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidToken))
	})

	t.Run("WrongSubject", func(t *testing.T) {
		err := g.Verify(token, &jwt.RegisteredClaims{}, Expectation{Subject: "user-2"})
		assert.True(t, errors.IsKind(err, errors.KindAuthentication))
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := NewRSATokenGenerator(ks, "https://other.example")
		err := other.Verify(token, &jwt.RegisteredClaims{}, Expectation{})
		assert.True(t, errors.IsKind(err, errors.KindAuthentication))
	})

	t.Run("TamperedSignature", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		tampered := parts[0] + "." + parts[1] + "." + string(sig)
		err := g.Verify(tampered, &jwt.RegisteredClaims{}, Expectation{})
		assert.True(t, errors.IsKind(err, errors.KindAuthentication))
	})

	t.Run("ForeignKey", func(t *testing.T) {
		foreign := NewRSATokenGenerator(newKeySet(t), testIssuer)
		err := foreign.Verify(token, &jwt.RegisteredClaims{}, Expectation{})
		assert.True(t, errors.IsKind(err, errors.KindAuthentication))
	})
}

func TestVerifyExpiry(t *testing.T) {
	ks := newKeySet(t)
	g := NewRSATokenGenerator(ks, testIssuer)

	expired, err := g.Sign(registered("user-1", "client-1", time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	err = g.Verify(expired, &jwt.RegisteredClaims{}, Expectation{})
	assert.True(t, errors.IsKind(err, errors.KindAuthentication))

	noExp := jwt.RegisteredClaims{Subject: "user-1", Issuer: testIssuer}
	token, err := g.Sign(noExp)
	require.NoError(t, err)
	err = g.Verify(token, &jwt.RegisteredClaims{}, Expectation{})
	assert.Error(t, err, "tokens without exp must be rejected")

	later := NewRSATokenGenerator(ks, testIssuer, WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) }))
	valid, err := g.Sign(registered("user-1", "client-1", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	assert.Error(t, later.Verify(valid, &jwt.RegisteredClaims{}, Expectation{}))
}

func TestVerifyRejectsHS256(t *testing.T) {
	g := NewRSATokenGenerator(newKeySet(t), testIssuer)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, registered("user-1", "client-1", time.Now().Add(time.Minute)))
	token, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)

	err = g.Verify(token, &jwt.RegisteredClaims{}, Expectation{})
	assert.True(t, errors.IsKind(err, errors.KindAuthentication))
}

func TestSessionCookieSetter(t *testing.T) {
	tests := []struct {
		name       string
		devMode    bool
		wantSecure bool
	}{
		{"production", false, true},
		{"development", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setter := NewSessionCookieSetter("session", "", tt.devMode)
			rec := httptest.NewRecorder()
			setter.SetCookie(rec, "token-value", time.Now().Add(time.Minute))

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, "session", cookies[0].Name)
			assert.Equal(t, "token-value", cookies[0].Value)
			assert.True(t, cookies[0].HttpOnly)
			assert.Equal(t, tt.wantSecure, cookies[0].Secure)
			assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(cookies[0])
			assert.Equal(t, "token-value", TokenFromCookie("session")(req))
		})
	}
}
