package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/ezlogin/pkg/claims"
	"github.com/tendant/ezlogin/pkg/common"
	"github.com/tendant/ezlogin/pkg/jwks"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
	"github.com/tendant/ezlogin/pkg/user"
	"golang.org/x/crypto/bcrypt"
)

const testIssuer = "https://ezlog.in"

func setupRouter(t *testing.T) (http.Handler, *tokengenerator.RSATokenGenerator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := jwks.NewKeySet(jwks.NewKeyPair(key, ""))
	require.NoError(t, err)
	tokens := tokengenerator.NewRSATokenGenerator(keys, testIssuer)

	svc := user.NewUserService(user.NewInMemoryRepository(), tokens, testIssuer, user.WithBcryptCost(bcrypt.MinCost))
	h := NewHandle(svc, WithCookieSetter(tokengenerator.NewSessionCookieSetter("ezlogin_session", "", true)))

	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	return r, tokens
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	router, tokens := setupRouter(t)

	rec := post(router, "/api/users", `{"email":"jane@example.com","password":"password123","client_id":"client-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created user.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "jane@example.com", created.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	t.Run("DuplicateEmail", func(t *testing.T) {
		rec := post(router, "/api/users", `{"email":"jane@example.com","password":"password123","client_id":"client-1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)

		var body common.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Email already in use", body.Error.Message)
		assert.Equal(t, http.StatusConflict, body.Error.Status)
	})

	t.Run("LoginSetsCookie", func(t *testing.T) {
		rec := post(router, "/api/login", `{"email":"jane@example.com","password":"password123","client_id":"client-1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Login successful"}`, rec.Body.String())

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		cookie := cookies[0]
		assert.Equal(t, "ezlogin_session", cookie.Name)
		assert.True(t, cookie.HttpOnly)
		assert.False(t, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

		var sc claims.SessionClaims
		require.NoError(t, tokens.Verify(cookie.Value, &sc, tokengenerator.Expectation{Audience: "client-1"}))
		assert.Equal(t, created.ID, sc.Subject)
	})

	t.Run("LoginWrongPassword", func(t *testing.T) {
		rec := post(router, "/api/login", `{"email":"jane@example.com","password":"nope-nope","client_id":"client-1"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid email or password")
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("LoginMissingFields", func(t *testing.T) {
		rec := post(router, "/api/login", `{"client_id":"client-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Email and password are required")
	})
}

func TestRegisterValidation(t *testing.T) {
	router, _ := setupRouter(t)

	rec := post(router, "/api/users", `{"email":"nope","password":"short","client_id":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Error.Errors, 3)

	rec = post(router, "/api/users", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
