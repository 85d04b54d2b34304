package wellknown

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/ezlogin/pkg/jwks"
)

func setupRouter(t *testing.T) (http.Handler, *jwks.KeySet) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := jwks.NewKeySet(jwks.NewKeyPair(key, "kid-1"))
	require.NoError(t, err)

	h := NewHandler(Config{Issuer: "https://ezlog.in", BaseURL: "https://ezlog.in/api/"}, keys)
	r := chi.NewRouter()
	h.Routes(r)
	return r, keys
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestOpenIDConfiguration(t *testing.T) {
	router, _ := setupRouter(t)
	rec := get(router, "/.well-known/openid-configuration")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "https://ezlog.in", doc["issuer"])
	assert.Equal(t, "https://ezlog.in/api/authorization", doc["authorization_endpoint"])
	assert.Equal(t, "https://ezlog.in/api/v1/token", doc["token_endpoint"])
	assert.Equal(t, "https://ezlog.in/api/v1/userinfo", doc["userinfo_endpoint"])
	assert.Equal(t, "https://ezlog.in/api/v1/certs", doc["jwks_uri"])
	assert.Equal(t, []interface{}{"public"}, doc["subject_types_supported"])
	assert.Equal(t, []interface{}{"RS256"}, doc["id_token_signing_alg_values_supported"])
	assert.Equal(t, []interface{}{"plain", "S256"}, doc["code_challenge_methods_supported"])
	assert.Equal(t, []interface{}{"openid", "profile", "email", "address", "phone"}, doc["scopes_supported"])
	assert.Contains(t, doc["claims_supported"], "email_verified")
}

func TestAuthorizationServerMetadata(t *testing.T) {
	router, _ := setupRouter(t)
	rec := get(router, "/.well-known/oauth-authorization-server")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc AuthorizationServerMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, []string{"authorization_code"}, doc.GrantTypesSupported)
	assert.Equal(t, "https://ezlog.in/api/v1/clients", doc.RegistrationEndpoint)
	assert.NotContains(t, rec.Body.String(), "userinfo_endpoint")
}

func TestJWKS(t *testing.T) {
	router, _ := setupRouter(t)
	rec := get(router, "/.well-known/jwks.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var set jwks.JWKS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "kid-1", set.Keys[0].Kid)
	assert.Equal(t, "RS256", set.Keys[0].Alg)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/.well-known/jwks.json", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJwksURIOverride(t *testing.T) {
	doc := NewOpenIDProviderMetadata(Config{Issuer: "https://ezlog.in", BaseURL: "https://ezlog.in/api", JwksURI: "https://ezlog.in/.well-known/jwks.json"})
	assert.Equal(t, "https://ezlog.in/.well-known/jwks.json", doc.JwksURI)
}
