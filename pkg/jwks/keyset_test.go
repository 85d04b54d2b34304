package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestKeySet(t *testing.T) {
	t.Run("RequiresActiveKey", func(t *testing.T) {
		_, err := NewKeySet(nil)
		assert.Error(t, err)
	})

	t.Run("SigningKeyIsActive", func(t *testing.T) {
		ks, err := NewKeySet(NewKeyPair(newTestKey(t), "kid-1"))
		require.NoError(t, err)

		key := ks.SigningKey()
		assert.Equal(t, "kid-1", key.Kid)
		assert.Equal(t, "RS256", key.Alg)
		assert.True(t, key.Active)
		assert.NotNil(t, key.PrivateKey)
	})

	t.Run("PublicKeyLookup", func(t *testing.T) {
		active := NewKeyPair(newTestKey(t), "active")
		retired := NewKeyPair(newTestKey(t), "old")
		ks, err := NewKeySet(active, retired)
		require.NoError(t, err)

		pub, err := ks.PublicKey("old")
		require.NoError(t, err)
		assert.Equal(t, retired.PublicKey.N, pub.N)

		pub, err = ks.PublicKey("")
		require.NoError(t, err)
		assert.Equal(t, active.PublicKey.N, pub.N)

		_, err = ks.PublicKey("missing")
		assert.Error(t, err)
	})

	t.Run("DuplicateKid", func(t *testing.T) {
		_, err := NewKeySet(NewKeyPair(newTestKey(t), "same"), NewKeyPair(newTestKey(t), "same"))
		assert.Error(t, err)
	})

	t.Run("JWKSHasNoPrivateFields", func(t *testing.T) {
		ks, err := NewKeySet(NewKeyPair(newTestKey(t), ""), NewKeyPair(newTestKey(t), ""))
		require.NoError(t, err)

		data, err := json.Marshal(ks.JWKS())
		require.NoError(t, err)

		var published struct {
			Keys []map[string]interface{} `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(data, &published))
		require.Len(t, published.Keys, 2)

		for _, key := range published.Keys {
			assert.Len(t, key, 6)
			for _, field := range []string{"kty", "e", "use", "kid", "alg", "n"} {
				assert.Contains(t, key, field)
			}
			for _, field := range []string{"d", "p", "q", "dp", "dq", "qi"} {
				assert.NotContains(t, key, field)
			}
			assert.Equal(t, "RSA", key["kty"])
			assert.Equal(t, "sig", key["use"])
			assert.Equal(t, "RS256", key["alg"])
			assert.Equal(t, "AQAB", key["e"])
		}
		assert.Equal(t, ks.SigningKey().Kid, published.Keys[0]["kid"])
	})
}

func TestThumbprint(t *testing.T) {
	key := newTestKey(t)
	first := Thumbprint(&key.PublicKey)
	assert.Equal(t, first, Thumbprint(&key.PublicKey))
	assert.Len(t, first, 43)
	assert.NotEqual(t, first, Thumbprint(&newTestKey(t).PublicKey))
}

func TestLoadOrGenerateKeyPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")

	generated, err := LoadOrGenerateKeyPair(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadOrGenerateKeyPair(path)
	require.NoError(t, err)
	assert.Equal(t, generated.Kid, loaded.Kid)
	assert.Equal(t, generated.PrivateKey.D, loaded.PrivateKey.D)
}

func TestLoadVerificationKey(t *testing.T) {
	key := newTestKey(t)
	dir := t.TempDir()

	pubPEM, err := EncodePublicKeyToPEM(&key.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, []byte(pubPEM), 0600))

	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, []byte(EncodePrivateKeyToPEM(key)), 0600))

	fromPub, err := LoadVerificationKey(pubPath)
	require.NoError(t, err)
	fromPriv, err := LoadVerificationKey(privPath)
	require.NoError(t, err)

	assert.Nil(t, fromPub.PrivateKey)
	assert.Nil(t, fromPriv.PrivateKey)
	assert.Equal(t, fromPub.Kid, fromPriv.Kid)

	_, err = LoadVerificationKey(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestDecodePrivateKeyFromPEM(t *testing.T) {
	_, err := DecodePrivateKeyFromPEM("not pem")
	assert.Error(t, err)

	key := newTestKey(t)
	decoded, err := DecodePrivateKeyFromPEM(EncodePrivateKeyToPEM(key))
	require.NoError(t, err)
	assert.Equal(t, key.N, decoded.N)
}

func TestJWKPublicKey(t *testing.T) {
	key := newTestKey(t)
	ks, err := NewKeySet(NewKeyPair(key, "kid-1"))
	require.NoError(t, err)

	set := ks.JWKS()
	jwk, ok := set.Find("kid-1")
	require.True(t, ok)

	pub, err := jwk.PublicKey()
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, ok = set.Find("other")
	assert.False(t, ok)

	_, err = JWK{Kty: "EC", N: jwk.N, E: jwk.E}.PublicKey()
	assert.Error(t, err)

	_, err = JWK{Kty: "RSA", N: "!!", E: jwk.E}.PublicKey()
	assert.Error(t, err)
}
