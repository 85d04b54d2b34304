package user

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/ezlogin/pkg/claims"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/jwks"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
	"golang.org/x/crypto/bcrypt"
)

const testIssuer = "https://ezlog.in"

func newTestService(t *testing.T, repo Repository, opts ...Option) (*UserService, *tokengenerator.RSATokenGenerator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := jwks.NewKeySet(jwks.NewKeyPair(key, ""))
	require.NoError(t, err)
	tokens := tokengenerator.NewRSATokenGenerator(keys, testIssuer)

	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewUserService(repo, tokens, testIssuer, opts...), tokens
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := NewInMemoryRepository()
		svc, _ := newTestService(t, repo)

		u, err := svc.Register(ctx, Registration{Email: "Jane@Example.com", Password: "password123", ClientID: "client-1"})
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, "jane@example.com", u.Email)
		assert.NotEqual(t, "password123", u.PasswordHash)
		assert.True(t, u.HasClient("client-1"))
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")))

		stored, err := repo.FindByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, stored.ID)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		svc, _ := newTestService(t, NewInMemoryRepository())

		_, err := svc.Register(ctx, Registration{Email: "jane@example.com", Password: "password123", ClientID: "client-1"})
		require.NoError(t, err)

		_, err = svc.Register(ctx, Registration{Email: "JANE@example.com", Password: "password456", ClientID: "client-2"})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindConflict))
		assert.Equal(t, "Email already in use", errors.As(err).Message)
	})

	tests := []struct {
		name   string
		reg    Registration
		fields []string
	}{
		{"bad email", Registration{Email: "not-an-email", Password: "password123", ClientID: "c"}, []string{"email"}},
		{"short password", Registration{Email: "a@b.co", Password: "short", ClientID: "c"}, []string{"password"}},
		{"missing client", Registration{Email: "a@b.co", Password: "password123"}, []string{"client_id"}},
		{"everything wrong", Registration{}, []string{"email", "password", "client_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, NewInMemoryRepository())
			_, err := svc.Register(ctx, tt.reg)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))

			var fields []string
			for _, issue := range errors.As(err).Issues {
				fields = append(fields, issue.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	repo := NewInMemoryRepository()
	svc, tokens := newTestService(t, repo, WithClock(func() time.Time { return now }))
	registered, err := svc.Register(ctx, Registration{Email: "jane@example.com", Password: "password123", ClientID: "client-1"})
	require.NoError(t, err)

	t.Run("IssuesSessionToken", func(t *testing.T) {
		session, err := svc.Authenticate(ctx, Credential{Email: "jane@example.com", Password: "password123", ClientID: "client-1"})
		require.NoError(t, err)
		assert.Equal(t, now.Add(DefaultSessionTTL).Unix(), session.ExpiresAt.Unix())

		var sc claims.SessionClaims
		require.NoError(t, tokens.Verify(session.Token, &sc, tokengenerator.Expectation{Audience: "client-1"}))
		assert.Equal(t, registered.ID, sc.Subject)
		require.NotNil(t, sc.AuthTime)
		assert.Equal(t, now.Unix(), *sc.AuthTime)
		assert.Equal(t, testIssuer, sc.Issuer)
	})

	t.Run("LinksNewClient", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, Credential{Email: "jane@example.com", Password: "password123", ClientID: "client-2"})
		require.NoError(t, err)

		u, err := repo.FindByID(ctx, registered.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"client-1", "client-2"}, u.Clients)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, Credential{Email: "jane@example.com", Password: "wrong-password", ClientID: "client-1"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidCredentials))
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, Credential{Email: "nobody@example.com", Password: "password123", ClientID: "client-1"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidCredentials))
		assert.Equal(t, "Invalid email or password", errors.As(err).Message)
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, Credential{Email: "", Password: "", ClientID: "client-1"})
		assert.True(t, errors.IsKind(err, errors.KindValidation))

		_, err = svc.Authenticate(ctx, Credential{Email: "jane@example.com", Password: "password123"})
		assert.True(t, errors.IsKind(err, errors.KindValidation))
	})
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, NewInMemoryRepository())

	_, err := svc.GetUser(ctx, "missing")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	u, err := svc.Register(ctx, Registration{Email: "jane@example.com", Password: "password123", ClientID: "client-1"})
	require.NoError(t, err)

	found, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, found.Email)
}
