package oidc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/ezlogin/pkg/errors"
)

func newTestAuthorization(t *testing.T, now time.Time) *Authorization {
	t.Helper()
	req, err := ParseAuthorizationRequest(authParams("code_challenge", "challenge", "code_challenge_method", "S256"))
	require.NoError(t, err)
	authTime := now.Add(-time.Minute).Unix()
	auth, err := NewAuthorization(req, "8f14e45f-ceea-467f-a9f5-6c1f8e1f8e1f", &authTime, now, DefaultCodeTTL)
	require.NoError(t, err)
	return auth
}

// testAuthorizationStore runs the behaviour every AuthorizationStore shares
func testAuthorizationStore(t *testing.T, store AuthorizationStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("SaveAndConsume", func(t *testing.T) {
		auth := newTestAuthorization(t, now)
		require.NoError(t, store.Save(ctx, auth))

		got, err := store.Consume(ctx, auth.Code)
		require.NoError(t, err)
		assert.Equal(t, auth.ID, got.ID)
		assert.Equal(t, auth.UserID, got.UserID)
		assert.Equal(t, auth.ClientID, got.ClientID)
		assert.Equal(t, auth.RedirectURI, got.RedirectURI)
		assert.Equal(t, auth.Scope, got.Scope)
		assert.Equal(t, auth.Nonce, got.Nonce)
		assert.Equal(t, auth.State, got.State)
		assert.Equal(t, auth.CodeChallenge, got.CodeChallenge)
		assert.Equal(t, auth.CodeChallengeMethod, got.CodeChallengeMethod)
		assert.Equal(t, auth.AuthTime, got.AuthTime)
		assert.True(t, auth.ExpiresAt.Equal(got.ExpiresAt))
		assert.True(t, auth.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("ConsumeTwice", func(t *testing.T) {
		auth := newTestAuthorization(t, now)
		require.NoError(t, store.Save(ctx, auth))

		_, err := store.Consume(ctx, auth.Code)
		require.NoError(t, err)
		_, err = store.Consume(ctx, auth.Code)
		assert.ErrorIs(t, err, ErrAuthorizationNotFound)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		_, err := store.Consume(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrAuthorizationNotFound)
	})

	t.Run("NilState", func(t *testing.T) {
		auth := newTestAuthorization(t, now)
		auth.State = nil
		auth.AuthTime = nil
		require.NoError(t, store.Save(ctx, auth))

		got, err := store.Consume(ctx, auth.Code)
		require.NoError(t, err)
		assert.Nil(t, got.State)
		assert.Nil(t, got.AuthTime)
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		auth := newTestAuthorization(t, now)
		require.NoError(t, store.Save(ctx, auth))

		dup := *auth
		dup.ID = "1f0e3dad-9990-4434-9b1e-0f4d6ac8bd2e"
		assert.ErrorIs(t, store.Save(ctx, &dup), ErrDuplicateCode)
		_, err := store.Consume(ctx, auth.Code)
		require.NoError(t, err)
	})

	t.Run("ConcurrentConsume", func(t *testing.T) {
		auth := newTestAuthorization(t, now)
		require.NoError(t, store.Save(ctx, auth))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Consume(ctx, auth.Code); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})
}

func TestInMemoryAuthorizationStore(t *testing.T) {
	testAuthorizationStore(t, NewInMemoryAuthorizationStore())

	t.Run("DeleteExpired", func(t *testing.T) {
		store := NewInMemoryAuthorizationStore()
		now := time.Now()
		old := newTestAuthorization(t, now.Add(-10*time.Minute))
		fresh := newTestAuthorization(t, now)
		require.NoError(t, store.Save(context.Background(), old))
		require.NoError(t, store.Save(context.Background(), fresh))

		assert.Equal(t, 1, store.DeleteExpired(now))
		assert.Equal(t, 1, store.Len())
		_, err := store.Consume(context.Background(), fresh.Code)
		assert.NoError(t, err)
	})

	t.Run("RunJanitorStops", func(t *testing.T) {
		store := NewInMemoryAuthorizationStore()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			store.RunJanitor(ctx, time.Millisecond)
			close(done)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("janitor did not stop")
		}
	})
}

func TestRedisAuthorizationStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisAuthorizationStore(client, "test:authorization:")
	testAuthorizationStore(t, store)

	t.Run("KeyCarriesTTL", func(t *testing.T) {
		auth := newTestAuthorization(t, time.Now())
		require.NoError(t, store.Save(context.Background(), auth))

		key := "test:authorization:" + auth.Code
		assert.True(t, mr.Exists(key))
		ttl := mr.TTL(key)
		assert.Greater(t, ttl, DefaultCodeTTL)
		assert.LessOrEqual(t, ttl, DefaultCodeTTL+ExpiredRetention)

		mr.FastForward(DefaultCodeTTL + ExpiredRetention + time.Second)
		_, err := store.Consume(context.Background(), auth.Code)
		assert.ErrorIs(t, err, ErrAuthorizationNotFound)
	})

	t.Run("ExpiredCodeReportsExpired", func(t *testing.T) {
		f := newFixture(t)
		service := NewOIDCService(store, f.users, f.tokens,
			WithIssuer(testIssuer),
			WithLoginURL("https://ezlog.in/login"),
			WithClock(func() time.Time { return f.now }),
		)
		outcome, err := service.Authorize(context.Background(), authParams(), f.session(t, "client-1", f.now))
		require.NoError(t, err)
		require.Equal(t, OutcomeCode, outcome.Kind)

		f.now = f.now.Add(DefaultCodeTTL + time.Second)
		mr.FastForward(DefaultCodeTTL + time.Second)

		state := "af0ifjsldkj"
		_, err = service.Exchange(context.Background(), ExchangeRequest{Code: outcome.Authorization.Code, State: &state})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidGrant))
		assert.Equal(t, ReasonCodeExpired, errors.ReasonOf(err))
	})

	t.Run("DefaultPrefix", func(t *testing.T) {
		s := NewRedisAuthorizationStore(client, "")
		auth := newTestAuthorization(t, time.Now())
		require.NoError(t, s.Save(context.Background(), auth))
		assert.True(t, mr.Exists(DefaultRedisKeyPrefix+auth.Code))
	})

	t.Run("Unavailable", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer broken.Close()
		s := NewRedisAuthorizationStore(broken, "")

		_, err := s.Consume(context.Background(), "code")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAuthorizationNotFound)
	})
}
