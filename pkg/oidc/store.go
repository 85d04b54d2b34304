package oidc

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrDuplicateCode         = errors.New("authorization code already exists")
)

// AuthorizationStore persists authorizations between the authorize and
// token endpoints.
type AuthorizationStore interface {
	// Save stores a new authorization, ErrDuplicateCode if the code is in use
	Save(ctx context.Context, auth *Authorization) error

	// Consume removes and returns the authorization for code in one atomic
	// step. A second call for the same code returns ErrAuthorizationNotFound.
	Consume(ctx context.Context, code string) (*Authorization, error)
}

// InMemoryAuthorizationStore implements AuthorizationStore with a map
type InMemoryAuthorizationStore struct {
	mutex  sync.Mutex
	byCode map[string]*Authorization
}

// NewInMemoryAuthorizationStore creates an empty in-memory store
func NewInMemoryAuthorizationStore() *InMemoryAuthorizationStore {
	return &InMemoryAuthorizationStore{
		byCode: make(map[string]*Authorization),
	}
}

func (s *InMemoryAuthorizationStore) Save(ctx context.Context, auth *Authorization) error {
	if auth == nil || auth.Code == "" {
		return errors.New("authorization code cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byCode[auth.Code]; exists {
		return ErrDuplicateCode
	}
	stored := *auth
	s.byCode[auth.Code] = &stored
	return nil
}

func (s *InMemoryAuthorizationStore) Consume(ctx context.Context, code string) (*Authorization, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	auth, ok := s.byCode[code]
	if !ok {
		return nil, ErrAuthorizationNotFound
	}
	delete(s.byCode, code)
	return auth, nil
}

// DeleteExpired drops every authorization that expired before now and
// returns how many were removed.
func (s *InMemoryAuthorizationStore) DeleteExpired(now time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for code, auth := range s.byCode {
		if auth.Expired(now) {
			delete(s.byCode, code)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored authorizations
func (s *InMemoryAuthorizationStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.byCode)
}

// RunJanitor sweeps expired authorizations every interval until ctx is done
func (s *InMemoryAuthorizationStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.DeleteExpired(now)
		}
	}
}
