package user

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already in use")
)

// Repository defines data access for users
type Repository interface {
	// FindByID returns ErrUserNotFound when no user has id
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail returns ErrUserNotFound when no user has email
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create stores a new user, ErrEmailTaken on a duplicate email
	Create(ctx context.Context, user *User) error

	// LinkClient records that the user signed in to clientID. Linking twice is a no-op.
	LinkClient(ctx context.Context, userID, clientID string) error
}

// NormalizeEmail lower-cases and trims an email for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// InMemoryRepository implements Repository with in-memory maps
type InMemoryRepository struct {
	mutex   sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
}

// NewInMemoryRepository creates a new in-memory user repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (r *InMemoryRepository) FindByID(ctx context.Context, id string) (*User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

func (r *InMemoryRepository) Create(ctx context.Context, u *User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	email := NormalizeEmail(u.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrEmailTaken
	}
	stored := u.Clone()
	stored.Email = email
	r.users[u.ID] = stored
	r.byEmail[email] = u.ID
	return nil
}

func (r *InMemoryRepository) LinkClient(ctx context.Context, userID, clientID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if u.HasClient(clientID) {
		return nil
	}
	u.Clients = append(u.Clients, clientID)
	now := time.Now().UTC()
	u.UpdatedAt = &now
	return nil
}
