package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedRepository memoizes FindByID lookups of another Repository.
// Writes through it invalidate the cached entry.
type CachedRepository struct {
	next  Repository
	cache *cache.Cache
}

// NewCachedRepository wraps next with a cache holding users for ttl
func NewCachedRepository(next Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (r *CachedRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached.(*User).Clone(), nil
	}

	u, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(id, u.Clone())
	return u, nil
}

func (r *CachedRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.next.FindByEmail(ctx, email)
}

func (r *CachedRepository) Create(ctx context.Context, u *User) error {
	if err := r.next.Create(ctx, u); err != nil {
		return err
	}
	r.cache.Delete(u.ID)
	return nil
}

func (r *CachedRepository) LinkClient(ctx context.Context, userID, clientID string) error {
	err := r.next.LinkClient(ctx, userID, clientID)
	r.cache.Delete(userID)
	if err != nil {
		return err
	}
	slog.Debug("Invalidated cached user", "user_id", userID)
	return nil
}
