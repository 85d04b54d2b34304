package oauth2client

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrClientNameTaken = errors.New("client name already in use")
)

// OAuth2ClientRepository defines data access for registered clients
type OAuth2ClientRepository interface {
	// GetClient returns ErrClientNotFound for an unknown client id
	GetClient(ctx context.Context, clientID string) (*OAuth2Client, error)

	// CreateClient stores a new client, ErrClientNameTaken when the name is in use
	CreateClient(ctx context.Context, client *OAuth2Client) error

	// TakenNames returns the subset of names already registered
	TakenNames(ctx context.Context, names []string) ([]string, error)
}

// InMemoryOAuth2ClientRepository implements OAuth2ClientRepository using in-memory storage
type InMemoryOAuth2ClientRepository struct {
	clients map[string]*OAuth2Client
	names   map[string]string
	mutex   sync.RWMutex
}

// NewInMemoryOAuth2ClientRepository creates an empty in-memory client repository
func NewInMemoryOAuth2ClientRepository() *InMemoryOAuth2ClientRepository {
	return &InMemoryOAuth2ClientRepository{
		clients: make(map[string]*OAuth2Client),
		names:   make(map[string]string),
	}
}

func (r *InMemoryOAuth2ClientRepository) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, exists := r.clients[clientID]
	if !exists {
		return nil, ErrClientNotFound
	}
	return client.clone(), nil
}

func (r *InMemoryOAuth2ClientRepository) CreateClient(ctx context.Context, client *OAuth2Client) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, taken := r.names[client.ClientName]; taken {
		return ErrClientNameTaken
	}
	r.clients[client.ClientID] = client.clone()
	r.names[client.ClientName] = client.ClientID
	return nil
}

func (r *InMemoryOAuth2ClientRepository) TakenNames(ctx context.Context, names []string) ([]string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var taken []string
	for _, name := range names {
		if _, ok := r.names[name]; ok && !slices.Contains(taken, name) {
			taken = append(taken, name)
		}
	}
	return taken, nil
}
