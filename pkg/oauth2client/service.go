package oauth2client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/ezlogin/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const clientSecretBytes = 32

// Registration is a client registration request
type Registration struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

// RegisteredClient carries the plaintext secret, available only at registration
type RegisteredClient struct {
	*OAuth2Client
	ClientSecret string
}

// NameAvailability reports whether a client name can be registered
type NameAvailability struct {
	IsAvailable    bool     `json:"isAvailable"`
	IsNotAvailable bool     `json:"isNotAvailable"`
	Value          string   `json:"value"`
	Alternatives   []string `json:"alternatives,omitempty"`
}

// ClientService registers and authenticates OIDC clients
type ClientService struct {
	repository OAuth2ClientRepository
	bcryptCost int
	now        func() time.Time
}

type Option func(*ClientService)

func WithBcryptCost(cost int) Option {
	return func(s *ClientService) {
		s.bcryptCost = cost
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ClientService) {
		s.now = now
	}
}

// NewClientService creates a new client service with the provided repository
func NewClientService(repository OAuth2ClientRepository, opts ...Option) *ClientService {
	s := &ClientService{
		repository: repository,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and stores a new client with a fresh id and secret
func (s *ClientService) Register(ctx context.Context, reg Registration) (*RegisteredClient, error) {
	var issues []errors.Issue
	if issue := ValidateName(reg.ClientName); issue != nil {
		issues = append(issues, *issue)
	}
	if len(reg.RedirectURIs) == 0 {
		issues = append(issues, errors.Issue{Field: "redirect_uris", Code: "required", Message: "Please provide at least one redirect."})
	}
	for _, uri := range reg.RedirectURIs {
		if issue := ValidateRedirectURIFormat(uri); issue != nil {
			issues = append(issues, *issue)
		}
	}
	if len(issues) > 0 {
		return nil, errors.Validation("Invalid client registration", issues...)
	}

	secret, err := GenerateClientSecret()
	if err != nil {
		return nil, errors.Internal(err, "failed to generate client secret")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return nil, errors.Internal(err, "failed to hash client secret")
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	client := &OAuth2Client{
		ClientID:         uuid.NewString(),
		ClientSecretHash: string(hash),
		ClientName:       NormalizeName(reg.ClientName),
		RedirectURIs:     append([]string(nil), reg.RedirectURIs...),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repository.CreateClient(ctx, client); err != nil {
		if errors.Is(err, ErrClientNameTaken) {
			return nil, errors.Conflict(fmt.Sprintf("The name %q is not available.", client.ClientName))
		}
		return nil, errors.Internal(err, "failed to save client")
	}

	slog.Info("OIDC client registered", "client_id", client.ClientID, "client_name", client.ClientName)
	return &RegisteredClient{OAuth2Client: client, ClientSecret: secret}, nil
}

// GetClient retrieves a client by client ID
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, errors.NotFound("client", clientID)
		}
		return nil, errors.Internal(err, "failed to look up client")
	}
	return client, nil
}

// CheckName reports whether name is free. With suggest set and the name
// taken, free alternatives derived from it are included.
func (s *ClientService) CheckName(ctx context.Context, name string, suggest bool) (*NameAvailability, error) {
	if issue := ValidateName(name); issue != nil {
		return nil, errors.Validation(issue.Message, *issue)
	}
	name = NormalizeName(name)

	candidates := []string{name}
	if suggest {
		candidates = append(candidates, DeriveAlternatives(name)...)
	}
	taken, err := s.repository.TakenNames(ctx, candidates)
	if err != nil {
		return nil, errors.Internal(err, "failed to check client name")
	}
	isTaken := make(map[string]bool, len(taken))
	for _, t := range taken {
		isTaken[t] = true
	}

	result := &NameAvailability{
		IsAvailable:    !isTaken[name],
		IsNotAvailable: isTaken[name],
		Value:          name,
	}
	if suggest && isTaken[name] {
		for _, alt := range candidates[1:] {
			if !isTaken[alt] && ValidateName(alt) == nil {
				result.Alternatives = append(result.Alternatives, alt)
			}
		}
	}
	return result, nil
}

// DeriveAlternatives proposes names close to name, without duplicates
func DeriveAlternatives(name string) []string {
	var alts []string
	add := func(alt string) bool {
		if alt == name || slices.Contains(alts, alt) {
			return false
		}
		alts = append(alts, alt)
		return true
	}

	if !strings.HasPrefix(strings.ToLower(name), "the") {
		first, size := utf8.DecodeRuneInString(name)
		add("the" + string(unicode.ToUpper(first)) + name[size:])
		add("the-" + name)
	}
	if !strings.HasSuffix(name, "1") {
		add(name + "1")
	}
	if !strings.HasSuffix(name, "2") {
		add(name + "2")
	}
	add(name + "Too")
	for added, tries := 0, 0; added < 2 && tries < 10; tries++ {
		if add(name + randomSuffix()) {
			added++
		}
	}
	return alts
}

func randomSuffix() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "0"
	}
	return n.String()
}

// ValidateRedirectURI checks that clientID is registered with redirectURI
func (s *ClientService) ValidateRedirectURI(ctx context.Context, clientID, redirectURI string) error {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return errors.New(errors.KindValidation, errors.ErrCodeInvalidClient, "Unknown client").WithDetail("client_id", clientID)
		}
		return errors.Internal(err, "failed to look up client")
	}
	if !client.ValidateRedirectURI(redirectURI) {
		return errors.Validation("redirect_uri is not registered for this client",
			errors.Issue{Field: "redirect_uri", Code: "unregistered_redirect_uri", Message: "redirect_uri is not registered for this client"})
	}
	return nil
}

// AuthenticateClient checks a client secret. Unknown clients and wrong secrets fail identically.
func (s *ClientService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return errors.InvalidClient("Client authentication failed")
		}
		return errors.Internal(err, "failed to look up client")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)); err != nil {
		slog.Info("Client authentication failed", "client_id", clientID)
		return errors.InvalidClient("Client authentication failed")
	}
	return nil
}

// GenerateClientSecret returns 32 random bytes, base64url encoded
func GenerateClientSecret() (string, error) {
	b := make([]byte, clientSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
