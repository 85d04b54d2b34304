package user

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/ezlogin/pkg/claims"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength   = 8
	DefaultSessionTTL   = 10 * time.Minute
	maxBcryptPasswordLen = 72
)

// Registration is the sign-up request
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
}

// Credential is an email and password login for a client
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
}

// Session is the outcome of a successful login
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

// UserService registers and authenticates users
type UserService struct {
	repo       Repository
	signer     tokengenerator.TokenSigner
	issuer     string
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
	// compared against when the email is unknown so both paths cost a bcrypt round
	dummyHash []byte
}

// Option configures a UserService
type Option func(*UserService)

// WithSessionTTL sets how long a session token is valid
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *UserService) {
		s.sessionTTL = ttl
	}
}

// WithBcryptCost sets the bcrypt cost for new password hashes
func WithBcryptCost(cost int) Option {
	return func(s *UserService) {
		s.bcryptCost = cost
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *UserService) {
		s.now = now
	}
}

// NewUserService creates a user service issuing session tokens with signer
func NewUserService(repo Repository, signer tokengenerator.TokenSigner, issuer string, opts ...Option) *UserService {
	s := &UserService{
		repo:       repo,
		signer:     signer,
		issuer:     issuer,
		sessionTTL: DefaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.bcryptCost)
	return s
}

// Register creates a user linked to the registering client. A duplicate
// email is a conflict.
func (s *UserService) Register(ctx context.Context, reg Registration) (*User, error) {
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, reg.Email); err == nil {
		return nil, errors.Conflict("Email already in use")
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, errors.Internal(err, "failed to look up user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.bcryptCost)
	if err != nil {
		return nil, errors.Internal(err, "failed to hash password")
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(reg.Email),
		PasswordHash: string(hash),
		Clients:      []string{reg.ClientID},
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, errors.Conflict("Email already in use")
		}
		return nil, errors.Internal(err, "failed to save user")
	}

	slog.Info("User registered", "user_id", u.ID, "client_id", reg.ClientID)
	return u, nil
}

// Authenticate checks an email and password and issues a session token for
// the client. Unknown emails and wrong passwords fail identically.
func (s *UserService) Authenticate(ctx context.Context, cred Credential) (*Session, error) {
	if strings.TrimSpace(cred.Email) == "" || cred.Password == "" {
		return nil, errors.Validation("Email and password are required")
	}
	if cred.ClientID == "" {
		return nil, errors.Validation("client_id is required",
			errors.Issue{Field: "client_id", Code: "required", Message: "client_id is required"})
	}

	u, err := s.repo.FindByEmail(ctx, cred.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(cred.Password))
			slog.Info("Login failed", "reason", "unknown_email")
			return nil, errors.InvalidCredentials()
		}
		return nil, errors.Internal(err, "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(cred.Password)); err != nil {
		slog.Info("Login failed", "user_id", u.ID, "reason", "password_mismatch")
		return nil, errors.InvalidCredentials()
	}

	if !u.HasClient(cred.ClientID) {
		if err := s.repo.LinkClient(ctx, u.ID, cred.ClientID); err != nil {
			return nil, errors.Internal(err, "failed to link client")
		}
		u.Clients = append(u.Clients, cred.ClientID)
	}

	now := s.now()
	sessionClaims := claims.NewSessionClaims(u.ID, cred.ClientID, s.issuer, now, s.sessionTTL)
	token, err := s.signer.Sign(sessionClaims)
	if err != nil {
		return nil, errors.Internal(err, "failed to sign session token")
	}

	slog.Info("User logged in", "user_id", u.ID, "client_id", cred.ClientID)
	return &Session{
		Token:     token,
		ExpiresAt: sessionClaims.ExpiresAt.Time,
		User:      u,
	}, nil
}

// GetUser loads a user by id
func (s *UserService) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, errors.NotFound("user", id)
		}
		return nil, errors.Internal(err, "failed to look up user")
	}
	return u, nil
}

func validateRegistration(reg Registration) error {
	var issues []errors.Issue
	if addr, err := mail.ParseAddress(reg.Email); err != nil || addr.Address != strings.TrimSpace(reg.Email) {
		issues = append(issues, errors.Issue{Field: "email", Code: "invalid_email", Message: "Invalid email"})
	}
	if len(reg.Password) < MinPasswordLength {
		issues = append(issues, errors.Issue{Field: "password", Code: "too_small", Message: "Password must contain at least 8 characters"})
	} else if len(reg.Password) > maxBcryptPasswordLen {
		issues = append(issues, errors.Issue{Field: "password", Code: "too_big", Message: "Password must contain at most 72 characters"})
	}
	if reg.ClientID == "" {
		issues = append(issues, errors.Issue{Field: "client_id", Code: "required", Message: "client_id is required"})
	}
	if len(issues) > 0 {
		return errors.Validation("Invalid registration", issues...)
	}
	return nil
}
