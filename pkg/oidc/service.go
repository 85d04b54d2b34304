package oidc

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/ezlogin/pkg/claims"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/pkce"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
	"github.com/tendant/ezlogin/pkg/user"
)

const (
	DefaultIssuer   = "https://ezlog.in"
	DefaultLoginURL = "https://ezlog.in/login"

	// LoginSkew is subtracted from the current time when checking max_age
	LoginSkew = 5 * time.Second
)

// Stable reasons carried by invalid_grant errors from Exchange
const (
	ReasonCodeNotFound           = "code_not_found"
	ReasonCodeExpired            = "code_expired"
	ReasonStateMismatch          = "state_mismatch"
	ReasonVerifierMissing        = "verifier_missing"
	ReasonChallengeMethodMissing = "challenge_method_missing"
	ReasonPKCEFailed             = "pkce_failed"
	ReasonClientMismatch         = "client_mismatch"
	ReasonRedirectURIMismatch    = "redirect_uri_mismatch"
	ReasonUserNotFound           = "user_not_found"
	ReasonClientNotAuthorized    = "client_not_authorized"
)

// UserFinder loads users by id. user.Repository satisfies it.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*user.User, error)
}

// ClientRegistry checks clients against their registration
type ClientRegistry interface {
	ValidateRedirectURI(ctx context.Context, clientID, redirectURI string) error
	AuthenticateClient(ctx context.Context, clientID, clientSecret string) error
}

// Tokens signs issued tokens and verifies session tokens
type Tokens interface {
	tokengenerator.TokenSigner
	tokengenerator.TokenVerifier
}

// OutcomeKind says where an authorization request sends the user agent
type OutcomeKind int

const (
	OutcomeLogin OutcomeKind = iota
	OutcomeCode
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLogin:
		return "login"
	case OutcomeCode:
		return "code"
	default:
		return "error"
	}
}

// Outcome is the result of an authorization request. Location is always set.
type Outcome struct {
	Kind          OutcomeKind
	Location      *url.URL
	Authorization *Authorization
	Err           error
}

// ExchangeRequest is an authorization_code grant. ClientID and RedirectURI
// are checked against the authorization only when supplied.
type ExchangeRequest struct {
	Code         string
	State        *string
	CodeVerifier string
	ClientID     string
	RedirectURI  string
	ClientSecret string
}

// TokenResponse is the token endpoint success body
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// OIDCService runs the authorization code flow
type OIDCService struct {
	store          AuthorizationStore
	users          UserFinder
	tokens         Tokens
	clients        ClientRegistry
	metrics        *Metrics
	issuer         string
	loginURL       string
	codeTTL        time.Duration
	accessTokenTTL time.Duration
	now            func() time.Time
}

// Option is a function that configures an OIDCService
type Option func(*OIDCService)

// WithIssuer sets the iss claim of issued tokens
func WithIssuer(issuer string) Option {
	return func(s *OIDCService) {
		s.issuer = issuer
	}
}

// WithLoginURL sets the page users are sent to when they need to sign in
func WithLoginURL(loginURL string) Option {
	return func(s *OIDCService) {
		s.loginURL = loginURL
	}
}

// WithCodeExpiration sets the lifetime of authorization codes
func WithCodeExpiration(ttl time.Duration) Option {
	return func(s *OIDCService) {
		s.codeTTL = ttl
	}
}

// WithTokenExpiration sets the lifetime of access and ID tokens
func WithTokenExpiration(ttl time.Duration) Option {
	return func(s *OIDCService) {
		s.accessTokenTTL = ttl
	}
}

// WithClientRegistry enables redirect URI and client secret checks
func WithClientRegistry(clients ClientRegistry) Option {
	return func(s *OIDCService) {
		s.clients = clients
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *OIDCService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *OIDCService) {
		s.now = now
	}
}

// NewOIDCService creates a new OIDC service with the given options
func NewOIDCService(store AuthorizationStore, users UserFinder, tokens Tokens, opts ...Option) *OIDCService {
	s := &OIDCService{
		store:          store,
		users:          users,
		tokens:         tokens,
		issuer:         DefaultIssuer,
		loginURL:       DefaultLoginURL,
		codeTTL:        DefaultCodeTTL,
		accessTokenTTL: DefaultAccessTokenTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize answers an authentication request for the user holding
// sessionToken. Errors are returned only when there is nowhere safe to
// redirect, or when the authorization could not be stored.
func (s *OIDCService) Authorize(ctx context.Context, params url.Values, sessionToken string) (*Outcome, error) {
	target, err := ExtractRedirectURI(params)
	if err != nil {
		s.metrics.observeAuthorize("invalid_redirect")
		return nil, err
	}

	if s.clients != nil {
		if err := s.clients.ValidateRedirectURI(ctx, params.Get("client_id"), params.Get("redirect_uri")); err != nil {
			s.metrics.observeAuthorize("invalid_client")
			return nil, err
		}
	}

	req, err := ParseAuthorizationRequest(params)
	if err != nil {
		return s.errorOutcome(target, err), nil
	}

	if sessionToken == "" {
		return s.loginOutcome(req, "no_session")
	}

	var session claims.SessionClaims
	if err := s.tokens.Verify(sessionToken, &session, tokengenerator.Expectation{Audience: req.ClientID}); err != nil {
		slog.Debug("Session token rejected", "client_id", req.ClientID, "error", err)
		return s.loginOutcome(req, "invalid_session")
	}
	if !session.Complete() {
		return s.loginOutcome(req, "incomplete_session")
	}

	u, err := s.users.FindByID(ctx, session.Subject)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return s.loginOutcome(req, "unknown_user")
		}
		slog.Error("Failed to load user for authorization", "user_id", session.Subject, "error", err)
		return s.errorOutcome(target, errors.Internal(err, "failed to load user")), nil
	}

	if !u.HasClient(req.ClientID) {
		// no consent screen yet, the grant proceeds
		slog.Info("User has not consented to client", "user_id", u.ID, "client_id", req.ClientID)
	}

	now := s.now()
	if req.MaxAge != nil && session.LoginExpired(*req.MaxAge, now, LoginSkew) {
		return s.loginOutcome(req, "login_expired")
	}

	auth, err := NewAuthorization(req, u.ID, session.AuthTime, now, s.codeTTL)
	if err != nil {
		return nil, errors.Internal(err, "failed to create authorization")
	}
	if err := s.store.Save(ctx, auth); err != nil {
		slog.Error("Failed to save authorization", "client_id", auth.ClientID, "error", err)
		return nil, errors.Internal(err, "failed to save authorization")
	}

	slog.Info("Authorization code issued", "authorization_id", auth.ID, "user_id", u.ID, "client_id", auth.ClientID)
	s.metrics.observeAuthorize(OutcomeCode.String())
	return &Outcome{
		Kind:          OutcomeCode,
		Location:      codeRedirectURL(target, auth),
		Authorization: auth,
	}, nil
}

func (s *OIDCService) loginOutcome(req *AuthorizationRequest, reason string) (*Outcome, error) {
	location, err := url.Parse(s.loginURL)
	if err != nil {
		return nil, errors.Internal(err, "invalid login URL")
	}
	query := location.Query()
	for key, values := range req.Values() {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	location.RawQuery = query.Encode()

	slog.Debug("Redirecting to login", "client_id", req.ClientID, "reason", reason)
	s.metrics.observeAuthorize(OutcomeLogin.String())
	return &Outcome{Kind: OutcomeLogin, Location: location}, nil
}

func (s *OIDCService) errorOutcome(target *url.URL, err error) *Outcome {
	s.metrics.observeAuthorize(OutcomeError.String())
	return &Outcome{Kind: OutcomeError, Location: ErrorRedirectURL(target, err), Err: err}
}

func codeRedirectURL(target *url.URL, auth *Authorization) *url.URL {
	location := *target
	query := location.Query()
	query.Set("code", auth.Code)
	if auth.State != nil && *auth.State != "" {
		query.Set("state", *auth.State)
	}
	location.RawQuery = query.Encode()
	return &location
}

// ErrorRedirectURL appends err to target as error, error_description,
// error_status, error_count and, when there are field issues, errors.
func ErrorRedirectURL(target *url.URL, err error) *url.URL {
	e := errors.As(err)
	location := *target
	query := location.Query()
	query.Set("error", string(e.Code))
	query.Set("error_description", e.PublicMessage())
	query.Set("error_status", strconv.Itoa(e.HTTPStatusCode()))
	query.Set("error_count", strconv.Itoa(len(e.Issues)+1))
	if len(e.Issues) > 0 {
		query.Set("errors", strings.Join(e.IssueMessages(), ", "))
	}
	location.RawQuery = query.Encode()
	return &location
}

// Exchange redeems an authorization code for an access token and ID token.
// The code is consumed before any other check, so it can be tried only once.
func (s *OIDCService) Exchange(ctx context.Context, req ExchangeRequest) (resp *TokenResponse, err error) {
	started := time.Now()
	defer func() {
		s.metrics.observeExchange(exchangeResult(err), started)
	}()

	if req.Code == "" {
		return nil, errors.Validation("code is required",
			errors.Issue{Field: "code", Code: "required", Message: "code is required"})
	}

	if s.clients != nil && req.ClientSecret != "" {
		if err := s.clients.AuthenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
			return nil, err
		}
	}

	auth, err := s.store.Consume(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrAuthorizationNotFound) {
			return nil, errors.Grant(ReasonCodeNotFound, "Invalid authorization code")
		}
		return nil, errors.Internal(err, "failed to load authorization")
	}

	now := s.now()
	if err := checkGrant(auth, req, now); err != nil {
		slog.Info("Token exchange rejected", "authorization_id", auth.ID, "reason", errors.ReasonOf(err))
		return nil, err
	}

	u, err := s.users.FindByID(ctx, auth.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, errors.Grant(ReasonUserNotFound, "User may have been deleted.")
		}
		return nil, errors.Internal(err, "failed to load user")
	}
	if !u.HasClient(auth.ClientID) {
		return nil, errors.Grant(ReasonClientNotAuthorized,
			"User is not authorized for this client. They may have withdrawn consent.")
	}

	resp, err = s.issueTokens(auth, u, now)
	if err != nil {
		return nil, err
	}
	slog.Info("Tokens issued", "authorization_id", auth.ID, "user_id", u.ID, "client_id", auth.ClientID)
	return resp, nil
}

func checkGrant(auth *Authorization, req ExchangeRequest, now time.Time) error {
	if auth.Expired(now) {
		return errors.Grant(ReasonCodeExpired, "Authorization code has expired")
	}
	if auth.State != nil && (req.State == nil || *req.State != *auth.State) {
		return errors.Grant(ReasonStateMismatch, "Invalid state")
	}
	if auth.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return errors.Grant(ReasonVerifierMissing, "Invalid code verifier")
		}
		if auth.CodeChallengeMethod == "" {
			return errors.Grant(ReasonChallengeMethodMissing, "Invalid code challenge method")
		}
		if !pkce.Validate(auth.CodeChallengeMethod, req.CodeVerifier, auth.CodeChallenge) {
			return errors.Grant(ReasonPKCEFailed, "Code challenge failed")
		}
	}
	if req.ClientID != "" && req.ClientID != auth.ClientID {
		return errors.Grant(ReasonClientMismatch, "Client does not match authorization code")
	}
	if req.RedirectURI != "" && req.RedirectURI != auth.RedirectURI {
		return errors.Grant(ReasonRedirectURIMismatch, "Redirect URI does not match authorization request")
	}
	return nil
}

func (s *OIDCService) issueTokens(auth *Authorization, u *user.User, now time.Time) (*TokenResponse, error) {
	accessClaims, err := claims.BuildAccessTokenClaims(claims.AccessTokenInput{
		Subject:  u.ID,
		ClientID: auth.ClientID,
		Issuer:   s.issuer,
		Scope:    auth.Scope,
		TokenID:  uuid.NewString(),
		IssuedAt: now,
		TTL:      s.accessTokenTTL,
	})
	if err != nil {
		return nil, errors.Internal(err, "failed to build access token")
	}
	accessToken, err := s.tokens.Sign(accessClaims)
	if err != nil {
		return nil, errors.Internal(err, "failed to sign access token")
	}

	base := u.Claims()
	base.Audience = auth.ClientID
	base.Issuer = s.issuer
	base.IssuedAt = now.Unix()
	base.ExpiresAt = now.Add(s.accessTokenTTL).Unix()
	base.AuthTime = auth.AuthTime
	base.Nonce = auth.Nonce
	base.AtHash = claims.AccessTokenHash(accessToken)

	idClaims, err := claims.BuildIDTokenClaims(base, auth.Scopes())
	if err != nil {
		return nil, errors.Internal(err, "failed to build ID token")
	}
	idToken, err := s.tokens.Sign(idClaims)
	if err != nil {
		return nil, errors.Internal(err, "failed to sign ID token")
	}

	return &TokenResponse{
		AccessToken: accessToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessTokenTTL.Seconds()),
		Scope:       auth.Scope,
	}, nil
}

// UserInfo returns the claims of subject visible under scope
func (s *OIDCService) UserInfo(ctx context.Context, subject, scope string) (jwt.MapClaims, error) {
	u, err := s.users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, errors.Authentication("User not found", err)
		}
		return nil, errors.Internal(err, "failed to load user")
	}

	info := claims.Scope(u.Claims().Map(), claims.ParseScope(scope))
	info["sub"] = u.ID
	return info, nil
}

func exchangeResult(err error) string {
	if err == nil {
		return "success"
	}
	if reason := errors.ReasonOf(err); reason != "" {
		return reason
	}
	return errors.KindOf(err).String()
}
