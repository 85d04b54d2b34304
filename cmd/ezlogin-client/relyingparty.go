package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/tendant/ezlogin/pkg/common"
	"github.com/tendant/ezlogin/pkg/jwks"
	"github.com/tendant/ezlogin/pkg/wellknown"
	"golang.org/x/oauth2"
)

const (
	pendingLoginTTL   = 10 * time.Minute
	defaultSessionTTL = 20 * time.Minute
	sessionCookieName = "rp_session"
)

// ClientConfig is the registration of this relying party at the provider
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type pendingLogin struct {
	verifier string
	nonce    string
}

// Session is a signed-in user of the relying party
type Session struct {
	Subject   string                 `json:"sub"`
	UserInfo  map[string]interface{} `json:"userinfo"`
	ExpiresAt time.Time              `json:"expires_at"`
	idToken   string
}

// RelyingParty runs the authorization code flow with PKCE against an ezlogin provider
type RelyingParty struct {
	oauth      *oauth2.Config
	metadata   *wellknown.OpenIDProviderMetadata
	keys       *jwks.JWKS
	httpClient *http.Client
	pending    *cache.Cache
	sessions   *cache.Cache
	now        func() time.Time
}

// Discover fetches the provider metadata and its published key set
func Discover(ctx context.Context, client *http.Client, discoveryURL string) (*wellknown.OpenIDProviderMetadata, *jwks.JWKS, error) {
	var metadata wellknown.OpenIDProviderMetadata
	if err := getJSON(ctx, client, discoveryURL, &metadata); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch provider metadata: %w", err)
	}

	var keys jwks.JWKS
	if err := getJSON(ctx, client, metadata.JwksURI, &keys); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch provider keys: %w", err)
	}
	return &metadata, &keys, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return render.DecodeJSON(resp.Body, v)
}

// NewRelyingParty creates a relying party for the discovered provider
func NewRelyingParty(config ClientConfig, metadata *wellknown.OpenIDProviderMetadata, keys *jwks.JWKS, httpClient *http.Client) *RelyingParty {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RelyingParty{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   metadata.AuthorizationEndpoint,
				TokenURL:  metadata.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		metadata:   metadata,
		keys:       keys,
		httpClient: httpClient,
		pending:    cache.New(pendingLoginTTL, pendingLoginTTL),
		sessions:   cache.New(defaultSessionTTL, time.Minute),
		now:        time.Now,
	}
}

func (rp *RelyingParty) Routes(r chi.Router) {
	r.Get("/login", rp.Login)
	r.Get("/callback", rp.Callback)
	r.Get("/me", rp.Me)
	r.Post("/logout", rp.Logout)
}

// Login starts a new authorization request
func (rp *RelyingParty) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	login := pendingLogin{
		verifier: oauth2.GenerateVerifier(),
		nonce:    uuid.NewString(),
	}
	rp.pending.Set(state, login, cache.DefaultExpiration)

	target := rp.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(login.verifier),
		oauth2.SetAuthURLParam("nonce", login.nonce),
	)
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback completes the flow: exchanges the code, checks the ID token and
// loads the user's claims
func (rp *RelyingParty) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		slog.Info("Authorization failed", "error", errCode, "description", query.Get("error_description"))
		renderError(w, r, http.StatusBadRequest, errCode, query.Get("error_description"))
		return
	}

	state := query.Get("state")
	cached, ok := rp.pending.Get(state)
	if state == "" || !ok {
		renderError(w, r, http.StatusBadRequest, "invalid_request", "Unknown or expired state")
		return
	}
	rp.pending.Delete(state)
	login := cached.(pendingLogin)

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, rp.httpClient)
	token, err := rp.oauth.Exchange(ctx, query.Get("code"),
		oauth2.VerifierOption(login.verifier),
		oauth2.SetAuthURLParam("state", state),
	)
	if err != nil {
		slog.Error("Failed to exchange authorization code", "err", err)
		if re, ok := err.(*oauth2.RetrieveError); ok && re.ErrorCode != "" {
			renderError(w, r, http.StatusBadGateway, re.ErrorCode, re.ErrorDescription)
			return
		}
		renderError(w, r, http.StatusBadGateway, "server_error", "Token exchange failed")
		return
	}

	idToken, _ := token.Extra("id_token").(string)
	subject, err := rp.verifyIDToken(idToken, login.nonce)
	if err != nil {
		slog.Error("Rejected ID token", "err", err)
		renderError(w, r, http.StatusBadGateway, "invalid_token", "ID token rejected")
		return
	}

	var userInfo map[string]interface{}
	if err := getJSON(ctx, rp.oauth.Client(ctx, token), rp.metadata.UserinfoEndpoint, &userInfo); err != nil {
		slog.Error("Failed to get user info", "sub", subject, "err", err)
		renderError(w, r, http.StatusBadGateway, "server_error", "Failed to load user info")
		return
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = rp.now().Add(defaultSessionTTL)
	}
	session := &Session{
		Subject:   subject,
		UserInfo:  userInfo,
		ExpiresAt: expiresAt,
		idToken:   idToken,
	}
	sessionID := uuid.NewString()
	rp.sessions.Set(sessionID, session, expiresAt.Sub(rp.now()))

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("User signed in", "sub", subject)
	render.JSON(w, r, session)
}

// Me returns the signed-in user's claims
func (rp *RelyingParty) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := rp.session(r)
	if !ok {
		renderError(w, r, http.StatusUnauthorized, "login_required", "Not signed in")
		return
	}
	render.JSON(w, r, session)
}

func (rp *RelyingParty) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		rp.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (rp *RelyingParty) session(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	cached, ok := rp.sessions.Get(cookie.Value)
	if !ok {
		return nil, false
	}
	return cached.(*Session), true
}

// verifyIDToken checks signature, issuer, audience, expiry and nonce, and
// returns the subject
func (rp *RelyingParty) verifyIDToken(idToken, nonce string) (string, error) {
	if idToken == "" {
		return "", fmt.Errorf("token response carries no id_token")
	}

	idClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(idToken, idClaims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, ok := rp.keys.Find(kid)
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key.PublicKey()
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(rp.metadata.Issuer),
		jwt.WithAudience(rp.oauth.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(rp.now),
	)
	if err != nil {
		return "", err
	}

	if got, _ := idClaims["nonce"].(string); got != nonce {
		return "", fmt.Errorf("nonce mismatch")
	}
	return idClaims.GetSubject()
}

func renderError(w http.ResponseWriter, r *http.Request, status int, code, description string) {
	render.Status(r, status)
	render.JSON(w, r, common.OAuthErrorResponse{Error: code, ErrorDescription: description})
}
