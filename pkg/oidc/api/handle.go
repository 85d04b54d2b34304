package api

import (
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/tendant/ezlogin/pkg/common"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/jwks"
	"github.com/tendant/ezlogin/pkg/oidc"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	DefaultSessionCookieName   = "session"
)

// KeySet publishes verification keys and exposes the active signing key
type KeySet interface {
	JWKS() *jwks.JWKS
	SigningKey() *jwks.KeyPair
}

// TokenRequest is the token endpoint body, accepted as a form or as JSON
type TokenRequest struct {
	GrantType    string  `json:"grant_type"`
	Code         string  `json:"code"`
	RedirectURI  string  `json:"redirect_uri"`
	ClientID     string  `json:"client_id"`
	ClientSecret string  `json:"client_secret"`
	CodeVerifier string  `json:"code_verifier"`
	State        *string `json:"state"`
}

// Handle serves the authorization, token, certs and userinfo endpoints
type Handle struct {
	service    *oidc.OIDCService
	keys       KeySet
	jwtAuth    *jwtauth.JWTAuth
	cookieName string
	issuer     string
	tokenMW    []func(http.Handler) http.Handler
}

type Option func(*Handle)

// WithSessionCookieName sets the cookie the session token is read from
func WithSessionCookieName(name string) Option {
	return func(h *Handle) {
		h.cookieName = name
	}
}

// WithIssuer makes userinfo reject access tokens from any other issuer
func WithIssuer(issuer string) Option {
	return func(h *Handle) {
		h.issuer = issuer
	}
}

// WithTokenMiddlewares wraps only the token endpoint, e.g. with a rate limiter
func WithTokenMiddlewares(middlewares ...func(http.Handler) http.Handler) Option {
	return func(h *Handle) {
		h.tokenMW = append(h.tokenMW, middlewares...)
	}
}

// NewHandle creates a new OIDC API handle
func NewHandle(service *oidc.OIDCService, keys KeySet, opts ...Option) *Handle {
	active := keys.SigningKey()
	h := &Handle{
		service:    service,
		keys:       keys,
		jwtAuth:    jwtauth.New("RS256", active.PrivateKey, active.PublicKey),
		cookieName: DefaultSessionCookieName,
		issuer:     oidc.DefaultIssuer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the OIDC endpoints on r
func (h *Handle) Routes(r chi.Router) {
	r.Get("/authorization", h.Authorize)
	r.Post("/authorization", h.Authorize)
	r.With(h.tokenMW...).Post("/v1/token", h.Token)
	r.Get("/v1/certs", h.Certs)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verify(h.jwtAuth, jwtauth.TokenFromHeader))
		r.Use(jwtauth.Authenticator(h.jwtAuth))
		r.Get("/v1/userinfo", h.UserInfo)
	})
}

// Authorize handles GET and POST /authorization. Every outcome is a 307
// redirect unless the request carries no usable redirect_uri.
func (h *Handle) Authorize(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			common.RenderError(w, r, errors.Validation("Invalid request body"))
			return
		}
		params = r.PostForm
	}

	sessionToken := tokengenerator.TokenFromCookie(h.cookieName)(r)
	outcome, err := h.service.Authorize(r.Context(), params, sessionToken)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}

	if outcome.Kind == oidc.OutcomeError {
		slog.Info("Authorization request rejected", "client_id", params.Get("client_id"), "err", outcome.Err)
	}
	http.Redirect(w, r, outcome.Location.String(), http.StatusTemporaryRedirect)
}

// Token handles POST /v1/token
func (h *Handle) Token(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTokenRequest(r)
	if err != nil {
		common.RenderOAuthError(w, r, err)
		return
	}

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
	case "":
		common.RenderOAuthError(w, r, errors.Validation("grant_type is required",
			errors.Issue{Field: "grant_type", Code: "required", Message: "grant_type is required"}))
		return
	default:
		common.RenderOAuthError(w, r, errors.UnsupportedGrantType(req.GrantType))
		return
	}

	resp, err := h.service.Exchange(r.Context(), oidc.ExchangeRequest{
		Code:         req.Code,
		State:        req.State,
		CodeVerifier: req.CodeVerifier,
		ClientID:     req.ClientID,
		RedirectURI:  req.RedirectURI,
		ClientSecret: req.ClientSecret,
	})
	if err != nil {
		common.RenderOAuthError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	render.JSON(w, r, resp)
}

func decodeTokenRequest(r *http.Request) (*TokenRequest, error) {
	var req TokenRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			return nil, errors.Validation("Invalid request body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, errors.Validation("Invalid request body")
		}
		req = tokenRequestFromForm(r.PostForm)
	}

	if id, secret, ok := r.BasicAuth(); ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
		if req.ClientID != "" && req.ClientID != id {
			return nil, errors.InvalidClient("Client credentials do not match client_id")
		}
		req.ClientID = id
		req.ClientSecret = secret
	}
	return &req, nil
}

func tokenRequestFromForm(form url.Values) TokenRequest {
	req := TokenRequest{
		GrantType:    form.Get("grant_type"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		CodeVerifier: form.Get("code_verifier"),
	}
	if form.Has("state") {
		state := form.Get("state")
		req.State = &state
	}
	return req
}

// Certs handles GET /v1/certs
func (h *Handle) Certs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	render.JSON(w, r, h.keys.JWKS())
}

// UserInfo handles GET /v1/userinfo for a verified bearer access token
func (h *Handle) UserInfo(w http.ResponseWriter, r *http.Request) {
	_, tokenClaims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		common.RenderError(w, r, errors.Authentication("Invalid access token", err))
		return
	}
	if iss, _ := tokenClaims["iss"].(string); iss != h.issuer {
		common.RenderError(w, r, errors.Authentication("Invalid access token issuer", nil))
		return
	}

	// session and ID tokens share the signing key but carry no scope
	scope := common.GetScopeFromClaims(tokenClaims)
	if scope == "" {
		common.RenderError(w, r, errors.Authentication("Token is not an access token", nil))
		return
	}

	subject, err := common.GetSubjectFromClaims(tokenClaims)
	if err != nil {
		common.RenderError(w, r, errors.Authentication("Invalid access token", err))
		return
	}

	info, err := h.service.UserInfo(r.Context(), subject, scope)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, info)
}
