package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/ezlogin/pkg/common"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
	"github.com/tendant/ezlogin/pkg/user"
)

// LoginResponse is returned after a successful login; the token itself only travels in the cookie
type LoginResponse struct {
	Message string `json:"message"`
}

// Handle serves user registration and login
type Handle struct {
	userService  *user.UserService
	cookieSetter tokengenerator.CookieSetter
}

type Option func(*Handle)

func WithCookieSetter(cs tokengenerator.CookieSetter) Option {
	return func(h *Handle) {
		h.cookieSetter = cs
	}
}

// NewHandle creates a user API handle. Without a cookie setter the session
// cookie is named "session" and marked Secure.
func NewHandle(userService *user.UserService, opts ...Option) *Handle {
	h := &Handle{
		userService:  userService,
		cookieSetter: tokengenerator.NewSessionCookieSetter("session", "", false),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the user endpoints on r
func (h *Handle) Routes(r chi.Router) {
	r.Post("/users", h.Register)
	r.Post("/login", h.Login)
}

// Register handles POST /users
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req user.Registration
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to decode registration request", "err", err)
		common.RenderError(w, r, errors.Validation("Invalid request body"))
		return
	}

	u, err := h.userService.Register(r.Context(), req)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user.ToPublic(u))
}

// Login handles POST /login and sets the session cookie
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req user.Credential
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to decode login request", "err", err)
		common.RenderError(w, r, errors.Validation("Invalid request body"))
		return
	}

	session, err := h.userService.Authenticate(r.Context(), req)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}

	h.cookieSetter.SetCookie(w, session.Token, session.ExpiresAt)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{Message: "Login successful"})
}
