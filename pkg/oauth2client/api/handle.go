package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/ezlogin/pkg/common"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/oauth2client"
)

// ClientRegistrationResponse is returned once, with the plaintext secret
type ClientRegistrationResponse struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret"`
	ClientName            string   `json:"client_name"`
	RedirectURIs          []string `json:"redirect_uris"`
	ClientIDIssuedAt      int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt int64    `json:"client_secret_expires_at"`
}

// ClientResponse is the public view of a registered client
type ClientResponse struct {
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Handle serves client registration and client name lookups
type Handle struct {
	clientService *oauth2client.ClientService
}

// NewHandle creates a new OIDC client API handler
func NewHandle(clientService *oauth2client.ClientService) *Handle {
	return &Handle{
		clientService: clientService,
	}
}

// Routes registers the client endpoints on r
func (h *Handle) Routes(r chi.Router) {
	r.Post("/clients", h.RegisterClient)
	r.Get("/clients/{clientID}", h.GetClient)
	r.Get("/oidc-client-name/{name}", h.CheckName)
}

// RegisterClient handles POST /clients
func (h *Handle) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req oauth2client.Registration
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to parse registration request", "err", err)
		common.RenderError(w, r, errors.Validation("Invalid request body"))
		return
	}

	registered, err := h.clientService.Register(r.Context(), req)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ClientRegistrationResponse{
		ClientID:         registered.ClientID,
		ClientSecret:     registered.ClientSecret,
		ClientName:       registered.ClientName,
		RedirectURIs:     registered.RedirectURIs,
		ClientIDIssuedAt: registered.CreatedAt.Unix(),
	})
}

// GetClient handles GET /clients/{clientID}
func (h *Handle) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.clientService.GetClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		common.RenderError(w, r, err)
		return
	}

	render.JSON(w, r, ClientResponse{
		ClientID:     client.ClientID,
		ClientName:   client.ClientName,
		RedirectURIs: client.RedirectURIs,
		Version:      client.Version,
		CreatedAt:    client.CreatedAt,
	})
}

// CheckName handles GET /oidc-client-name/{name}. Alternatives are
// suggested unless ?suggest=false.
func (h *Handle) CheckName(w http.ResponseWriter, r *http.Request) {
	suggest := true
	if raw := r.URL.Query().Get("suggest"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			common.RenderError(w, r, errors.Validation("suggest must be a boolean",
				errors.Issue{Field: "suggest", Code: "invalid_type", Message: "suggest must be a boolean"}))
			return
		}
		suggest = parsed
	}

	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	availability, err := h.clientService.CheckName(r.Context(), name, suggest)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, availability)
}
