// Package wellknown serves the discovery documents and the published key set.
package wellknown

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/ezlogin/pkg/jwks"
)

// KeyPublisher exposes the public signing keys
type KeyPublisher interface {
	JWKS() *jwks.JWKS
}

// Handler provides HTTP handlers for well-known endpoints
type Handler struct {
	config Config
	keys   KeyPublisher
}

// NewHandler creates a new well-known endpoints handler
func NewHandler(config Config, keys KeyPublisher) *Handler {
	return &Handler{
		config: config,
		keys:   keys,
	}
}

// Routes registers the well-known endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/.well-known/openid-configuration", h.OpenIDConfiguration)
	r.Get("/.well-known/oauth-authorization-server", h.AuthorizationServerMetadata)
	r.Get("/.well-known/jwks.json", h.JWKS)
}

func setDiscoveryHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// AuthorizationServerMetadata handles GET /.well-known/oauth-authorization-server (RFC 8414)
func (h *Handler) AuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	metadata := NewAuthorizationServerMetadata(h.config)
	setDiscoveryHeaders(w)
	render.JSON(w, r, metadata)
	slog.Debug("Authorization server metadata sent", "issuer", metadata.Issuer)
}

// OpenIDConfiguration handles GET /.well-known/openid-configuration
func (h *Handler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	metadata := NewOpenIDProviderMetadata(h.config)
	setDiscoveryHeaders(w)
	render.JSON(w, r, metadata)
	slog.Debug("OpenID configuration sent", "issuer", metadata.Issuer)
}

// JWKS handles GET /.well-known/jwks.json
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	render.JSON(w, r, h.keys.JWKS())
}
