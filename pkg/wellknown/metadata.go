package wellknown

import (
	"strings"

	"github.com/tendant/ezlogin/pkg/claims"
	"github.com/tendant/ezlogin/pkg/pkce"
)

// AuthorizationServerMetadata represents the OAuth 2.0 Authorization Server Metadata
// as defined in RFC 8414: https://datatracker.ietf.org/doc/html/rfc8414
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JwksURI                           string   `json:"jwks_uri,omitempty"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// OpenIDProviderMetadata extends the OAuth metadata with the fields of
// OpenID Connect Discovery 1.0
type OpenIDProviderMetadata struct {
	AuthorizationServerMetadata
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ClaimsSupported                  []string `json:"claims_supported,omitempty"`
	PromptValuesSupported            []string `json:"prompt_values_supported,omitempty"`
	DisplayValuesSupported           []string `json:"display_values_supported,omitempty"`
}

// Config holds configuration for well-known endpoints
type Config struct {
	Issuer string

	// BaseURL is where the API routes are mounted, e.g. "https://ezlog.in/api"
	BaseURL string

	// JwksURI overrides the published key set location, BaseURL + /v1/certs by default
	JwksURI string
}

func (c Config) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// NewAuthorizationServerMetadata creates a new AuthorizationServerMetadata instance
func NewAuthorizationServerMetadata(config Config) *AuthorizationServerMetadata {
	jwksURI := config.JwksURI
	if jwksURI == "" {
		jwksURI = config.endpoint("/v1/certs")
	}

	return &AuthorizationServerMetadata{
		Issuer:                            config.Issuer,
		AuthorizationEndpoint:             config.endpoint("/authorization"),
		TokenEndpoint:                     config.endpoint("/v1/token"),
		JwksURI:                           jwksURI,
		RegistrationEndpoint:              config.endpoint("/v1/clients"),
		ScopesSupported:                   claims.SupportedScopes(),
		ResponseTypesSupported:            []string{"code"},
		ResponseModesSupported:            []string{"query"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic", "none"},
		CodeChallengeMethodsSupported:     pkce.SupportedMethods,
	}
}

// NewOpenIDProviderMetadata creates the OpenID Connect discovery document
func NewOpenIDProviderMetadata(config Config) *OpenIDProviderMetadata {
	return &OpenIDProviderMetadata{
		AuthorizationServerMetadata:      *NewAuthorizationServerMetadata(config),
		UserinfoEndpoint:                 config.endpoint("/v1/userinfo"),
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ClaimsSupported:                  claims.SupportedClaims(),
		PromptValuesSupported:            []string{"none", "login", "consent", "select_account"},
		DisplayValuesSupported:           []string{"page", "popup", "touch", "wap"},
	}
}
