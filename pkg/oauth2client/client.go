package oauth2client

import (
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tendant/ezlogin/pkg/errors"
)

const (
	MinNameLength = 2
	MaxNameLength = 255
)

// OAuth2Client is a registered relying party. The secret is only kept as a bcrypt hash.
type OAuth2Client struct {
	ClientID         string
	ClientSecretHash string
	ClientName       string
	RedirectURIs     []string
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateRedirectURI checks if the provided redirect URI is allowed for this client
func (c *OAuth2Client) ValidateRedirectURI(redirectURI string) bool {
	return slices.Contains(c.RedirectURIs, redirectURI)
}

func (c *OAuth2Client) clone() *OAuth2Client {
	copied := *c
	copied.RedirectURIs = slices.Clone(c.RedirectURIs)
	return &copied
}

// NormalizeName trims surrounding whitespace from a client name
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateName checks a client name after normalization
func ValidateName(name string) *errors.Issue {
	name = NormalizeName(name)
	length := utf8.RuneCountInString(name)
	switch {
	case length == 0:
		return &errors.Issue{Field: "client_name", Code: "required", Message: "Client name can not be empty."}
	case length < MinNameLength:
		return &errors.Issue{Field: "client_name", Code: "too_small", Message: "Client name must be at least 2 characters long."}
	case length > MaxNameLength:
		return &errors.Issue{Field: "client_name", Code: "too_big", Message: "Client name must be at most 255 characters long."}
	}
	return nil
}

// ValidateRedirectURIFormat requires an absolute https URL without a fragment.
// Plain http is accepted for loopback hosts only.
func ValidateRedirectURIFormat(raw string) *errors.Issue {
	issue := func(code, message string) *errors.Issue {
		return &errors.Issue{Field: "redirect_uris", Code: code, Message: message}
	}
	if raw == "" {
		return issue("required", "Redirect URI cannot be empty.")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return issue("invalid_url", "Redirect URI must be an absolute URL: "+raw)
	}
	if u.Fragment != "" {
		return issue("invalid_url", "Redirect URI must not contain a fragment: "+raw)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return issue("insecure_url", `Redirect URI must begin with "https://": `+raw)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
