// Package claims builds, parses and scopes the claim sets carried by
// access tokens, ID tokens and session tokens. It performs no I/O.
package claims

import "strings"

const ScopeOpenID = "openid"

// scopeOrder fixes the iteration order of scopeClaims.
var scopeOrder = []string{"openid", "profile", "email", "address", "phone"}

var scopeClaims = map[string][]string{
	"openid": {
		"acr", "amr", "at_hash", "aud", "auth_time", "azp", "c_hash", "created_at",
		"exp", "iat", "iss", "jti", "name", "nonce", "nbf", "s_hash", "updated_at", "sub",
	},
	"profile": {
		"given_name", "family_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website",
	},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// ClaimsForScope returns the claim keys granted by scope, in table order.
// Unknown scopes grant nothing.
func ClaimsForScope(scope string) []string {
	keys := scopeClaims[scope]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// SupportedScopes lists the scopes with a claim mapping
func SupportedScopes() []string {
	out := make([]string, len(scopeOrder))
	copy(out, scopeOrder)
	return out
}

// SupportedClaims lists every claim key reachable through some scope
func SupportedClaims() []string {
	var out []string
	for _, scope := range scopeOrder {
		out = append(out, scopeClaims[scope]...)
	}
	return out
}

// AllowedClaims is the union of claim keys granted by scopes
func AllowedClaims(scopes []string) map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, scope := range scopes {
		for _, key := range scopeClaims[scope] {
			allowed[key] = struct{}{}
		}
	}
	return allowed
}

// ParseScope splits a space separated scope string, dropping empty and repeated entries.
func ParseScope(scope string) []string {
	var scopes []string
	seen := make(map[string]bool)
	for _, s := range strings.Fields(scope) {
		if seen[s] {
			continue
		}
		seen[s] = true
		scopes = append(scopes, s)
	}
	return scopes
}

// HasScope reports whether the space separated scope string contains want
func HasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}
