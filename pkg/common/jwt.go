package common

import (
	"fmt"
	"strings"
)

// GetSubjectFromClaims extracts sub from a verified claim map, as returned by jwtauth.FromContext
func GetSubjectFromClaims(claims map[string]interface{}) (string, error) {
	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", fmt.Errorf("sub not found in token claims")
	}
	return sub, nil
}

// GetScopeFromClaims extracts the space separated scope claim. Tokens without one grant no scope.
func GetScopeFromClaims(claims map[string]interface{}) string {
	switch scope := claims["scope"].(type) {
	case string:
		return scope
	case []interface{}:
		parts := make([]string, 0, len(scope))
		for _, s := range scope {
			if str, ok := s.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
