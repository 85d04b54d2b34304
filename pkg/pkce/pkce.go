package pkce

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// ChallengeMethod represents the PKCE challenge method
type ChallengeMethod string

const (
	// ChallengePlain represents the "plain" challenge method (not recommended for production)
	ChallengePlain ChallengeMethod = "plain"
	// ChallengeS256 represents the "S256" challenge method (recommended)
	ChallengeS256 ChallengeMethod = "S256"
)

// SupportedMethods lists the challenge methods accepted by Validate, as advertised in discovery.
var SupportedMethods = []string{string(ChallengePlain), string(ChallengeS256)}

// Validate reports whether verifier satisfies challenge under method.
// Unknown methods and empty inputs fail closed.
func Validate(method, verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}

	var expected string
	switch ChallengeMethod(method) {
	case ChallengeS256:
		expected = oauth2.S256ChallengeFromVerifier(verifier)
	case ChallengePlain:
		expected = verifier
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// GenerateCodeVerifier generates a random 43 character verifier (32 bytes, base64url).
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// ChallengeFor derives the code challenge a client sends for verifier
func ChallengeFor(verifier string, method ChallengeMethod) (string, error) {
	switch method {
	case ChallengePlain:
		return verifier, nil
	case ChallengeS256:
		return oauth2.S256ChallengeFromVerifier(verifier), nil
	default:
		return "", fmt.Errorf("unsupported challenge method: %s", method)
	}
}

// IsValidChallengeMethod checks if the given challenge method is valid
func IsValidChallengeMethod(method string) bool {
	return method == string(ChallengePlain) || method == string(ChallengeS256)
}

// IsWellFormedVerifier checks the RFC 7636 length and alphabet of a verifier
func IsWellFormedVerifier(verifier string) bool {
	if len(verifier) < 43 || len(verifier) > 128 {
		return false
	}
	const allowedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	for _, char := range verifier {
		if !strings.ContainsRune(allowedChars, char) {
			return false
		}
	}
	return true
}
