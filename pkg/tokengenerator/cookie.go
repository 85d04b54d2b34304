package tokengenerator

import (
	"net/http"
	"time"
)

// CookieSetter writes and clears the session token cookie
type CookieSetter interface {
	SetCookie(w http.ResponseWriter, tokenValue string, expire time.Time)
	ClearCookie(w http.ResponseWriter)
	Name() string
}

// BaseCookieSetter provides a base implementation of CookieSetter
type BaseCookieSetter struct {
	CookieName string
	Path       string
	Domain     string
	HttpOnly   bool
	Secure     bool
	SameSite   http.SameSite
}

// NewSessionCookieSetter returns an HttpOnly, SameSite=Lax cookie setter.
// Secure is off only in development mode.
func NewSessionCookieSetter(name, domain string, devMode bool) *BaseCookieSetter {
	return &BaseCookieSetter{
		CookieName: name,
		Path:       "/",
		Domain:     domain,
		HttpOnly:   true,
		Secure:     !devMode,
		SameSite:   http.SameSiteLaxMode,
	}
}

// Name returns the cookie name
func (c *BaseCookieSetter) Name() string {
	return c.CookieName
}

// SetCookie sets the cookie with the given value and expiry
func (c *BaseCookieSetter) SetCookie(w http.ResponseWriter, tokenValue string, expire time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CookieName,
		Path:     c.Path,
		Domain:   c.Domain,
		Value:    tokenValue,
		Expires:  expire,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// ClearCookie clears the cookie
func (c *BaseCookieSetter) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CookieName,
		Path:     c.Path,
		Domain:   c.Domain,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// TokenFromCookie returns a token extractor for the named cookie,
// usable with jwtauth.Verify.
func TokenFromCookie(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}
