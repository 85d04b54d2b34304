// Package ratelimit throttles credential endpoints per client IP.
package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/ezlogin/pkg/common"
)

// Config holds rate limiting configuration
type Config struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	// Burst is how many requests one IP can make at once
	Burst int `env:"RATE_LIMIT_BURST" env-default:"10"`
	// PerMinute is the sustained rate once the burst is spent
	PerMinute float64 `env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
	// BucketTTL is how long an idle IP is remembered
	BucketTTL time.Duration `env:"RATE_LIMIT_BUCKET_TTL" env-default:"1h"`
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool `env:"RATE_LIMIT_TRUST_PROXY" env-default:"false"`
}

// Middleware rejects requests over the per-IP limit with 429
type Middleware struct {
	config  Config
	limiter *RateLimiter
}

// NewMiddleware creates the middleware. A disabled config passes every request through.
func NewMiddleware(config Config) *Middleware {
	m := &Middleware{config: config}
	if config.Enabled {
		m.limiter = NewRateLimiter(config.Burst, config.PerMinute/60, config.BucketTTL)
	}
	return m
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := m.clientIP(r)
		allowed, wait := m.limiter.Allow(ip)
		if !allowed {
			slog.Warn("Rate limit exceeded", "ip", ip, "method", r.Method, "path", r.URL.Path)
			retryAfter := int64(math.Ceil(wait.Seconds()))
			if retryAfter < 1 || wait < 0 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			w.Header().Set("Cache-Control", "no-store")
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, common.OAuthErrorResponse{
				Error:            "rate_limit_exceeded",
				ErrorDescription: "Too many requests. Please try again later.",
			})
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.Burst))
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	if m.config.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
