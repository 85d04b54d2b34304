package common

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/ezlogin/pkg/errors"
)

// ErrorResponse is the JSON body of an error without a redirect target
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Errors  []errors.Issue `json:"errors"`
}

// OAuthErrorResponse is the RFC 6749 section 5.2 error body
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// NewErrorResponse converts err into its public JSON form
func NewErrorResponse(err error) (int, ErrorResponse) {
	e := errors.As(err)
	status := e.HTTPStatusCode()
	issues := e.Issues
	if issues == nil || e.Kind == errors.KindInternal {
		issues = []errors.Issue{}
	}
	return status, ErrorResponse{
		Error: ErrorBody{
			Message: e.PublicMessage(),
			Status:  status,
			Errors:  issues,
		},
	}
}

// RenderError writes err as JSON. Internal errors are logged with their cause.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := NewErrorResponse(err)
	if errors.KindOf(err) == errors.KindInternal {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		slog.Info("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// RenderOAuthError writes err in the token endpoint error format
func RenderOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	e := errors.As(err)
	status := e.HTTPStatusCode()
	if e.Kind == errors.KindInternal {
		slog.Error("Token request failed", "err", err)
	} else {
		slog.Info("Token request rejected", "code", e.Code, "reason", e.Reason)
	}
	if e.Code == errors.ErrCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	render.Status(r, status)
	render.JSON(w, r, OAuthErrorResponse{
		Error:            string(e.Code),
		ErrorDescription: e.PublicMessage(),
	})
}
