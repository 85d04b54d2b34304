package oidc

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tendant/ezlogin/pkg/claims"
	"github.com/tendant/ezlogin/pkg/errors"
	"github.com/tendant/ezlogin/pkg/pkce"
)

var responseTypePattern = regexp.MustCompile(`^(code|id_token|token)( (code|id_token|token)){0,2}$`)

var (
	validPrompts       = []string{"none", "login", "consent", "select_account"}
	validDisplays      = []string{"page", "popup", "touch", "wap"}
	validResponseModes = []string{"query", "fragment", "form_post"}
)

// AuthorizationRequest is a validated OpenID Connect authentication request.
// Optional string parameters are empty when absent.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               *string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Display             string
	Prompt              string
	MaxAge              *int64
	UILocales           string
	IDTokenHint         string
	LoginHint           string
	ACRValues           string
	Request             string
	RequestURI          string
	ResponseMode        string
}

// Scopes returns the requested scopes
func (r *AuthorizationRequest) Scopes() []string {
	return claims.ParseScope(r.Scope)
}

// Values encodes every present parameter, used to hand the request to the login page
func (r *AuthorizationRequest) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("response_type", r.ResponseType)
	set("client_id", r.ClientID)
	set("redirect_uri", r.RedirectURI)
	set("scope", r.Scope)
	if r.State != nil {
		v.Set("state", *r.State)
	}
	set("nonce", r.Nonce)
	set("code_challenge", r.CodeChallenge)
	set("code_challenge_method", r.CodeChallengeMethod)
	set("display", r.Display)
	set("prompt", r.Prompt)
	if r.MaxAge != nil {
		v.Set("max_age", strconv.FormatInt(*r.MaxAge, 10))
	}
	set("ui_locales", r.UILocales)
	set("id_token_hint", r.IDTokenHint)
	set("login_hint", r.LoginHint)
	set("acr_values", r.ACRValues)
	set("request", r.Request)
	set("request_uri", r.RequestURI)
	set("response_mode", r.ResponseMode)
	return v
}

// ExtractRedirectURI returns the redirect target of a raw request. It is
// checked before anything else since error responses are sent there.
func ExtractRedirectURI(params url.Values) (*url.URL, error) {
	raw := params.Get("redirect_uri")
	if raw == "" {
		return nil, errors.Validation("Missing redirect URI",
			errors.Issue{Field: "redirect_uri", Code: "required", Message: "redirect_uri is required"})
	}
	u, ok := parseAbsoluteURL(raw)
	if !ok {
		return nil, errors.Validation("Invalid redirect URI",
			errors.Issue{Field: "redirect_uri", Code: "invalid_url", Message: "redirect_uri must be an absolute URL"})
	}
	return u, nil
}

// ParseAuthorizationRequest validates raw parameters. A bad redirect_uri
// fails on its own; every other problem is collected into one validation error.
func ParseAuthorizationRequest(params url.Values) (*AuthorizationRequest, error) {
	if _, err := ExtractRedirectURI(params); err != nil {
		return nil, err
	}

	req := &AuthorizationRequest{
		ResponseType:        params.Get("response_type"),
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		Scope:               params.Get("scope"),
		Nonce:               params.Get("nonce"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
		Display:             params.Get("display"),
		Prompt:              params.Get("prompt"),
		UILocales:           params.Get("ui_locales"),
		IDTokenHint:         params.Get("id_token_hint"),
		LoginHint:           params.Get("login_hint"),
		ACRValues:           params.Get("acr_values"),
		Request:             params.Get("request"),
		RequestURI:          params.Get("request_uri"),
		ResponseMode:        params.Get("response_mode"),
	}
	if params.Has("state") {
		state := params.Get("state")
		req.State = &state
	}

	var issues []errors.Issue
	addIssue := func(field, code, message string) {
		issues = append(issues, errors.Issue{Field: field, Code: code, Message: message})
	}

	if !validResponseType(req.ResponseType) {
		addIssue("response_type", "invalid_response_type", "Invalid response type combination.")
	}
	if req.ClientID == "" {
		addIssue("client_id", "required", "client_id is required")
	}
	if req.Scope == "" {
		addIssue("scope", "required", "scope is required")
	} else if !claims.HasScope(req.Scope, claims.ScopeOpenID) {
		addIssue("scope", "invalid_scope", "The 'openid' scope is required.")
	}
	if req.Prompt != "" && !subsetOf(strings.Split(req.Prompt, " "), validPrompts) {
		addIssue("prompt", "invalid_prompt",
			"Invalid prompt value. Must be a combination of 'none', 'login', 'consent', and/or 'select_account'.")
	}
	if req.CodeChallengeMethod != "" && !pkce.IsValidChallengeMethod(req.CodeChallengeMethod) {
		addIssue("code_challenge_method", "invalid_enum_value", "code_challenge_method must be 'plain' or 'S256'")
	}
	if req.Display != "" && !containsAll(validDisplays, req.Display) {
		addIssue("display", "invalid_enum_value", "display must be one of page, popup, touch, wap")
	}
	if params.Has("max_age") {
		maxAge, err := strconv.ParseInt(params.Get("max_age"), 10, 64)
		if err != nil || maxAge < 0 {
			addIssue("max_age", "invalid_number", "max_age must be a non-negative integer")
		} else {
			req.MaxAge = &maxAge
		}
	}
	if req.ResponseMode != "" && !containsAll(validResponseModes, req.ResponseMode) {
		addIssue("response_mode", "invalid_enum_value", "response_mode must be one of query, fragment, form_post")
	}
	if req.RequestURI != "" {
		if _, ok := parseAbsoluteURL(req.RequestURI); !ok {
			addIssue("request_uri", "invalid_url", "request_uri must be an absolute URL")
		}
	}

	if len(issues) > 0 {
		return nil, errors.Validation("Invalid authorization request", issues...)
	}
	return req, nil
}

func validResponseType(value string) bool {
	if !responseTypePattern.MatchString(value) {
		return false
	}
	parts := strings.Split(value, " ")
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

func parseAbsoluteURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return nil, false
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return nil, false
	}
	return u, true
}

func containsAll(set []string, values ...string) bool {
	for _, v := range values {
		found := false
		for _, s := range set {
			if s == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func subsetOf(values, allowed []string) bool {
	return containsAll(allowed, values...)
}
