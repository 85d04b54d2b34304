// Package oidc implements the OpenID Connect authorization code flow.
//
// Authorize turns an authentication request and the caller's session token
// into a redirect: to the login page when the user must sign in, to the
// client with a single-use code, or to the client with an error. Exchange
// redeems that code for a signed access token and ID token. Codes live in an
// AuthorizationStore; in-memory, PostgreSQL and Redis implementations are
// provided and all consume codes atomically.
//
//	store := oidc.NewInMemoryAuthorizationStore()
//	service := oidc.NewOIDCService(store, userRepo, tokens,
//		oidc.WithIssuer("https://ezlog.in"),
//		oidc.WithLoginURL("https://ezlog.in/login"),
//	)
//
//	outcome, err := service.Authorize(ctx, r.URL.Query(), sessionToken)
//	// redirect to outcome.Location with 307
//
//	resp, err := service.Exchange(ctx, oidc.ExchangeRequest{Code: code, CodeVerifier: verifier})
//
// Exchange failures are invalid_grant errors whose Reason names the failed
// check, e.g. ReasonCodeExpired or ReasonPKCEFailed.
package oidc
