// Package oauth2client registers the relying parties allowed to use the provider.
//
// A client is identified by a generated UUID client_id and authenticates at the
// token endpoint with a random secret that is shown once at registration and
// stored only as a bcrypt hash. Redirect URIs must be absolute https URLs;
// plain http is accepted for loopback hosts so local development works.
//
// # Basic Usage
//
//	repo := oauth2client.NewInMemoryOAuth2ClientRepository()
//	service := oauth2client.NewClientService(repo)
//
//	registered, err := service.Register(ctx, oauth2client.Registration{
//		ClientName:   "my-app",
//		RedirectURIs: []string{"https://myapp.example/callback"},
//	})
//	// registered.ClientSecret is not retrievable later
//
//	availability, err := service.CheckName(ctx, "my-app", true)
//	// availability.Alternatives: theMy-app, the-my-app, my-app1, my-app2, my-appToo, ...
//
// # PostgreSQL
//
//	repo, err := oauth2client.NewPostgresOAuth2ClientRepository(pool)
//	if err := repo.Migrate(ctx); err != nil { ... }
//
// ClientService also satisfies the client registry used by the OIDC service to
// check redirect URIs at the authorization endpoint and secrets at the token
// endpoint.
package oauth2client
