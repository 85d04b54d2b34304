package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/ezlogin/pkg/config"
	"github.com/tendant/ezlogin/pkg/jwks"
	"github.com/tendant/ezlogin/pkg/oauth2client"
	oauth2clientapi "github.com/tendant/ezlogin/pkg/oauth2client/api"
	"github.com/tendant/ezlogin/pkg/oidc"
	oidcapi "github.com/tendant/ezlogin/pkg/oidc/api"
	"github.com/tendant/ezlogin/pkg/ratelimit"
	"github.com/tendant/ezlogin/pkg/tokengenerator"
	"github.com/tendant/ezlogin/pkg/user"
	userapi "github.com/tendant/ezlogin/pkg/user/api"
	"github.com/tendant/ezlogin/pkg/wellknown"
)

const janitorInterval = time.Minute

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keyPair, err := jwks.LoadOrGenerateKeyPair(cfg.JWTKeyFile)
	if err != nil {
		slog.Error("Failed to load signing key", "file", cfg.JWTKeyFile, "error", err)
		os.Exit(1)
	}
	keys, err := jwks.NewKeySet(keyPair)
	if err != nil {
		slog.Error("Failed to build key set", "error", err)
		os.Exit(1)
	}
	slog.Info("Signing key loaded", "kid", keyPair.Kid)
	tokens := tokengenerator.NewRSATokenGenerator(keys, cfg.Issuer)

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		pool, err = cfg.Database.NewPool(ctx)
		if err != nil {
			slog.Error("Failed to connect to database",
				"host", cfg.Database.Host,
				"port", cfg.Database.Port,
				"database", cfg.Database.Database,
				"schema", cfg.Database.Schema,
				"error", err)
			os.Exit(1)
		}
		defer pool.Close()
		slog.Info("Database connected", "database", cfg.Database.Database, "schema", cfg.Database.Schema)
	}

	users, err := newUserRepository(ctx, cfg, pool)
	if err != nil {
		slog.Error("Failed to initialize user repository", "store", cfg.UserStore, "error", err)
		os.Exit(1)
	}
	clients, err := newClientRepository(ctx, cfg, pool)
	if err != nil {
		slog.Error("Failed to initialize client repository", "store", cfg.ClientStore, "error", err)
		os.Exit(1)
	}
	store, err := newAuthorizationStore(ctx, cfg, pool)
	if err != nil {
		slog.Error("Failed to initialize authorization store", "store", cfg.AuthorizationStore, "error", err)
		os.Exit(1)
	}

	metrics, err := oidc.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	userService := user.NewUserService(users, tokens, cfg.Issuer,
		user.WithSessionTTL(cfg.SessionTTL),
		user.WithBcryptCost(cfg.BcryptCost),
	)
	clientService := oauth2client.NewClientService(clients, oauth2client.WithBcryptCost(cfg.BcryptCost))
	oidcService := oidc.NewOIDCService(store, users, tokens,
		oidc.WithIssuer(cfg.Issuer),
		oidc.WithLoginURL(cfg.LoginURL),
		oidc.WithCodeExpiration(cfg.CodeTTL),
		oidc.WithTokenExpiration(cfg.AccessTokenTTL),
		oidc.WithClientRegistry(clientService),
		oidc.WithMetrics(metrics),
	)

	limiter := ratelimit.NewMiddleware(cfg.RateLimit)
	userHandle := userapi.NewHandle(userService,
		userapi.WithCookieSetter(tokengenerator.NewSessionCookieSetter(cfg.SessionCookieName, cfg.SessionCookieDomain, cfg.DevMode)))
	clientHandle := oauth2clientapi.NewHandle(clientService)
	oidcHandle := oidcapi.NewHandle(oidcService, keys,
		oidcapi.WithSessionCookieName(cfg.SessionCookieName),
		oidcapi.WithIssuer(cfg.Issuer),
		oidcapi.WithTokenMiddlewares(limiter.Handler),
	)
	wellknownHandler := wellknown.NewHandler(wellknown.Config{
		Issuer:  cfg.Issuer,
		BaseURL: cfg.BaseURL,
	}, keys)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Handle("/metrics", promhttp.Handler())
	wellknownHandler.Routes(server.R)
	server.R.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			userHandle.Routes(r)
		})
		oidcHandle.Routes(r)
		r.Route("/v1", clientHandle.Routes)
	})

	slog.Info("ezlogin ready",
		"issuer", cfg.Issuer,
		"base_url", cfg.BaseURL,
		"discovery", cfg.Issuer+"/.well-known/openid-configuration",
		"authorization_store", cfg.AuthorizationStore)

	server.Run()
}

func newUserRepository(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (user.Repository, error) {
	var repo user.Repository
	switch cfg.UserStore {
	case config.StorePostgres:
		pg, err := user.NewPostgresRepository(pool)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		repo = pg
	default:
		repo = user.NewInMemoryRepository()
	}

	if cfg.UserCacheTTL > 0 {
		return user.NewCachedRepository(repo, cfg.UserCacheTTL), nil
	}
	return repo, nil
}

func newClientRepository(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (oauth2client.OAuth2ClientRepository, error) {
	if cfg.ClientStore != config.StorePostgres {
		return oauth2client.NewInMemoryOAuth2ClientRepository(), nil
	}
	repo, err := oauth2client.NewPostgresOAuth2ClientRepository(pool)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func newAuthorizationStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (oidc.AuthorizationStore, error) {
	switch cfg.AuthorizationStore {
	case config.StorePostgres:
		store, err := oidc.NewPostgresAuthorizationStore(pool)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		go runPostgresJanitor(ctx, store)
		return store, nil
	case config.StoreRedis:
		client, err := cfg.Redis.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return oidc.NewRedisAuthorizationStore(client, cfg.Redis.Prefix), nil
	case config.StoreMemory:
		store := oidc.NewInMemoryAuthorizationStore()
		go store.RunJanitor(ctx, janitorInterval)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown authorization store %q", cfg.AuthorizationStore)
	}
}

func runPostgresJanitor(ctx context.Context, store *oidc.PostgresAuthorizationStore) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpired(ctx, now)
			if err != nil {
				slog.Warn("Failed to delete expired authorizations", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("Deleted expired authorizations", "count", n)
			}
		}
	}
}
