package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/ezlogin/pkg/config"
)

// Config of the demo relying party
type Config struct {
	DiscoveryURL string   `env:"EZLOGIN_DISCOVERY_URL" env-default:"http://localhost:8080/.well-known/openid-configuration"`
	ClientID     string   `env:"EZLOGIN_CLIENT_ID" env-required:"true"`
	ClientSecret string   `env:"EZLOGIN_CLIENT_SECRET" env-default:""`
	RedirectURL  string   `env:"EZLOGIN_REDIRECT_URL" env-default:"http://localhost:4002/callback"`
	Scopes       []string `env:"EZLOGIN_SCOPES" env-default:"openid,profile,email" env-separator:","`
	Addr         string   `env:"EZLOGIN_CLIENT_ADDR" env-default:":4002"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	if err := config.LoadEnvFile(); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	metadata, keys, err := Discover(ctx, httpClient, cfg.DiscoveryURL)
	cancel()
	if err != nil {
		slog.Error("Provider discovery failed", "url", cfg.DiscoveryURL, "error", err)
		os.Exit(1)
	}
	slog.Info("Provider discovered", "issuer", metadata.Issuer, "keys", len(keys.Keys))

	rp := NewRelyingParty(ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}, metadata, keys, httpClient)

	r := chi.NewRouter()
	rp.Routes(r)

	slog.Info("Relying party started", "addr", cfg.Addr, "client_id", cfg.ClientID, "redirect_url", cfg.RedirectURL)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
