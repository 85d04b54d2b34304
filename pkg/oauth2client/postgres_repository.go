package oauth2client

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by PostgresOAuth2ClientRepository
const Schema = `
CREATE TABLE IF NOT EXISTS oidc_clients (
	client_id          UUID PRIMARY KEY,
	client_name        TEXT NOT NULL UNIQUE,
	client_secret_hash TEXT NOT NULL,
	version            INTEGER NOT NULL DEFAULT 1,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS oidc_client_redirect_uris (
	client_id    UUID NOT NULL REFERENCES oidc_clients(client_id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	redirect_uri TEXT NOT NULL,
	PRIMARY KEY (client_id, position)
);
`

// PostgresOAuth2ClientRepository implements OAuth2ClientRepository using PostgreSQL
type PostgresOAuth2ClientRepository struct {
	db *pgxpool.Pool
}

// NewPostgresOAuth2ClientRepository creates a new PostgreSQL OAuth2 client repository
func NewPostgresOAuth2ClientRepository(db *pgxpool.Pool) (*PostgresOAuth2ClientRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresOAuth2ClientRepository{db: db}, nil
}

// Migrate creates the client tables if they do not exist
func (r *PostgresOAuth2ClientRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create client schema: %w", err)
	}
	return nil
}

// GetClient retrieves an OAuth2 client by client ID
func (r *PostgresOAuth2ClientRepository) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	if _, err := uuid.Parse(clientID); err != nil {
		return nil, ErrClientNotFound
	}

	var client OAuth2Client
	err := r.db.QueryRow(ctx, `
		SELECT c.client_id::text, c.client_name, c.client_secret_hash, c.version, c.created_at, c.updated_at,
			ARRAY(SELECT u.redirect_uri FROM oidc_client_redirect_uris u WHERE u.client_id = c.client_id ORDER BY u.position)
		FROM oidc_clients c
		WHERE c.client_id = $1`, clientID,
	).Scan(&client.ClientID, &client.ClientName, &client.ClientSecretHash, &client.Version,
		&client.CreatedAt, &client.UpdatedAt, &client.RedirectURIs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// CreateClient inserts the client and its redirect URIs in one transaction
func (r *PostgresOAuth2ClientRepository) CreateClient(ctx context.Context, client *OAuth2Client) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO oidc_clients (client_id, client_name, client_secret_hash, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		client.ClientID, client.ClientName, client.ClientSecretHash, client.Version, client.CreatedAt, client.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrClientNameTaken
		}
		return fmt.Errorf("failed to create client: %w", err)
	}

	for i, uri := range client.RedirectURIs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO oidc_client_redirect_uris (client_id, position, redirect_uri)
			VALUES ($1, $2, $3)`, client.ClientID, i, uri); err != nil {
			return fmt.Errorf("failed to add redirect uri: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TakenNames returns the subset of names already registered
func (r *PostgresOAuth2ClientRepository) TakenNames(ctx context.Context, names []string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT client_name FROM oidc_clients WHERE client_name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to query client names: %w", err)
	}
	taken, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read client names: %w", err)
	}
	return taken, nil
}
