package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthorizationSchema creates the table used by PostgresAuthorizationStore
const AuthorizationSchema = `
CREATE TABLE IF NOT EXISTS oidc_authorizations (
	id                    UUID PRIMARY KEY,
	code                  TEXT NOT NULL UNIQUE,
	user_id               TEXT NOT NULL,
	client_id             TEXT NOT NULL,
	redirect_uri          TEXT NOT NULL,
	scope                 TEXT NOT NULL,
	nonce                 TEXT NOT NULL DEFAULT '',
	state                 TEXT,
	code_challenge        TEXT NOT NULL DEFAULT '',
	code_challenge_method TEXT NOT NULL DEFAULT '',
	auth_time             BIGINT,
	expires_at            TIMESTAMPTZ NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS oidc_authorizations_expires_at_idx ON oidc_authorizations (expires_at);
`

// PostgresAuthorizationStore implements AuthorizationStore using PostgreSQL
type PostgresAuthorizationStore struct {
	db *pgxpool.Pool
}

// NewPostgresAuthorizationStore creates a store backed by db
func NewPostgresAuthorizationStore(db *pgxpool.Pool) (*PostgresAuthorizationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresAuthorizationStore{db: db}, nil
}

// Migrate creates the authorization table if it does not exist
func (s *PostgresAuthorizationStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, AuthorizationSchema); err != nil {
		return fmt.Errorf("failed to create authorization schema: %w", err)
	}
	return nil
}

func (s *PostgresAuthorizationStore) Save(ctx context.Context, auth *Authorization) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO oidc_authorizations (id, code, user_id, client_id, redirect_uri, scope, nonce,
			state, code_challenge, code_challenge_method, auth_time, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		auth.ID, auth.Code, auth.UserID, auth.ClientID, auth.RedirectURI, auth.Scope, auth.Nonce,
		auth.State, auth.CodeChallenge, auth.CodeChallengeMethod, auth.AuthTime, auth.ExpiresAt, auth.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to save authorization: %w", err)
	}
	return nil
}

func (s *PostgresAuthorizationStore) Consume(ctx context.Context, code string) (*Authorization, error) {
	var auth Authorization
	err := s.db.QueryRow(ctx, `
		DELETE FROM oidc_authorizations WHERE code = $1
		RETURNING id::text, code, user_id, client_id, redirect_uri, scope, nonce, state,
			code_challenge, code_challenge_method, auth_time, expires_at, created_at`, code,
	).Scan(
		&auth.ID, &auth.Code, &auth.UserID, &auth.ClientID, &auth.RedirectURI, &auth.Scope, &auth.Nonce,
		&auth.State, &auth.CodeChallenge, &auth.CodeChallengeMethod, &auth.AuthTime, &auth.ExpiresAt, &auth.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuthorizationNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization: %w", err)
	}
	return &auth, nil
}

// DeleteExpired removes authorizations that expired before now
func (s *PostgresAuthorizationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM oidc_authorizations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorizations: %w", err)
	}
	return tag.RowsAffected(), nil
}
