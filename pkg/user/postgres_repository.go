package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by PostgresRepository
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                    UUID PRIMARY KEY,
	email                 TEXT NOT NULL UNIQUE,
	password_hash         TEXT NOT NULL,
	email_verified        BOOLEAN NOT NULL DEFAULT FALSE,
	name                  TEXT NOT NULL DEFAULT '',
	given_name            TEXT NOT NULL DEFAULT '',
	family_name           TEXT NOT NULL DEFAULT '',
	middle_name           TEXT NOT NULL DEFAULT '',
	nickname              TEXT NOT NULL DEFAULT '',
	preferred_username    TEXT NOT NULL DEFAULT '',
	profile               TEXT NOT NULL DEFAULT '',
	picture               TEXT NOT NULL DEFAULT '',
	website               TEXT NOT NULL DEFAULT '',
	gender                TEXT NOT NULL DEFAULT '',
	birthdate             TEXT NOT NULL DEFAULT '',
	locale                TEXT NOT NULL DEFAULT '',
	zoneinfo              TEXT NOT NULL DEFAULT '',
	phone_number          TEXT NOT NULL DEFAULT '',
	phone_number_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS user_addresses (
	user_id        UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	street_address TEXT NOT NULL DEFAULT '',
	locality       TEXT NOT NULL DEFAULT '',
	region         TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	country        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_clients (
	user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	client_id  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, client_id)
);
`

const selectUser = `
	SELECT u.id::text, u.email, u.password_hash, u.email_verified,
		u.name, u.given_name, u.family_name, u.middle_name, u.nickname,
		u.preferred_username, u.profile, u.picture, u.website, u.gender,
		u.birthdate, u.locale, u.zoneinfo, u.phone_number, u.phone_number_verified,
		u.created_at, u.updated_at,
		a.street_address, a.locality, a.region, a.postal_code, a.country,
		ARRAY(SELECT c.client_id FROM user_clients c WHERE c.user_id = u.id ORDER BY c.created_at, c.client_id)
	FROM users u
	LEFT JOIN user_addresses a ON a.user_id = u.id
`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository
func NewPostgresRepository(db *pgxpool.Pool) (*PostgresRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresRepository{db: db}, nil
}

// Migrate creates the user tables if they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create user schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	return r.findOne(ctx, selectUser+" WHERE u.id = $1", id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, selectUser+" WHERE u.email = $1", NormalizeEmail(email))
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg string) (*User, error) {
	var (
		u                                          User
		street, locality, region, postal, country *string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.EmailVerified,
		&u.Name, &u.GivenName, &u.FamilyName, &u.MiddleName, &u.Nickname,
		&u.PreferredUsername, &u.Profile, &u.Picture, &u.Website, &u.Gender,
		&u.Birthdate, &u.Locale, &u.Zoneinfo, &u.PhoneNumber, &u.PhoneNumberVerified,
		&u.CreatedAt, &u.UpdatedAt,
		&street, &locality, &region, &postal, &country,
		&u.Clients,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if country != nil {
		u.Address = &Address{
			StreetAddress: deref(street),
			Locality:      deref(locality),
			Region:        deref(region),
			PostalCode:    deref(postal),
			Country:       *country,
		}
	}
	return &u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, email_verified, name, given_name,
			family_name, middle_name, nickname, preferred_username, profile, picture,
			website, gender, birthdate, locale, zoneinfo, phone_number,
			phone_number_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		u.ID, NormalizeEmail(u.Email), u.PasswordHash, u.EmailVerified, u.Name, u.GivenName,
		u.FamilyName, u.MiddleName, u.Nickname, u.PreferredUsername, u.Profile, u.Picture,
		u.Website, u.Gender, u.Birthdate, u.Locale, u.Zoneinfo, u.PhoneNumber,
		u.PhoneNumberVerified, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	if u.Address != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_addresses (user_id, street_address, locality, region, postal_code, country)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, u.Address.StreetAddress, u.Address.Locality, u.Address.Region,
			u.Address.PostalCode, u.Address.Country,
		)
		if err != nil {
			return fmt.Errorf("failed to create user address: %w", err)
		}
	}

	for _, clientID := range u.Clients {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_clients (user_id, client_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, u.ID, clientID); err != nil {
			return fmt.Errorf("failed to link client %s: %w", clientID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LinkClient(ctx context.Context, userID, clientID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_clients (user_id, client_id)
		SELECT id, $2 FROM users WHERE id = $1
		ON CONFLICT DO NOTHING`, userID, clientID)
	if err != nil {
		return fmt.Errorf("failed to link client: %w", err)
	}
	if tag.RowsAffected() > 0 {
		_, err = r.db.Exec(ctx, `UPDATE users SET updated_at = $2 WHERE id = $1`, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to touch user: %w", err)
		}
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
