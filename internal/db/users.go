package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidtube/backend/internal/model"
)

// The refresh_token column holds the single active refresh token for the user,
// verbatim. An empty string means no active session.
func (db *Postgres) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS users_email_idx ON users(email)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) CreateUser(ctx context.Context, username, email, fullName, passwordHash string) (*model.User, error) {
	query := `
		INSERT INTO users (username, email, full_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, username, email, full_name, password_hash, refresh_token, created_at, updated_at
	`
	return db.scanUser(db.Pool.QueryRow(ctx, query, username, email, fullName, passwordHash))
}

// GetUserByLogin resolves an identity by username or email.
func (db *Postgres) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	query := `
		SELECT id, username, email, full_name, password_hash, refresh_token, created_at, updated_at
		FROM users
		WHERE username = $1 OR email = $1
	`
	return db.scanUser(db.Pool.QueryRow(ctx, query, login))
}

func (db *Postgres) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	query := `
		SELECT id, username, email, full_name, password_hash, refresh_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return db.scanUser(db.Pool.QueryRow(ctx, query, userID))
}

// SetRefreshToken overwrites the stored refresh token unconditionally. Login
// uses this: any previously issued refresh token for the user stops matching.
func (db *Postgres) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	query := `
		UPDATE users
		SET refresh_token = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID, token)
	return err
}

// ClearRefreshToken removes the active session. Clearing an unknown user or an
// already-empty token is not an error.
func (db *Postgres) ClearRefreshToken(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET refresh_token = '', updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID)
	return err
}

// SwapRefreshToken replaces the stored refresh token only if it still equals
// old. Returns false when another rotation (or a logout) got there first.
func (db *Postgres) SwapRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) (bool, error) {
	query := `
		UPDATE users
		SET refresh_token = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2
	`
	tag, err := db.Pool.Exec(ctx, query, userID, oldToken, newToken)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *Postgres) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID, passwordHash)
	return err
}

func (db *Postgres) scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
