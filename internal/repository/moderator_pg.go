package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type PostgresModeratorRepo struct {
	db *sqlx.DB
}

func NewPostgresModeratorRepo(db *sqlx.DB) *PostgresModeratorRepo {
	repo := &PostgresModeratorRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

// GetRole returns the moderator role for a user, or "" when the user has no
// moderator row. Absence is not an error.
func (r *PostgresModeratorRepo) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := r.db.QueryRowxContext(ctx, `SELECT role FROM moderators WHERE user_id = $1 LIMIT 1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (r *PostgresModeratorRepo) SetRole(ctx context.Context, userID, role string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO moderators (user_id, role, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET role = $2, updated_at = $3
	`, userID, role, time.Now().UTC())
	return err
}

func (r *PostgresModeratorRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS moderators (
			user_id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			updated_at TIMESTAMPTZ
		)
	`)
	return err
}
