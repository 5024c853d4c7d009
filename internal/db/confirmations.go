package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aurilabs/auri/internal/models"
	"github.com/google/uuid"
)

// CreateConfirmation stores a fresh confirmation token for a user.
func (db *DB) CreateConfirmation(ctx context.Context, c *models.EmailConfirmation) error {
	query := `
		INSERT INTO email_confirmations (id, user_id, token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		c.ID, c.UserID, c.Token, c.ExpiresAt,
	).Scan(&c.CreatedAt)
}

// GetConfirmationByToken looks up an unexpired confirmation by its token.
func (db *DB) GetConfirmationByToken(ctx context.Context, token string) (*models.EmailConfirmation, error) {
	query := `
		SELECT id, user_id, token, expires_at, created_at
		FROM email_confirmations
		WHERE token = $1 AND expires_at > NOW()
	`

	c := &models.EmailConfirmation{}
	err := db.QueryRowContext(ctx, query, token).Scan(
		&c.ID, &c.UserID, &c.Token, &c.ExpiresAt, &c.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("confirmation token not found or expired")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmation: %w", err)
	}

	return c, nil
}

// DeleteConfirmationsForUser removes all outstanding tokens for a user,
// typically after a successful confirmation.
func (db *DB) DeleteConfirmationsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM email_confirmations WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete confirmations: %w", err)
	}
	return nil
}
