package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aurilabs/auri/internal/models"
	"github.com/google/uuid"
)

const userColumns = `
	id, email, target_language, native_language, proficiency_level,
	streak, is_confirmed, last_completed_date, created_at, updated_at
`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.TargetLanguage, &user.NativeLanguage,
		&user.ProficiencyLevel, &user.Streak, &user.IsConfirmed,
		&user.LastCompletedDate, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new subscriber record.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, target_language, native_language, proficiency_level, is_confirmed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		user.ID, user.Email, user.TargetLanguage, user.NativeLanguage,
		user.ProficiencyLevel, user.IsConfirmed,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

// GetUser retrieves a user by id.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(db.QueryRowContext(ctx, query, email))
}

// ListConfirmedUsers returns every subscriber eligible for the daily lesson.
func (db *DB) ListConfirmedUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_confirmed = TRUE ORDER BY created_at`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.TargetLanguage, &u.NativeLanguage,
			&u.ProficiencyLevel, &u.Streak, &u.IsConfirmed,
			&u.LastCompletedDate, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// ConfirmUser marks the subscription as confirmed.
func (db *DB) ConfirmUser(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_confirmed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to confirm user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// UpdateUserPreferences changes the target language and level.
func (db *DB) UpdateUserPreferences(ctx context.Context, id uuid.UUID, language string, level models.ProficiencyLevel) error {
	query := `
		UPDATE users
		SET target_language = $1, proficiency_level = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := db.ExecContext(ctx, query, language, level, id)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// UpdateUserStreak stores the new streak and the completion date that earned it.
func (db *DB) UpdateUserStreak(ctx context.Context, id uuid.UUID, streak int, completedDate string) error {
	query := `
		UPDATE users
		SET streak = $1, last_completed_date = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, streak, completedDate, id)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}
