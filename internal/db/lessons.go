package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aurilabs/auri/internal/models"
	"github.com/google/uuid"
)

const lessonColumns = `
	id, user_id, title, proficiency_level, content_json, status, audio_ref, created_at
`

// CreateLesson inserts a text-only lesson at the end of Phase A.
// The audio reference stays NULL until the audio phase completes.
func (db *DB) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	query := `
		INSERT INTO lessons (id, user_id, title, proficiency_level, content_json, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		lesson.ID, lesson.UserID, lesson.Title, lesson.ProficiencyLevel,
		lesson.Content, lesson.Status,
	).Scan(&lesson.CreatedAt)
}

// GetLesson retrieves a lesson by id.
func (db *DB) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`

	lesson := &models.Lesson{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&lesson.ID, &lesson.UserID, &lesson.Title, &lesson.ProficiencyLevel,
		&lesson.Content, &lesson.Status, &lesson.AudioRef, &lesson.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lesson not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	return lesson, nil
}

// GetLatestLessonForUser returns the user's most recent lesson, or a
// "no lessons" error when the user has none yet.
func (db *DB) GetLatestLessonForUser(ctx context.Context, userID uuid.UUID) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`

	lesson := &models.Lesson{}
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&lesson.ID, &lesson.UserID, &lesson.Title, &lesson.ProficiencyLevel,
		&lesson.Content, &lesson.Status, &lesson.AudioRef, &lesson.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no lessons for user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest lesson: %w", err)
	}

	return lesson, nil
}

// ListUserLessons returns lessons for a user, newest first.
func (db *DB) ListUserLessons(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []models.Lesson
	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Title, &l.ProficiencyLevel,
			&l.Content, &l.Status, &l.AudioRef, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}

	return lessons, rows.Err()
}

// CountLessonsForUser reports how many lessons a user has. Used to decide
// whether a freshly generated lesson is the subscriber's first.
func (db *DB) CountLessonsForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lessons WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count lessons: %w", err)
	}
	return count, nil
}

// UpdateLessonAudio records the storage reference and marks the lesson
// complete. This is the single mutation the audio phase performs.
func (db *DB) UpdateLessonAudio(ctx context.Context, id uuid.UUID, audioRef string) error {
	query := `
		UPDATE lessons
		SET audio_ref = $1, status = $2
		WHERE id = $3
	`
	result, err := db.ExecContext(ctx, query, audioRef, models.LessonStatusComplete, id)
	if err != nil {
		return fmt.Errorf("failed to update lesson audio: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}
