package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aurilabs/auri/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, user_id, lesson_id, type, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.UserID, job.LessonID, job.Type, job.Status, job.Attempts,
	).Scan(&job.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT id, user_id, lesson_id, type, status, attempts,
		       started_at, finished_at, error_message, created_at
		FROM jobs
		WHERE id = $1
	`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.LessonID, &job.Type, &job.Status,
		&job.Attempts, &job.StartedAt, &job.FinishedAt, &job.ErrorMessage,
		&job.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	var query string
	switch status {
	case models.JobStatusRunning:
		query = `UPDATE jobs SET status = $1, started_at = NOW(), attempts = attempts + 1 WHERE id = $2`
	case models.JobStatusSucceeded, models.JobStatusFailed:
		query = `UPDATE jobs SET status = $1, finished_at = NOW() WHERE id = $2`
	default:
		query = `UPDATE jobs SET status = $1 WHERE id = $2`
	}

	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

func (db *DB) UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, finished_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, id)
	return err
}

// SetJobLesson links a job to the lesson it produced (set once Phase A has
// persisted the row, so the audio phase can be retried with the same lesson).
func (db *DB) SetJobLesson(ctx context.Context, id, lessonID uuid.UUID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET lesson_id = $1 WHERE id = $2`, lessonID, id)
	return err
}

// PruneFinishedJobs deletes terminal job rows older than the cutoff.
func (db *DB) PruneFinishedJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return result.RowsAffected()
}
