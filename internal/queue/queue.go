package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueGenerateLesson = "queue:generate_lesson" // full pipeline for one user
	QueueStoryAudio     = "queue:story_audio"     // audio phase only, for an existing lesson
	QueueSendEmail      = "queue:send_email"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	LessonID  *uuid.UUID             `json:"lesson_id,omitempty"`
	IsWelcome bool                   `json:"is_welcome,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateLesson enqueues the full text+audio pipeline for a user.
func (q *Queue) EnqueueGenerateLesson(ctx context.Context, userID, jobID uuid.UUID, isWelcome bool) error {
	job := &Job{
		ID:        jobID,
		Type:      "generate_lesson",
		UserID:    &userID,
		IsWelcome: isWelcome,
	}
	return q.Enqueue(ctx, QueueGenerateLesson, job)
}

// EnqueueStoryAudio enqueues the audio phase for an already-persisted lesson.
func (q *Queue) EnqueueStoryAudio(ctx context.Context, lessonID, jobID uuid.UUID) error {
	job := &Job{
		ID:       jobID,
		Type:     "story_audio",
		LessonID: &lessonID,
	}
	return q.Enqueue(ctx, QueueStoryAudio, job)
}

// EnqueueSendEmail enqueues a transactional email. Fire-and-forget from the
// caller's perspective: a lost email never fails a lesson.
func (q *Queue) EnqueueSendEmail(ctx context.Context, to, template string, props map[string]interface{}) error {
	job := &Job{
		ID:   uuid.New(),
		Type: "send_email",
		Data: map[string]interface{}{
			"to":       to,
			"template": template,
			"props":    props,
		},
	}
	return q.Enqueue(ctx, QueueSendEmail, job)
}
