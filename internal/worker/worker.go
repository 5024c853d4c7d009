package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aurilabs/auri/internal/db"
	"github.com/aurilabs/auri/internal/models"
	"github.com/aurilabs/auri/internal/pipeline"
	"github.com/aurilabs/auri/internal/queue"
	"github.com/aurilabs/auri/internal/services"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// finishedJobRetention is how long terminal job rows are kept for debugging
// before the nightly prune removes them.
const finishedJobRetention = 7 * 24 * time.Hour

type Worker struct {
	db       *db.DB
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
	mailer   services.Mailer
	cronHour int // UTC hour of the daily lesson fan-out
}

func New(database *db.DB, q *queue.Queue, p *pipeline.Pipeline, mailer services.Mailer, cronHour int) *Worker {
	return &Worker{
		db:       database,
		queue:    q,
		pipeline: p,
		mailer:   mailer,
		cronHour: cronHour,
	}
}

// Start begins processing jobs from all queues and runs the daily scheduler.
// Blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(ctx, queue.QueueGenerateLesson, w.handleGenerateLesson)
			return nil
		})
		g.Go(func() error {
			w.processQueue(ctx, queue.QueueStoryAudio, w.handleStoryAudio)
			return nil
		})
		g.Go(func() error {
			w.processQueue(ctx, queue.QueueSendEmail, w.handleSendEmail)
			return nil
		})
	}

	g.Go(func() error {
		w.runDailyScheduler(ctx)
		return nil
	})

	_ = g.Wait()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s)", job.ID, job.Type)

			if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
				log.Printf("Failed to update job status: %v", err)
			}

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				if dbErr := w.db.UpdateJobError(ctx, job.ID, err.Error()); dbErr != nil {
					log.Printf("Failed to record job error: %v", dbErr)
				}
			} else {
				log.Printf("Job %s completed successfully", job.ID)
				if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded); err != nil {
					log.Printf("Failed to update job status: %v", err)
				}
			}
		}
	}
}

// handleGenerateLesson runs the full text+audio pipeline for one user and
// links the produced lesson to the job record.
func (w *Worker) handleGenerateLesson(ctx context.Context, job *queue.Job) error {
	if job.UserID == nil {
		return fmt.Errorf("generate_lesson job %s has no user id", job.ID)
	}

	lessonID, err := w.pipeline.GenerateLesson(ctx, *job.UserID, job.IsWelcome)
	if err != nil {
		return err
	}

	if err := w.db.SetJobLesson(ctx, job.ID, lessonID); err != nil {
		log.Printf("Failed to link job %s to lesson %s: %v", job.ID, lessonID, err)
	}

	return nil
}

// handleStoryAudio re-runs the audio phase for an already-persisted lesson.
// Used to recover lessons stuck in text_only after an audio failure.
func (w *Worker) handleStoryAudio(ctx context.Context, job *queue.Job) error {
	if job.LessonID == nil {
		return fmt.Errorf("story_audio job %s has no lesson id", job.ID)
	}

	_, err := w.pipeline.GenerateStoryAudio(ctx, *job.LessonID)
	return err
}

func (w *Worker) handleSendEmail(ctx context.Context, job *queue.Job) error {
	to, _ := job.Data["to"].(string)
	templateName, _ := job.Data["template"].(string)
	if to == "" || templateName == "" {
		return fmt.Errorf("send_email job %s missing to/template", job.ID)
	}

	props, _ := job.Data["props"].(map[string]interface{})
	return w.mailer.Send(ctx, to, templateName, props)
}

// runDailyScheduler sleeps until the configured UTC hour, fans a
// generate_lesson job out to every confirmed user, prunes old job rows, and
// repeats. A missed tick (process down at the hour) is not made up; the next
// day's run covers it.
func (w *Worker) runDailyScheduler(ctx context.Context) {
	for {
		next := nextRunAfter(time.Now().UTC(), w.cronHour)
		log.Printf("[Scheduler] Next daily fan-out at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		w.runDailyFanOut(ctx)

		if pruned, err := w.db.PruneFinishedJobs(ctx, time.Now().Add(-finishedJobRetention)); err != nil {
			log.Printf("[Scheduler] Failed to prune jobs: %v", err)
		} else if pruned > 0 {
			log.Printf("[Scheduler] Pruned %d finished jobs", pruned)
		}
	}
}

// runDailyFanOut enqueues one lesson generation per confirmed user. Each user
// is independent: a failed enqueue is logged and the fan-out continues.
func (w *Worker) runDailyFanOut(ctx context.Context) {
	users, err := w.db.ListConfirmedUsers(ctx)
	if err != nil {
		log.Printf("[Scheduler] Failed to list confirmed users: %v", err)
		return
	}

	log.Printf("[Scheduler] Daily fan-out: %d confirmed users", len(users))

	for i := range users {
		user := &users[i]
		if err := w.enqueueLessonJob(ctx, user.ID, false); err != nil {
			log.Printf("[Scheduler] Failed to enqueue lesson for user %s: %v", user.ID, err)
		}
	}
}

// enqueueLessonJob creates the job record and pushes the queue entry. The row
// exists before the push so a consumed job always has somewhere to report.
func (w *Worker) enqueueLessonJob(ctx context.Context, userID uuid.UUID, isWelcome bool) error {
	job := &models.Job{
		ID:     uuid.New(),
		UserID: &userID,
		Type:   "generate_lesson",
		Status: models.JobStatusQueued,
	}

	if err := w.db.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}

	return w.queue.EnqueueGenerateLesson(ctx, userID, job.ID, isWelcome)
}

// nextRunAfter returns the first occurrence of hourUTC strictly after now.
func nextRunAfter(now time.Time, hourUTC int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
