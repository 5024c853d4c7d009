package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aurilabs/auri/internal/db"
	"github.com/aurilabs/auri/internal/models"
	"github.com/aurilabs/auri/internal/queue"
	"github.com/aurilabs/auri/internal/services"
	"github.com/aurilabs/auri/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// confirmationTTL is how long a signup confirmation link stays valid.
const confirmationTTL = 15 * time.Minute

// signedURLExpiry is the lifetime of generated audio read URLs, in seconds.
const signedURLExpiry = 3600

type Handler struct {
	db          *db.DB
	queue       *queue.Queue
	storage     *storage.Storage
	frontendURL string
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage, frontendURL string) *Handler {
	return &Handler{
		db:          database,
		queue:       q,
		storage:     stor,
		frontendURL: frontendURL,
	}
}

// CreateUser handles POST /v1/users — signs a subscriber up unconfirmed and
// emails them a confirmation link. No lesson is generated until they confirm.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if req.TargetLanguage == "" {
		respondError(w, http.StatusBadRequest, "target_language is required")
		return
	}
	if !req.ProficiencyLevel.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid proficiency_level. Allowed: A0, A1, A2, B1, B2, C1")
		return
	}

	if existing, err := h.db.GetUserByEmail(r.Context(), req.Email); err == nil && existing != nil {
		respondError(w, http.StatusConflict, "A user with this email already exists")
		return
	}

	nativeLanguage := "en-US"
	if req.NativeLanguage != nil && *req.NativeLanguage != "" {
		nativeLanguage = *req.NativeLanguage
	}

	user := &models.User{
		ID:               uuid.New(),
		Email:            req.Email,
		TargetLanguage:   req.TargetLanguage,
		NativeLanguage:   nativeLanguage,
		ProficiencyLevel: req.ProficiencyLevel,
	}

	if err := h.db.CreateUser(r.Context(), user); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := newConfirmationToken()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create confirmation")
		return
	}

	confirmation := &models.EmailConfirmation{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(confirmationTTL),
	}

	if err := h.db.CreateConfirmation(r.Context(), confirmation); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create confirmation")
		return
	}

	props := map[string]interface{}{
		"ConfirmURL": fmt.Sprintf("%s/confirm/%s", h.frontendURL, token),
	}
	if err := h.queue.EnqueueSendEmail(r.Context(), user.Email, services.TemplateConfirmEmail, props); err != nil {
		log.Printf("[API] Failed to enqueue confirmation email for %s: %v", user.Email, err)
	}

	respondJSON(w, http.StatusCreated, models.CreateUserResponse{UserID: user.ID})
}

// ConfirmUser handles POST /v1/users/confirm/{token} — marks the subscriber
// confirmed and kicks off their welcome lesson.
func (h *Handler) ConfirmUser(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "Missing confirmation token")
		return
	}

	confirmation, err := h.db.GetConfirmationByToken(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusNotFound, "Confirmation link is invalid or has expired")
		return
	}

	if err := h.db.ConfirmUser(r.Context(), confirmation.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to confirm user")
		return
	}

	if err := h.db.DeleteConfirmationsForUser(r.Context(), confirmation.UserID); err != nil {
		log.Printf("[API] Failed to clean up confirmations for user %s: %v", confirmation.UserID, err)
	}

	jobID, err := h.enqueueLesson(r, confirmation.UserID, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to start welcome lesson")
		return
	}

	respondJSON(w, http.StatusOK, models.CreateLessonResponse{JobID: jobID})
}

// GetUser handles GET /v1/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := h.db.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// UpdatePreferences handles PUT /v1/users/{id}/preferences — changes the
// language and level used for all future lessons.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req models.UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TargetLanguage == "" {
		respondError(w, http.StatusBadRequest, "target_language is required")
		return
	}
	if !req.ProficiencyLevel.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid proficiency_level. Allowed: A0, A1, A2, B1, B2, C1")
		return
	}

	if err := h.db.UpdateUserPreferences(r.Context(), userID, req.TargetLanguage, req.ProficiencyLevel); err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	user, err := h.db.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// ListUserLessons handles GET /v1/users/{id}/lessons
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListUserLessons(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountLessonsForUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count lessons")
		return
	}

	lessons, err := h.db.ListUserLessons(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list lessons")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lessons": lessons,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// CreateLesson handles POST /v1/lessons — manually triggers lesson generation
// for a confirmed user, outside the daily schedule.
func (h *Handler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.db.GetUser(r.Context(), req.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if !user.IsConfirmed {
		respondError(w, http.StatusConflict, "User has not confirmed their email")
		return
	}

	jobID, err := h.enqueueLesson(r, user.ID, false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue lesson")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateLessonResponse{JobID: jobID})
}

// GetLesson handles GET /v1/lessons/{id}. When the lesson has audio, the
// response carries a short-lived signed read URL alongside the stored
// reference.
func (h *Handler) GetLesson(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}

	lesson, err := h.db.GetLesson(r.Context(), lessonID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Lesson not found")
		return
	}

	resp := models.LessonResponse{Lesson: *lesson}

	if lesson.AudioRef != nil {
		if path, err := h.storage.PathFromReference(*lesson.AudioRef); err == nil {
			if signedURL, err := h.storage.GetSignedURL(r.Context(), path, signedURLExpiry); err == nil {
				resp.AudioURL = &signedURL
			} else {
				log.Printf("[API] Failed to sign audio URL for lesson %s: %v", lesson.ID, err)
			}
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetLessonAudio handles GET /v1/lessons/{id}/audio — serves the lesson's
// MP3 through the API. The bucket stays private and the link never expires,
// unlike the signed URL on the lesson response.
func (h *Handler) GetLessonAudio(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}

	lesson, err := h.db.GetLesson(r.Context(), lessonID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Lesson not found")
		return
	}

	if lesson.AudioRef == nil {
		respondError(w, http.StatusNotFound, "Lesson audio is not ready yet")
		return
	}

	path, err := h.storage.PathFromReference(*lesson.AudioRef)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Invalid audio reference")
		return
	}

	data, err := h.storage.Download(r.Context(), path)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to fetch audio")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// RetryLessonAudio handles POST /v1/lessons/{id}/audio — re-enqueues the
// audio phase for a lesson stuck in text_only after an audio failure. The
// text phase is not re-run.
func (h *Handler) RetryLessonAudio(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}

	lesson, err := h.db.GetLesson(r.Context(), lessonID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Lesson not found")
		return
	}

	if lesson.AudioRef != nil {
		respondError(w, http.StatusConflict, "Lesson audio already exists")
		return
	}

	job := &models.Job{
		ID:       uuid.New(),
		UserID:   &lesson.UserID,
		LessonID: &lesson.ID,
		Type:     "story_audio",
		Status:   models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueStoryAudio(r.Context(), lesson.ID, job.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateLessonResponse{JobID: job.ID})
}

// GetQueueStats handles GET /v1/queues — reports the depth of each work
// queue, for dashboards and capacity checks.
func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]int64, 3)
	for _, name := range []string{queue.QueueGenerateLesson, queue.QueueStoryAudio, queue.QueueSendEmail} {
		length, err := h.queue.GetQueueLength(r.Context(), name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to read queue length")
			return
		}
		stats[name] = length
	}

	respondJSON(w, http.StatusOK, stats)
}

// CompleteLesson handles POST /v1/lessons/{id}/complete — records that the
// subscriber finished today's lesson and advances their streak. Completing a
// second lesson on the same UTC day is a no-op.
func (h *Handler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}

	lesson, err := h.db.GetLesson(r.Context(), lessonID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Lesson not found")
		return
	}

	user, err := h.db.GetUser(r.Context(), lesson.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	// One clock read: today and yesterday must come from the same instant or
	// a request spanning midnight could compare against mismatched days.
	now := time.Now().UTC()
	today := now.Format("2006-01-02")

	if user.LastCompletedDate != nil && *user.LastCompletedDate == today {
		respondJSON(w, http.StatusOK, models.CompleteLessonResponse{Streak: user.Streak})
		return
	}

	streak := nextStreak(user.Streak, user.LastCompletedDate, now)

	if err := h.db.UpdateUserStreak(r.Context(), user.ID, streak, today); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update streak")
		return
	}

	respondJSON(w, http.StatusOK, models.CompleteLessonResponse{Streak: streak})
}

// nextStreak returns the streak earned by a completion at now: extended when
// the previous completion was the day before, otherwise restarted at 1.
// Same-day repeats are the caller's no-op case.
func nextStreak(current int, lastCompleted *string, now time.Time) int {
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	if lastCompleted != nil && *lastCompleted == yesterday {
		return current + 1
	}
	return 1
}

// GetJob handles GET /v1/jobs/{id} — exposes pipeline job status for
// debugging and polling.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.db.GetJob(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// enqueueLesson creates the job record and pushes the generate_lesson queue
// entry, returning the job id for polling.
func (h *Handler) enqueueLesson(r *http.Request, userID uuid.UUID, isWelcome bool) (uuid.UUID, error) {
	job := &models.Job{
		ID:     uuid.New(),
		UserID: &userID,
		Type:   "generate_lesson",
		Status: models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := h.queue.EnqueueGenerateLesson(r.Context(), userID, job.ID, isWelcome); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job.ID, nil
}

func newConfirmationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
