package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/aurilabs/auri/internal/models"
	"github.com/aurilabs/auri/internal/services"
	"github.com/aurilabs/auri/internal/voices"
	"github.com/google/uuid"
)

// Store is the slice of lesson persistence the pipeline needs.
// *db.DB satisfies it; tests supply fakes.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	GetLatestLessonForUser(ctx context.Context, userID uuid.UUID) (*models.Lesson, error)
	UpdateLessonAudio(ctx context.Context, id uuid.UUID, audioRef string) error
}

// ObjectStore is the slice of audio storage the pipeline needs.
// *storage.Storage satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	UploadStream(ctx context.Context, path string, r io.Reader, contentType string) error
	LessonAudioPath(userID, lessonID uuid.UUID) string
	Reference(path string) string
}

// Notifier dispatches the daily-lesson email. Dispatch is acknowledged but
// the delivery outcome is not awaited.
type Notifier interface {
	EnqueueSendEmail(ctx context.Context, to, template string, props map[string]interface{}) error
}

// Pipeline turns a subscriber's preferences into a persisted audio lesson in
// two phases. Each phase is an independently retryable unit: the text phase
// ends with a text-only lesson row, and the audio phase can be re-run against
// that row without regenerating the story.
type Pipeline struct {
	store       Store
	objects     ObjectStore
	generator   *StoryGenerator
	synth       *Synthesizer
	assigner    *voices.Assigner
	notifier    Notifier
	frontendURL string
}

func New(
	store Store,
	objects ObjectStore,
	generator *StoryGenerator,
	synth *Synthesizer,
	assigner *voices.Assigner,
	notifier Notifier,
	frontendURL string,
) *Pipeline {
	return &Pipeline{
		store:       store,
		objects:     objects,
		generator:   generator,
		synth:       synth,
		assigner:    assigner,
		notifier:    notifier,
		frontendURL: frontendURL,
	}
}

// GenerateStoryText is the text phase: generate the story, assign voices,
// persist the lesson with no audio reference. Returns the new lesson id.
func (p *Pipeline) GenerateStoryText(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	// Feed the previous lesson back in so consecutive stories connect.
	previousContext := ""
	if prev, err := p.store.GetLatestLessonForUser(ctx, userID); err == nil {
		previousContext = fmt.Sprintf("Previous lesson: %q.", prev.Title)
		if prev.Content.Summary != "" {
			previousContext += " " + prev.Content.Summary
		}
	}

	content, err := p.generator.Generate(ctx, user.TargetLanguage, user.ProficiencyLevel, previousContext)
	if err != nil {
		return uuid.Nil, err
	}

	refs := make([]voices.SpeakerRef, len(content.Speakers))
	for i, s := range content.Speakers {
		refs[i] = voices.SpeakerRef{ID: s.ID, Gender: s.Gender}
	}

	assigned, err := p.assigner.Assign(user.TargetLanguage, refs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("voice assignment failed: %w", err)
	}

	for i := range content.Speakers {
		content.Speakers[i].VoiceID = assigned[content.Speakers[i].ID]
	}

	lesson := &models.Lesson{
		ID:               uuid.New(),
		UserID:           user.ID,
		Title:            content.Title,
		ProficiencyLevel: user.ProficiencyLevel,
		Content:          *content,
		Status:           models.LessonStatusTextOnly,
	}

	if err := p.store.CreateLesson(ctx, lesson); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist lesson: %w", err)
	}

	log.Printf("[Pipeline] Text phase complete for user %s: lesson %s (%q)", userID, lesson.ID, lesson.Title)
	return lesson.ID, nil
}

// GenerateStoryAudio is the audio phase: load the persisted lesson,
// synthesize its script, stream the audio to storage, and record the
// reference on the lesson row. Returns the storage reference.
func (p *Pipeline) GenerateStoryAudio(ctx context.Context, lessonID uuid.UUID) (string, error) {
	lesson, err := p.store.GetLesson(ctx, lessonID)
	if err != nil {
		return "", fmt.Errorf("failed to get lesson %s: %w", lessonID, err)
	}

	user, err := p.store.GetUser(ctx, lesson.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to get user %s: %w", lesson.UserID, err)
	}

	stream, err := p.synth.Synthesize(ctx, lesson, user.TargetLanguage)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	ref, err := p.persistAudio(ctx, stream, lesson)
	if err != nil {
		return "", err
	}

	if err := p.store.UpdateLessonAudio(ctx, lesson.ID, ref); err != nil {
		return "", fmt.Errorf("failed to record audio reference: %w", err)
	}

	log.Printf("[Pipeline] Audio phase complete for lesson %s: %s", lesson.ID, ref)
	return ref, nil
}

// persistAudio moves the synthesized audio into object storage and returns
// the reference. The reference is only returned after the upload has been
// confirmed — a failed transfer never produces a partial reference.
//
// Dialogue audio arrives as a provider stream that can be consumed once, so
// it takes the single-shot streaming PUT. Monologue audio is already a
// complete buffer, so it takes the retried buffered upload.
func (p *Pipeline) persistAudio(ctx context.Context, stream io.Reader, lesson *models.Lesson) (string, error) {
	path := p.objects.LessonAudioPath(lesson.UserID, lesson.ID)

	if lesson.Content.IsDialogue {
		if err := p.objects.UploadStream(ctx, path, stream, "audio/mpeg"); err != nil {
			return "", fmt.Errorf("audio upload failed: %w", err)
		}
		return p.objects.Reference(path), nil
	}

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if err := p.objects.Upload(ctx, path, data, "audio/mpeg"); err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}

	return p.objects.Reference(path), nil
}

// GenerateLesson is the coordinator: text phase, then audio phase, then the
// notification dispatch. A failed phase aborts the rest; the job runner owns
// retries. The email is fire-and-forget — a dispatch failure is logged, not
// surfaced, because a lost email should never fail a generated lesson.
func (p *Pipeline) GenerateLesson(ctx context.Context, userID uuid.UUID, isWelcome bool) (uuid.UUID, error) {
	lessonID, err := p.GenerateStoryText(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := p.GenerateStoryAudio(ctx, lessonID); err != nil {
		return uuid.Nil, err
	}

	lesson, err := p.store.GetLesson(ctx, lessonID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to reload lesson %s: %w", lessonID, err)
	}

	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	lessonURL := fmt.Sprintf("%s/lessons/%s", p.frontendURL, lessonID)
	props := map[string]interface{}{
		"Title":     lesson.Title,
		"LessonURL": lessonURL,
		"IsWelcome": isWelcome,
	}

	if err := p.notifier.EnqueueSendEmail(ctx, user.Email, services.TemplateDailyLessonEmail, props); err != nil {
		log.Printf("[Pipeline] WARNING — failed to dispatch lesson email for %s: %v", user.Email, err)
	}

	return lessonID, nil
}
