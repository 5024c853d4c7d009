package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/aurilabs/auri/internal/models"
	"github.com/aurilabs/auri/internal/services"
	"github.com/aurilabs/auri/internal/voices"
	"github.com/google/uuid"
)

type fakeStore struct {
	users   map[uuid.UUID]*models.User
	lessons map[uuid.UUID]*models.Lesson

	createdLessons int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[uuid.UUID]*models.User),
		lessons: make(map[uuid.UUID]*models.Lesson),
	}
}

func (s *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (s *fakeStore) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	s.createdLessons++
	copied := *lesson
	s.lessons[lesson.ID] = &copied
	return nil
}

func (s *fakeStore) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	l, ok := s.lessons[id]
	if !ok {
		return nil, errors.New("lesson not found")
	}
	copied := *l
	return &copied, nil
}

func (s *fakeStore) GetLatestLessonForUser(ctx context.Context, userID uuid.UUID) (*models.Lesson, error) {
	var latest *models.Lesson
	for _, l := range s.lessons {
		if l.UserID == userID {
			latest = l
		}
	}
	if latest == nil {
		return nil, errors.New("no lessons")
	}
	return latest, nil
}

func (s *fakeStore) UpdateLessonAudio(ctx context.Context, id uuid.UUID, audioRef string) error {
	l, ok := s.lessons[id]
	if !ok {
		return errors.New("lesson not found")
	}
	l.AudioRef = &audioRef
	l.Status = models.LessonStatusComplete
	return nil
}

type fakeObjects struct {
	uploads       map[string][]byte
	uploadErr     error
	bufferedCalls int
	streamCalls   int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: make(map[string][]byte)}
}

func (o *fakeObjects) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	o.bufferedCalls++
	if o.uploadErr != nil {
		return o.uploadErr
	}
	o.uploads[path] = data
	return nil
}

func (o *fakeObjects) UploadStream(ctx context.Context, path string, r io.Reader, contentType string) error {
	o.streamCalls++
	if o.uploadErr != nil {
		return o.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.uploads[path] = data
	return nil
}

func (o *fakeObjects) LessonAudioPath(userID, lessonID uuid.UUID) string {
	return fmt.Sprintf("stories/%s/%s.mp3", userID, lessonID)
}

func (o *fakeObjects) Reference(path string) string {
	return "supabase://test-bucket/" + path
}

type fakeNotifier struct {
	sends []struct {
		to       string
		template string
		props    map[string]interface{}
	}
	err error
}

func (n *fakeNotifier) EnqueueSendEmail(ctx context.Context, to, template string, props map[string]interface{}) error {
	n.sends = append(n.sends, struct {
		to       string
		template string
		props    map[string]interface{}
	}{to, template, props})
	return n.err
}

func testPipeline(t *testing.T, store *fakeStore, objects *fakeObjects, notifier *fakeNotifier, speech services.SpeechService) *Pipeline {
	t.Helper()

	model := &fakeTextModel{response: validStoryJSON}
	generator := NewStoryGenerator(model, writePrompts(t))
	synth := NewSynthesizer(speech)

	catalog := voices.Catalog{
		"es-ES": {
			{VoiceID: "v1", Gender: models.GenderFemale},
			{VoiceID: "v2", Gender: models.GenderMale},
			{VoiceID: "v3", Gender: models.GenderFemale},
		},
	}
	assigner := voices.NewAssignerWithRand(catalog, rand.New(rand.NewSource(1)))

	return New(store, objects, generator, synth, assigner, notifier, "https://auri.app")
}

func seedUser(store *fakeStore) *models.User {
	user := &models.User{
		ID:               uuid.New(),
		Email:            "lucia@example.com",
		TargetLanguage:   "es-ES",
		NativeLanguage:   "en-US",
		ProficiencyLevel: models.LevelB1,
		IsConfirmed:      true,
	}
	store.users[user.ID] = user
	return user
}

func TestGenerateLessonEndToEnd(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	notifier := &fakeNotifier{}
	speech := &fakeSpeech{dialogue: []byte("mp3-bytes")}

	p := testPipeline(t, store, objects, notifier, speech)
	user := seedUser(store)

	lessonID, err := p.GenerateLesson(context.Background(), user.ID, true)
	if err != nil {
		t.Fatalf("GenerateLesson failed: %v", err)
	}

	lesson := store.lessons[lessonID]
	if lesson == nil {
		t.Fatal("lesson not persisted")
	}
	if lesson.Status != models.LessonStatusComplete {
		t.Errorf("expected complete status, got %s", lesson.Status)
	}

	// Every speaker left the text phase with a voice.
	for _, s := range lesson.Content.Speakers {
		if s.VoiceID == "" {
			t.Errorf("speaker %s has no voice after text phase", s.ID)
		}
	}

	// The recorded reference points at the exact uploaded object.
	wantPath := fmt.Sprintf("stories/%s/%s.mp3", user.ID, lessonID)
	if lesson.AudioRef == nil {
		t.Fatal("audio reference not recorded")
	}
	if *lesson.AudioRef != "supabase://test-bucket/"+wantPath {
		t.Errorf("unexpected audio reference: %s", *lesson.AudioRef)
	}
	if string(objects.uploads[wantPath]) != "mp3-bytes" {
		t.Errorf("uploaded audio mismatch at %s", wantPath)
	}

	// One welcome email to the subscriber.
	if len(notifier.sends) != 1 {
		t.Fatalf("expected 1 email dispatch, got %d", len(notifier.sends))
	}
	send := notifier.sends[0]
	if send.to != user.Email || send.template != services.TemplateDailyLessonEmail {
		t.Errorf("unexpected dispatch: to=%s template=%s", send.to, send.template)
	}
	if isWelcome, _ := send.props["IsWelcome"].(bool); !isWelcome {
		t.Error("welcome flag not propagated to the email")
	}
	if url, _ := send.props["LessonURL"].(string); !strings.Contains(url, lessonID.String()) {
		t.Errorf("lesson URL does not reference the lesson: %s", url)
	}
}

func TestDialogueAudioTakesStreamUploadPath(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	speech := &fakeSpeech{dialogue: []byte("mp3-dialogue")}

	p := testPipeline(t, store, objects, &fakeNotifier{}, speech)
	user := seedUser(store)

	lesson := dialogueLesson()
	lesson.UserID = user.ID
	store.lessons[lesson.ID] = lesson

	if _, err := p.GenerateStoryAudio(context.Background(), lesson.ID); err != nil {
		t.Fatalf("audio phase failed: %v", err)
	}

	if objects.streamCalls != 1 || objects.bufferedCalls != 0 {
		t.Errorf("dialogue must take the streaming path: stream=%d buffered=%d",
			objects.streamCalls, objects.bufferedCalls)
	}
}

func TestMonologueAudioTakesBufferedUploadPath(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	speech := &fakeSpeech{speechAudio: []byte("mp3-monologue")}

	p := testPipeline(t, store, objects, &fakeNotifier{}, speech)
	user := seedUser(store)

	lesson := monologueLesson(models.StabilityNatural)
	lesson.UserID = user.ID
	store.lessons[lesson.ID] = lesson

	ref, err := p.GenerateStoryAudio(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("audio phase failed: %v", err)
	}

	if objects.bufferedCalls != 1 || objects.streamCalls != 0 {
		t.Errorf("monologue must take the buffered path: buffered=%d stream=%d",
			objects.bufferedCalls, objects.streamCalls)
	}

	wantPath := fmt.Sprintf("stories/%s/%s.mp3", user.ID, lesson.ID)
	if string(objects.uploads[wantPath]) != "mp3-monologue" {
		t.Errorf("uploaded audio mismatch at %s", wantPath)
	}
	if ref != "supabase://test-bucket/"+wantPath {
		t.Errorf("unexpected reference: %s", ref)
	}
}

func TestGenerateStoryAudioUnknownLesson(t *testing.T) {
	store := newFakeStore()
	speech := &fakeSpeech{}
	p := testPipeline(t, store, newFakeObjects(), &fakeNotifier{}, speech)

	_, err := p.GenerateStoryAudio(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error for unknown lesson")
	}
	if speech.speechCalls != 0 || speech.dialogueCalls != 0 {
		t.Error("synthesis must not run when the lesson does not exist")
	}
}

func TestGenerateStoryAudioUploadFailureLeavesLessonTextOnly(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.uploadErr = errors.New("storage unavailable")
	speech := &fakeSpeech{dialogue: []byte("mp3")}

	p := testPipeline(t, store, objects, &fakeNotifier{}, speech)
	user := seedUser(store)

	lessonID, err := p.GenerateStoryText(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("text phase failed: %v", err)
	}

	if _, err := p.GenerateStoryAudio(context.Background(), lessonID); err == nil {
		t.Fatal("expected upload failure to surface")
	}

	lesson := store.lessons[lessonID]
	if lesson.AudioRef != nil {
		t.Error("audio reference recorded despite failed upload")
	}
	if lesson.Status != models.LessonStatusTextOnly {
		t.Errorf("expected text_only status, got %s", lesson.Status)
	}
}

func TestGenerateStoryAudioIsRepeatable(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	speech := &fakeSpeech{dialogue: []byte("mp3")}

	p := testPipeline(t, store, objects, &fakeNotifier{}, speech)
	user := seedUser(store)

	lessonID, err := p.GenerateStoryText(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("text phase failed: %v", err)
	}

	first, err := p.GenerateStoryAudio(context.Background(), lessonID)
	if err != nil {
		t.Fatalf("first audio phase failed: %v", err)
	}
	second, err := p.GenerateStoryAudio(context.Background(), lessonID)
	if err != nil {
		t.Fatalf("second audio phase failed: %v", err)
	}

	if first != second {
		t.Errorf("re-running the audio phase changed the reference: %s vs %s", first, second)
	}
	if store.createdLessons != 1 {
		t.Errorf("audio phase must not create lessons, created %d", store.createdLessons)
	}
}

func TestGenerateStoryTextUnknownVoiceLanguage(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(t, store, newFakeObjects(), &fakeNotifier{}, &fakeSpeech{})

	user := seedUser(store)
	user.TargetLanguage = "zz-ZZ"

	_, err := p.GenerateStoryText(context.Background(), user.ID)
	if !errors.Is(err, voices.ErrNoVoices) {
		t.Fatalf("expected ErrNoVoices, got %v", err)
	}
	if store.createdLessons != 0 {
		t.Error("lesson must not be persisted when voice assignment fails")
	}
}

func TestGenerateLessonEmailFailureDoesNotFailLesson(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{err: errors.New("redis down")}
	p := testPipeline(t, store, newFakeObjects(), notifier, &fakeSpeech{dialogue: []byte("mp3")})

	user := seedUser(store)

	lessonID, err := p.GenerateLesson(context.Background(), user.ID, false)
	if err != nil {
		t.Fatalf("lesson should survive a failed email dispatch: %v", err)
	}
	if store.lessons[lessonID] == nil {
		t.Fatal("lesson not persisted")
	}
}
