package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aurilabs/auri/internal/models"
)

type fakeTextModel struct {
	response   string
	err        error
	lastPrompt string
}

func (m *fakeTextModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.lastPrompt = prompt
	return m.response, m.err
}

func writePrompts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(dir, "story_generation", "levels"), 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(rel, content string) {
		if err := os.WriteFile(filepath.Join(dir, "story_generation", rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("core.md", "# Story Generation\nRespond with JSON.")
	write(filepath.Join("levels", "b1.md"), "CEFR B1 instructions.")

	return dir
}

const validStoryJSON = `{
	"title": "El mercado de los sábados",
	"is_dialogue": true,
	"summary": "Lucia buys tomatoes and meets an old friend.",
	"speakers": [
		{"id": "Narrator", "stability": "robust"},
		{"id": "Lucia", "gender": "female"},
		{"id": "Mateo", "gender": "male"}
	],
	"segments": [
		{"speaker_id": "Narrator", "text": "Es sábado por la mañana."},
		{"speaker_id": "Lucia", "text": "¿Cuánto cuestan los tomates?", "break_after_ms": 400},
		{"speaker_id": "Mateo", "text": "Dos euros el kilo."}
	],
	"questions": [
		{"question": "¿Qué día es?", "intent": "literal"}
	]
}`

func TestGenerateValidStory(t *testing.T) {
	model := &fakeTextModel{response: validStoryJSON}
	g := NewStoryGenerator(model, writePrompts(t))

	content, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if content.Title != "El mercado de los sábados" {
		t.Errorf("unexpected title: %q", content.Title)
	}
	if !content.IsDialogue {
		t.Error("expected dialogue story")
	}
	if len(content.Speakers) != 3 || len(content.Segments) != 3 {
		t.Errorf("unexpected shape: %d speakers, %d segments", len(content.Speakers), len(content.Segments))
	}
	if _, ok := content.Speaker(models.NarratorID); !ok {
		t.Error("Narrator speaker missing after parse")
	}
}

func TestGeneratePromptContainsLevelAndContext(t *testing.T) {
	model := &fakeTextModel{response: validStoryJSON}
	g := NewStoryGenerator(model, writePrompts(t))

	_, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "Previous lesson: \"El tren\".")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, want := range []string{"Respond with JSON", "CEFR B1 instructions", "es-ES", "El tren"} {
		if !strings.Contains(model.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateMalformedOutputCarriesRaw(t *testing.T) {
	raw := "Sure! Here is your story: {not json"
	model := &fakeTextModel{response: raw}
	g := NewStoryGenerator(model, writePrompts(t))

	_, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "")
	if err == nil {
		t.Fatal("expected parse error")
	}

	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %T: %v", err, err)
	}
	if malformed.Raw != raw {
		t.Errorf("raw response not preserved: %q", malformed.Raw)
	}
}

func TestGenerateMissingNarrator(t *testing.T) {
	model := &fakeTextModel{response: `{
		"title": "t", "is_dialogue": true,
		"speakers": [{"id": "Lucia", "gender": "female"}],
		"segments": [{"speaker_id": "Lucia", "text": "Hola."}]
	}`}
	g := NewStoryGenerator(model, writePrompts(t))

	_, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "")
	if !errors.Is(err, ErrInvalidLessonStructure) {
		t.Fatalf("expected ErrInvalidLessonStructure, got %v", err)
	}
}

func TestGenerateUndeclaredSpeaker(t *testing.T) {
	model := &fakeTextModel{response: `{
		"title": "t", "is_dialogue": true,
		"speakers": [{"id": "Narrator"}],
		"segments": [{"speaker_id": "Ghost", "text": "Boo."}]
	}`}
	g := NewStoryGenerator(model, writePrompts(t))

	_, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "")
	if !errors.Is(err, ErrInvalidLessonStructure) {
		t.Fatalf("expected ErrInvalidLessonStructure, got %v", err)
	}
}

func TestGenerateEmptySegments(t *testing.T) {
	model := &fakeTextModel{response: `{
		"title": "t", "is_dialogue": false,
		"speakers": [{"id": "Narrator"}],
		"segments": []
	}`}
	g := NewStoryGenerator(model, writePrompts(t))

	_, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "")
	if !errors.Is(err, ErrInvalidLessonStructure) {
		t.Fatalf("expected ErrInvalidLessonStructure, got %v", err)
	}
}

func TestGenerateMissingLevelPrompt(t *testing.T) {
	model := &fakeTextModel{response: validStoryJSON}
	g := NewStoryGenerator(model, writePrompts(t))

	// No c1.md in the fixture dir.
	_, err := g.Generate(context.Background(), "es-ES", models.LevelC1, "")
	if !errors.Is(err, ErrMissingPrompt) {
		t.Fatalf("expected ErrMissingPrompt, got %v", err)
	}
	if model.lastPrompt != "" {
		t.Error("model must not be called when the prompt cannot be built")
	}
}

func TestGenerateModelFailure(t *testing.T) {
	model := &fakeTextModel{err: errors.New("rate limited")}
	g := NewStoryGenerator(model, writePrompts(t))

	_, err := g.Generate(context.Background(), "es-ES", models.LevelB1, "")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}
