package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aurilabs/auri/internal/models"
	"github.com/aurilabs/auri/internal/services"
)

// StoryGenerator assembles the story prompt, calls the configured text model,
// and parses its output into the lesson shape. Parsing is strict: the model's
// response is either a valid lesson or an error — never silently defaulted.
type StoryGenerator struct {
	model      services.TextModel
	promptsDir string
}

func NewStoryGenerator(model services.TextModel, promptsDir string) *StoryGenerator {
	return &StoryGenerator{
		model:      model,
		promptsDir: promptsDir,
	}
}

// Generate produces a validated lesson for the given language and level.
// previousContext, when non-empty, is a compact summary of the user's last
// lesson so stories can carry continuity day to day.
func (g *StoryGenerator) Generate(ctx context.Context, languageCode string, level models.ProficiencyLevel, previousContext string) (*models.LessonContent, error) {
	prompt, err := g.buildPrompt(languageCode, level, previousContext)
	if err != nil {
		return nil, err
	}

	raw, err := g.model.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}

	content, err := parseLessonContent(raw)
	if err != nil {
		return nil, err
	}

	if err := validateLessonContent(content); err != nil {
		return nil, err
	}

	log.Printf("[Generator] Story generated: %q (%d speakers, %d segments, dialogue=%v)",
		content.Title, len(content.Speakers), len(content.Segments), content.IsDialogue)

	return content, nil
}

// buildPrompt joins the core instructions, the level-specific instructions,
// and the context block. A missing prompt file is a configuration error, not
// a silent default.
func (g *StoryGenerator) buildPrompt(languageCode string, level models.ProficiencyLevel, previousContext string) (string, error) {
	corePath := filepath.Join(g.promptsDir, "story_generation", "core.md")
	core, err := os.ReadFile(corePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMissingPrompt, corePath, err)
	}

	levelPath := filepath.Join(g.promptsDir, "story_generation", "levels",
		strings.ToLower(string(level))+".md")
	levelInstructions, err := os.ReadFile(levelPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMissingPrompt, levelPath, err)
	}

	var b strings.Builder
	b.Write(core)
	b.WriteString("\n\n---\n\n## Level Instructions (")
	b.WriteString(string(level))
	b.WriteString(")\n")
	b.Write(levelInstructions)
	b.WriteString("\n\n---\n\n## Context\nTarget Language: ")
	b.WriteString(languageCode)
	b.WriteString("\n")
	if previousContext != "" {
		b.WriteString("PAST LESSON CONTEXT:\n")
		b.WriteString(previousContext)
		b.WriteString("\n")
	}
	b.WriteString("\nGenerate the story JSON.\n")

	return b.String(), nil
}

func parseLessonContent(raw string) (*models.LessonContent, error) {
	var content models.LessonContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		const maxLogLen = 2000
		if len(raw) > maxLogLen {
			log.Printf("[Generator] parse failed, raw response (truncated): %s...", raw[:maxLogLen])
		} else {
			log.Printf("[Generator] parse failed, raw response: %s", raw)
		}
		return nil, &MalformedOutputError{Raw: raw, Err: err}
	}
	return &content, nil
}

// validateLessonContent enforces the structural invariants the rest of the
// pipeline assumes: a Narrator speaker exists, at least one segment, and
// every segment's speaker id is declared.
func validateLessonContent(content *models.LessonContent) error {
	if len(content.Speakers) == 0 {
		return fmt.Errorf("%w: no speakers declared", ErrInvalidLessonStructure)
	}

	if _, ok := content.Speaker(models.NarratorID); !ok {
		return fmt.Errorf("%w: %q speaker is missing", ErrInvalidLessonStructure, models.NarratorID)
	}

	if len(content.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidLessonStructure)
	}

	for i, seg := range content.Segments {
		if seg.Text == "" {
			return fmt.Errorf("%w: segment %d has empty text", ErrInvalidLessonStructure, i)
		}
		if _, ok := content.Speaker(seg.SpeakerID); !ok {
			return fmt.Errorf("%w: segment %d references undeclared speaker %q",
				ErrInvalidLessonStructure, i, seg.SpeakerID)
		}
	}

	return nil
}
