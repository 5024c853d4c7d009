package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aurilabs/auri/internal/models"
	"github.com/aurilabs/auri/internal/services"
)

// Stability settings applied to single-voice narration. A "robust" speaker
// hint asks for more conservative, consistent delivery.
const (
	stabilityDefault = 0.5
	stabilityRobust  = 0.7
)

// Synthesizer turns a lesson's script into one audio stream. Dialogue
// lessons use one multi-speaker synthesis call; monologues use one
// single-voice call over the concatenated script. Either way the result is
// exposed as a stream so persistence has a single code path — a buffer is
// just a stream of one chunk.
type Synthesizer struct {
	speech services.SpeechService
}

func NewSynthesizer(speech services.SpeechService) *Synthesizer {
	return &Synthesizer{speech: speech}
}

// Synthesize produces the lesson's audio as a stream the caller must close.
// Voice assignment must have run already; an unassigned voice here is a
// pipeline bug, not a recoverable condition.
func (s *Synthesizer) Synthesize(ctx context.Context, lesson *models.Lesson, languageCode string) (io.ReadCloser, error) {
	if lesson.Content.IsDialogue {
		return s.synthesizeDialogue(ctx, lesson, languageCode)
	}
	return s.synthesizeMonologue(ctx, lesson, languageCode)
}

func (s *Synthesizer) synthesizeDialogue(ctx context.Context, lesson *models.Lesson, languageCode string) (io.ReadCloser, error) {
	content := &lesson.Content

	segments := make([]services.DialogueSegment, len(content.Segments))
	for i, seg := range content.Segments {
		speaker, ok := content.Speaker(seg.SpeakerID)
		if !ok || speaker.VoiceID == "" {
			return nil, fmt.Errorf("%w: no voice assigned for speaker %q",
				ErrInternalConsistency, seg.SpeakerID)
		}
		segments[i] = services.DialogueSegment{
			Text:         seg.Text,
			VoiceID:      speaker.VoiceID,
			BreakAfterMs: seg.BreakAfterMs,
		}
	}

	log.Printf("[Synthesizer] Dialogue synthesis for lesson %s (%d segments)", lesson.ID, len(segments))

	stream, err := s.speech.SynthesizeDialogue(ctx, segments, languageCode)
	if err != nil {
		return nil, fmt.Errorf("dialogue synthesis failed: %w", err)
	}

	return stream, nil
}

func (s *Synthesizer) synthesizeMonologue(ctx context.Context, lesson *models.Lesson, languageCode string) (io.ReadCloser, error) {
	content := &lesson.Content

	narrator := content.Narrator()
	if narrator == nil {
		return nil, fmt.Errorf("%w: monologue lesson has no speakers", ErrInternalConsistency)
	}
	if narrator.VoiceID == "" {
		return nil, fmt.Errorf("%w: no voice assigned for narrator %q",
			ErrInternalConsistency, narrator.ID)
	}

	texts := make([]string, len(content.Segments))
	for i, seg := range content.Segments {
		texts[i] = seg.Text
	}
	script := strings.Join(texts, " ")

	stability := stabilityDefault
	if narrator.Stability == models.StabilityRobust {
		stability = stabilityRobust
	}

	log.Printf("[Synthesizer] Monologue synthesis for lesson %s (voice=%s, scriptLen=%d)",
		lesson.ID, narrator.VoiceID, len(script))

	audio, err := s.speech.SynthesizeSpeech(ctx, script, narrator.VoiceID, stability, languageCode)
	if err != nil {
		return nil, fmt.Errorf("monologue synthesis failed: %w", err)
	}

	return io.NopCloser(bytes.NewReader(audio)), nil
}
