package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// ElevenLabs Speech Synthesis Service
// Converts lesson scripts into audio via the ElevenLabs REST API.
// Model: eleven_multilingual_v2 (29 languages, best quality for learning content)
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsModel        = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128" // High-quality MP3
)

// DialogueSegment is one speaker turn handed to multi-speaker synthesis.
// Order is significant: the API renders segments in the order given.
type DialogueSegment struct {
	Text         string
	VoiceID      string
	BreakAfterMs int // silence inserted after this turn
}

// SpeechService is the synthesis collaborator the pipeline depends on.
// SynthesizeSpeech returns a complete buffer (single-voice narration is
// short); SynthesizeDialogue returns a stream the caller must close.
type SpeechService interface {
	SynthesizeSpeech(ctx context.Context, text, voiceID string, stability float64, languageCode string) ([]byte, error)
	SynthesizeDialogue(ctx context.Context, segments []DialogueSegment, languageCode string) (io.ReadCloser, error)
}

// ElevenLabsService implements SpeechService against the ElevenLabs API.
type ElevenLabsService struct {
	apiKey string
	client *http.Client
}

// Ensure ElevenLabsService implements SpeechService at compile time.
var _ SpeechService = (*ElevenLabsService)(nil)

func NewElevenLabsService(apiKey string) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

type elevenLabsTTSRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	LanguageCode  string                   `json:"language_code,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsDialogueRequest struct {
	Inputs       []elevenLabsDialogueInput `json:"inputs"`
	ModelID      string                    `json:"model_id"`
	LanguageCode string                    `json:"language_code,omitempty"`
}

type elevenLabsDialogueInput struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// SynthesizeSpeech converts a single-voice script to audio and returns the
// complete MP3 buffer.
func (s *ElevenLabsService) SynthesizeSpeech(ctx context.Context, text, voiceID string, stability float64, languageCode string) ([]byte, error) {
	reqBody := elevenLabsTTSRequest{
		Text:         text,
		ModelID:      elevenLabsModel,
		LanguageCode: languageCode,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       stability,
			SimilarityBoost: 0.75,
			Style:           0,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, voiceID, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Synthesizing speech (voiceID=%s, lang=%s, stability=%.2f, textLen=%d)",
		voiceID, languageCode, stability, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	// The response body IS the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	log.Printf("[ElevenLabs] Speech synthesized (%d bytes)", len(audioData))
	return audioData, nil
}

// SynthesizeDialogue converts ordered multi-speaker turns to audio via the
// text-to-dialogue streaming endpoint. The returned stream is the raw MP3
// body; the caller owns closing it. Pauses are expressed with break tags,
// which ElevenLabs honors inline.
func (s *ElevenLabsService) SynthesizeDialogue(ctx context.Context, segments []DialogueSegment, languageCode string) (io.ReadCloser, error) {
	inputs := make([]elevenLabsDialogueInput, len(segments))
	for i, seg := range segments {
		text := seg.Text
		if seg.BreakAfterMs > 0 {
			text += fmt.Sprintf(` <break time="%.2fs" />`, float64(seg.BreakAfterMs)/1000.0)
		}
		inputs[i] = elevenLabsDialogueInput{
			Text:    text,
			VoiceID: seg.VoiceID,
		}
	}

	reqBody := elevenLabsDialogueRequest{
		Inputs:       inputs,
		ModelID:      elevenLabsModel,
		LanguageCode: languageCode,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs dialogue request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-dialogue/stream?output_format=%s",
		elevenLabsBaseURL, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs dialogue request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Synthesizing dialogue (segments=%d, lang=%s)", len(segments), languageCode)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs dialogue request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ElevenLabs dialogue returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}
