package services

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

const geminiModel = "gemini-3-pro-preview"

// GeminiService generates story text via the Gemini API. Preferred provider;
// OpenAI is the legacy fallback when no Gemini key is configured.
type GeminiService struct {
	client *genai.Client
}

// Ensure GeminiService implements TextModel at compile time.
var _ TextModel = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, apiKey string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiService{client: client}, nil
}

// GenerateText sends the prompt to Gemini requesting a JSON response and
// returns the raw response text.
func (s *GeminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	log.Printf("[Gemini] Generating story text (model=%s, promptLen=%d)", geminiModel, len(prompt))

	resp, err := s.client.Models.GenerateContent(ctx, geminiModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}

	log.Printf("[Gemini] Story text generated (%d bytes)", len(text))
	return text, nil
}
