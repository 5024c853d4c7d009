package services

import (
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

const openAIModel = "gpt-5-mini"

// OpenAIService generates story text via OpenAI chat completions in JSON
// mode. Fallback provider when Gemini is not configured.
type OpenAIService struct {
	client *openai.Client
}

// Ensure OpenAIService implements TextModel at compile time.
var _ TextModel = (*OpenAIService)(nil)

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// GenerateText sends the prompt as a single user message with JSON mode
// enabled and returns the raw response content.
func (s *OpenAIService) GenerateText(ctx context.Context, prompt string) (string, error) {
	log.Printf("[OpenAI] Generating story text (model=%s, promptLen=%d)", openAIModel, len(prompt))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[OpenAI] Story text generated (%d bytes)", len(content))
	return content, nil
}
