package services

import "context"

// ---------------------------------------------------------------------------
// TextModel — common interface for story-text generation providers
// Both Gemini and OpenAI implement this interface so the pipeline can use
// whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// TextModel is a text-generation collaborator. Implementations must request
// structured (JSON) output; the returned string is the raw model response,
// parsed and validated by the caller.
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}
