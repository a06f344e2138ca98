package devserver

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// LiveAgent streams real model output through the dev server instead of the
// scripted turn. Authentication comes from the environment (GEMINI_API_KEY).
type LiveAgent struct {
	client *genai.Client
	model  string
}

// NewLiveAgent connects to Gemini. Model defaults to gemini-2.5-flash when
// empty.
func NewLiveAgent(ctx context.Context, model string) (*LiveAgent, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &LiveAgent{client: client, model: model}, nil
}

// Stream generates a response for prompt and writes it out as wire frames:
// an answer start, one delta per model chunk, then the closing ask and done.
func (a *LiveAgent) Stream(ctx context.Context, prompt string, write func(payload interface{}) error) error {
	if err := write(map[string]interface{}{"type": "ask_start"}); err != nil {
		return err
	}

	for chunk, err := range a.client.Models.GenerateContentStream(ctx, a.model, genai.Text(prompt), nil) {
		if err != nil {
			// Surface the failure to the client as a stream error event.
			_ = write(map[string]interface{}{"type": "error", "message": err.Error()})
			return fmt.Errorf("model stream failed: %w", err)
		}
		text := chunk.Text()
		if text == "" {
			continue
		}
		if err := write(map[string]interface{}{"type": "ask_delta", "text": text}); err != nil {
			return err
		}
	}

	if err := write(map[string]interface{}{"type": "ask", "message": "", "requiresConfirmation": false}); err != nil {
		return err
	}
	return write(map[string]interface{}{"type": "done"})
}
