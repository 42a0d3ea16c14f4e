// Package llm wraps chat completion against an OpenAI-compatible
// endpoint.
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Chat produces completions with deterministic sampling so identical
// prompts over identical retrieved context answer the same way.
type Chat struct {
	client *openai.Client
	model  string
}

// NewChat creates a chat client for the given model.
func NewChat(client *openai.Client, model string) *Chat {
	return &Chat{
		client: client,
		model:  model,
	}
}

// Complete sends a single-turn prompt and returns the generated text.
// Temperature is pinned to zero.
func (c *Chat) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       c.model,
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
