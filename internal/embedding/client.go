// Package embedding generates vector embeddings through an
// OpenAI-compatible endpoint, typically a local model server.
package embedding

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI-compatible API client used for both
// embeddings and chat completions.
type Client struct {
	client *openai.Client
}

// NewClient creates a client for the server at baseURL. Local model
// servers usually accept any non-empty API key.
func NewClient(baseURL, apiKey string) *Client {
	if apiKey == "" {
		apiKey = "local"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &Client{client: &client}
}

// Client returns the underlying API client for use in other packages
// (e.g. chat completion).
func (c *Client) Client() *openai.Client {
	return c.client
}
