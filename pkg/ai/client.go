package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one role-tagged message in a completion request.
type Message struct {
	Role    string
	Content string
}

// Roles accepted by the completion service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer generates a single text response from an ordered message list.
// jsonOnly constrains the model to emit one parseable JSON object.
type Completer interface {
	Complete(ctx context.Context, model string, msgs []Message, jsonOnly bool) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint (Groq, vLLM,
// OpenRouter, self-hosted). Errors propagate to the caller untouched; there
// is no retry policy.
type Client struct {
	client *openai.Client
}

// NewClient builds a Client. baseURL should include the /v1 prefix, e.g.
// "https://api.groq.com/openai/v1". An empty baseURL targets the OpenAI API.
func NewClient(baseURL, apiKey string) *Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if url := strings.TrimRight(strings.TrimSpace(baseURL), "/"); url != "" {
		cfg.BaseURL = url
	}
	return &Client{client: openai.NewClientWithConfig(cfg)}
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, model string, msgs []Message, jsonOnly bool) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", fmt.Errorf("completion model required")
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if jsonOnly {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from completion api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from completion api")
	}
	return text, nil
}
