// Package groq implements the streaming llms contract against an
// OpenAI-compatible chat completions endpoint.
package groq

import (
	"context"
	"fmt"
	"os"

	"github.com/jinzhu/copier"
	"github.com/voxloop/duplex-core/core/llms"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.1-8b-instant"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		model:   defaultModel,
		baseURL: defaultURL,
	}
	if apiKey, ok := os.LookupEnv("GROQ_API_KEY"); ok {
		client.apiKey = apiKey
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		return nil, fmt.Errorf("groq api key not found")
	}

	return client, nil
}

// PromptWithStream prepares a streaming completion; nothing is sent until the
// returned stream is iterated.
func (c *Client) PromptWithStream(_ context.Context, opts ...llms.PromptOption) llms.Stream {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var history []llms.Message
	copier.Copy(&history, options.History)

	return &Stream{
		apiKey:      c.apiKey,
		baseURL:     c.baseURL,
		model:       c.model,
		messages:    toMessages(options.Instructions, history),
		maxTokens:   options.MaxTokens,
		temperature: options.Temperature,
	}
}

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(instructions string, history []llms.Message) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}

	for _, entry := range history {
		messages = append(messages, message{
			Role:    messageRole(entry.Role),
			Content: entry.Content,
		})
	}

	return messages
}
