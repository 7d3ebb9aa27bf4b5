package llm

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client for OpenAI-compatible chat completion APIs
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client bound to cfg's API key, base URL and title.
// Model, temperature and token limit are taken from the config passed to each call.
func NewOpenAIClient(cfg GenerationConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Title != "" {
		clientConfig.HTTPClient = &http.Client{
			Transport: &headerTransport{
				base:    http.DefaultTransport,
				headers: map[string]string{"X-Title": cfg.Title},
			},
		}
	}

	return &OpenAIClient{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Generate sends a single user message and returns the first choice's content
func (c *OpenAIClient) Generate(ctx context.Context, prompt, data string, cfg GenerationConfig) (string, error) {
	if cfg.Model == "" {
		return "", fmt.Errorf("no model configured")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildMessage(prompt, data),
			},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the HTTP client holds no per-client resources
func (c *OpenAIClient) Close() error {
	return nil
}

// headerTransport adds fixed headers to every request
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
