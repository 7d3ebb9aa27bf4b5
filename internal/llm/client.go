package llm

import (
	"context"
	"fmt"
)

// Client is an abstraction over LLM providers
type Client interface {
	// Generate sends prompt and data as one message and returns the model's text
	Generate(ctx context.Context, prompt, data string, cfg GenerationConfig) (string, error)
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, cfg GenerationConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
