// Package llm provides the AI review collaborator: a provider-neutral Client and
// the per-call generation settings passed to it.
package llm

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint
	ProviderOpenAI Provider = "openai"
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
)

// Defaults for the OpenAI-compatible provider
const (
	DefaultBaseURL     = "https://api.vsegpt.ru/v1"
	DefaultModel       = "openai/gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
	DefaultTitle       = "Homework Checker"
)

// GenerationConfig holds the parameters for one AI call. It is a value type:
// overrides produce copies so concurrent runs never observe each other's changes.
type GenerationConfig struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	// Title is sent as the X-Title header by OpenAI-compatible gateways
	Title string
}

// DefaultConfig returns the default configuration (OpenAI-compatible gateway)
func DefaultConfig() GenerationConfig {
	return GenerationConfig{
		Provider:    ProviderOpenAI,
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Title:       DefaultTitle,
	}
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() GenerationConfig {
	return GenerationConfig{
		Provider:    ProviderGemini,
		Model:       DefaultGeminiModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// WithTemperature returns a copy with the given temperature
func (c GenerationConfig) WithTemperature(t float32) GenerationConfig {
	c.Temperature = t
	return c
}

// WithModel returns a copy with the given model
func (c GenerationConfig) WithModel(model string) GenerationConfig {
	c.Model = model
	return c
}

// BuildMessage joins the instruction and the payload into the single user
// message sent to the model.
func BuildMessage(prompt, data string) string {
	return prompt + "\n" + data
}
