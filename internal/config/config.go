// Package config provides configuration loading and validation for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jonathan/homework-checker/internal/llm"
)

// EnvPrefix is prepended to every configuration key read from the environment
const EnvPrefix = "HOMEWORK"

// DefaultComment is the comment answered when none is given
const DefaultComment = "comment text"

// Config represents the CLI configuration. Values come from defaults, an
// optional config file (JSON, YAML or TOML) and HOMEWORK_* environment variables,
// in increasing order of precedence. CLI flags are applied last by the caller.
type Config struct {
	// AI provider
	Provider    string  `mapstructure:"provider" json:"provider" validate:"oneof=openai gemini"`
	APIKey      string  `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL     string  `mapstructure:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	Model       string  `mapstructure:"model" json:"model" validate:"required"`
	Temperature float64 `mapstructure:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens" validate:"gte=1"`
	Title       string  `mapstructure:"title" json:"title,omitempty"`

	// Submissions
	Extension   string `mapstructure:"extension" json:"extension" validate:"required"`
	WorkDir     string `mapstructure:"work_dir" json:"work_dir,omitempty"`
	Comment     string `mapstructure:"comment" json:"comment,omitempty"`
	Concurrency int    `mapstructure:"concurrency" json:"concurrency" validate:"gte=1"`
	PromptsFile string `mapstructure:"prompts_file" json:"prompts_file,omitempty"`

	// Templates replacing the built-in report (markdown) and reply (text) layouts
	ReportTemplate   string `mapstructure:"report_template" json:"report_template,omitempty" validate:"omitempty,file"`
	ResponseTemplate string `mapstructure:"response_template" json:"response_template,omitempty" validate:"omitempty,file"`

	// Limits
	AITimeout      time.Duration `mapstructure:"ai_timeout" json:"ai_timeout" validate:"gte=0"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout" json:"extract_timeout" validate:"gte=0"`

	// Output
	Pretty  bool `mapstructure:"pretty" json:"pretty,omitempty"`
	Verbose bool `mapstructure:"verbose" json:"verbose,omitempty"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Provider:       string(llm.ProviderOpenAI),
		BaseURL:        llm.DefaultBaseURL,
		Model:          llm.DefaultModel,
		Temperature:    llm.DefaultTemperature,
		MaxTokens:      llm.DefaultMaxTokens,
		Title:          llm.DefaultTitle,
		Extension:      ".py",
		Comment:        DefaultComment,
		Concurrency:    1,
		AITimeout:      2 * time.Minute,
		ExtractTimeout: time.Minute,
	}
}

// Load reads configuration from path (optional) and the environment.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.APIKey == "" {
		cfg.APIKey = ProviderAPIKey(cfg.Provider)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("provider", d.Provider)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("model", d.Model)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("title", d.Title)
	v.SetDefault("extension", d.Extension)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("comment", d.Comment)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("prompts_file", d.PromptsFile)
	v.SetDefault("report_template", d.ReportTemplate)
	v.SetDefault("response_template", d.ResponseTemplate)
	v.SetDefault("ai_timeout", d.AITimeout)
	v.SetDefault("extract_timeout", d.ExtractTimeout)
	v.SetDefault("pretty", d.Pretty)
	v.SetDefault("verbose", d.Verbose)
}

// ProviderAPIKey reads the provider's conventional API key environment variable
func ProviderAPIKey(provider string) string {
	switch llm.Provider(provider) {
	case llm.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks that the configuration has valid values.
// Note: the API key is not required here; the AI client reports a missing key.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config error: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("'%s' failed %s validation", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
}

// Generation converts the configuration into AI call settings. Gemini starts
// from its own defaults and keeps its model unless one other than the
// OpenAI-compatible default was configured.
func (c *Config) Generation() llm.GenerationConfig {
	gen := llm.DefaultConfig()
	if llm.Provider(c.Provider) == llm.ProviderGemini {
		gen = llm.DefaultGeminiConfig()
		if c.Model != "" && c.Model != llm.DefaultModel {
			gen = gen.WithModel(c.Model)
		}
	} else {
		gen = gen.WithModel(c.Model)
		gen.BaseURL = c.BaseURL
	}

	gen.APIKey = c.APIKey
	gen.Temperature = float32(c.Temperature)
	gen.MaxTokens = c.MaxTokens
	gen.Title = c.Title
	return gen
}
