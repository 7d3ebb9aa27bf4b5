package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/homework-checker/internal/checker"
	"github.com/jonathan/homework-checker/internal/config"
	"github.com/jonathan/homework-checker/internal/observability"
	"github.com/jonathan/homework-checker/internal/pipeline/workflows"
	"github.com/jonathan/homework-checker/internal/prompts"
	"github.com/jonathan/homework-checker/internal/rendering"
)

// aiFlags are the per-command overrides for the loaded configuration
type aiFlags struct {
	provider    string
	model       string
	baseURL     string
	apiKey      string
	extension   string
	workDir     string
	promptsFile string
	reportTmpl  string
	replyTmpl   string
	pretty      bool
	timeout     time.Duration
}

func (f *aiFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "AI provider: openai or gemini")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model name")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	// API key can be passed as a flag, or read from HOMEWORK_API_KEY / OPENAI_API_KEY / GEMINI_API_KEY
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key (optional, defaults to environment)")
	cmd.Flags().StringVarP(&f.extension, "ext", "e", "", "Source file extension to collect (default .py)")
	cmd.Flags().StringVar(&f.workDir, "work-dir", "", "Parent directory for temporary extraction directories")
	cmd.Flags().StringVar(&f.promptsFile, "prompts", "", "JSON file overriding the built-in prompts")
	cmd.Flags().StringVar(&f.reportTmpl, "report-template", "", "Go template file replacing the markdown report layout")
	cmd.Flags().StringVar(&f.replyTmpl, "response-template", "", "Go template file replacing the plain-text reply layout")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Render markdown reports for the terminal")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Timeout for each AI request")
}

// loadConfig loads the config file and environment, then applies only the flags
// that were explicitly set.
func loadConfig(cmd *cobra.Command, root *rootOptions, f *aiFlags) (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = strings.ToLower(f.provider)
	}
	if flags.Changed("model") {
		cfg.Model = f.model
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if flags.Changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if flags.Changed("ext") {
		cfg.Extension = f.extension
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = f.workDir
	}
	if flags.Changed("prompts") {
		cfg.PromptsFile = f.promptsFile
	}
	if flags.Changed("report-template") {
		cfg.ReportTemplate = f.reportTmpl
	}
	if flags.Changed("response-template") {
		cfg.ResponseTemplate = f.replyTmpl
	}
	if flags.Changed("pretty") {
		cfg.Pretty = f.pretty
	}
	if flags.Changed("timeout") {
		cfg.AITimeout = f.timeout
	}
	if flags.Changed("verbose") {
		cfg.Verbose = root.verbose
	}

	if cfg.APIKey == "" {
		cfg.APIKey = config.ProviderAPIKey(cfg.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Verbose && root.configPath != "" {
		root.logger.Debug("Loaded config", zap.String("path", root.configPath))
	}
	return cfg, nil
}

// newProcessor builds a Processor that prints progress, reports and replies
// through printer.
func newProcessor(ctx context.Context, cfg *config.Config, printer *observability.Printer, logger *zap.Logger) (*checker.Processor, error) {
	set, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	logger.Debug("Prompts loaded", zap.Strings("workflows", set.Keys()))

	renderer, err := loadRenderer(cfg)
	if err != nil {
		return nil, err
	}

	return checker.New(ctx, checker.Options{
		Generation:     cfg.Generation(),
		Renderer:       renderer,
		Sink:           printer,
		Prompts:        set,
		Extension:      cfg.Extension,
		WorkDir:        cfg.WorkDir,
		AITimeout:      cfg.AITimeout,
		ExtractTimeout: cfg.ExtractTimeout,
		Logger:         logger,
		OnProgress:     printer.PrintStep,
	})
}

// loadPrompts layers the overrides file, if any, over the built-in prompts.
// Keys that name no workflow are rejected.
func loadPrompts(path string) (prompts.Set, error) {
	set, err := prompts.Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return set, nil
	}

	overrides, err := prompts.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, key := range overrides.Keys() {
		if _, ok := workflows.Registry[key]; !ok {
			return nil, fmt.Errorf("prompt file %s: unknown workflow %q (known: %s)",
				path, key, strings.Join(workflows.Names(), ", "))
		}
	}
	return set.Merge(overrides), nil
}

// loadRenderer applies the configured template files on top of the built-in
// layouts.
func loadRenderer(cfg *config.Config) (*rendering.Renderer, error) {
	renderer := rendering.NewRenderer()
	if cfg.ReportTemplate != "" {
		if err := renderer.LoadTemplate(rendering.KindReport, workflows.ReportFormat, cfg.ReportTemplate); err != nil {
			return nil, err
		}
	}
	if cfg.ResponseTemplate != "" {
		if err := renderer.LoadTemplate(rendering.KindResponse, workflows.ResponseFormat, cfg.ResponseTemplate); err != nil {
			return nil, err
		}
	}
	return renderer, nil
}

// readArchivePath prompts for an archive path on out and reads one line from in
func readArchivePath(in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Enter archive path: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read archive path: %w", err)
	}

	path := strings.TrimSpace(line)
	if path == "" {
		return "", fmt.Errorf("no archive path given")
	}
	return path, nil
}
