// Package checker is the entry point for grading homework archives and answering
// reviewer comments. A Processor owns one AI client and runs the registered
// workflows through a pipeline.Runner.
package checker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/homework-checker/internal/archive"
	"github.com/jonathan/homework-checker/internal/corpus"
	"github.com/jonathan/homework-checker/internal/faults"
	"github.com/jonathan/homework-checker/internal/llm"
	"github.com/jonathan/homework-checker/internal/pipeline"
	"github.com/jonathan/homework-checker/internal/pipeline/workflows"
	"github.com/jonathan/homework-checker/internal/prompts"
	"github.com/jonathan/homework-checker/internal/rendering"
)

// Default timeouts for the slow stages
const (
	DefaultAITimeout      = 2 * time.Minute
	DefaultExtractTimeout = time.Minute
)

// Options configures a Processor. Zero values select defaults; Client,
// Extractor and Corpus may be injected for tests.
type Options struct {
	Generation llm.GenerationConfig
	Client     llm.Client

	Extractor pipeline.Extractor
	Corpus    pipeline.CorpusReader
	Renderer  *rendering.Renderer
	Sink      pipeline.Sink

	// Prompts overrides the built-in prompt of a workflow, keyed by workflow name
	Prompts prompts.Set

	Extension      string
	WorkDir        string
	AITimeout      time.Duration
	ExtractTimeout time.Duration

	Logger     *zap.Logger
	OnProgress pipeline.ProgressCallback
}

// Processor runs the grade_submission and answer_comment workflows
type Processor struct {
	runner  *pipeline.Runner
	prompts prompts.Set
	client  llm.Client
	logger  *zap.Logger
}

// BatchResult is the outcome of grading one archive in a batch
type BatchResult struct {
	Path  string
	State pipeline.State
	Err   error
}

// New creates a Processor. When opts.Client is nil an AI client is created from
// opts.Generation.
func New(ctx context.Context, opts Options) (*Processor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := opts.Client
	if client == nil {
		var err error
		client, err = llm.NewClient(ctx, opts.Generation)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI client: %w", err)
		}
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = archive.NewExtractor(logger)
	}
	reader := opts.Corpus
	if reader == nil {
		reader = corpus.NewReader(logger)
	}

	aiTimeout := opts.AITimeout
	if aiTimeout == 0 {
		aiTimeout = DefaultAITimeout
	}
	extractTimeout := opts.ExtractTimeout
	if extractTimeout == 0 {
		extractTimeout = DefaultExtractTimeout
	}

	return &Processor{
		runner: &pipeline.Runner{
			Extractor:      extractor,
			Corpus:         reader,
			AI:             client,
			Generation:     opts.Generation,
			Renderer:       opts.Renderer,
			Sink:           opts.Sink,
			WorkDir:        opts.WorkDir,
			Extension:      corpus.NormalizeExtension(opts.Extension),
			AITimeout:      aiTimeout,
			ExtractTimeout: extractTimeout,
			Logger:         logger,
			OnProgress:     opts.OnProgress,
		},
		prompts: opts.Prompts,
		client:  client,
		logger:  logger,
	}, nil
}

// GradeSubmission unpacks the archive at archivePath, has the AI review the
// collected sources and renders a report.
func (p *Processor) GradeSubmission(ctx context.Context, archivePath string) (pipeline.State, error) {
	path := archive.NormalizePath(archivePath)
	return p.run(ctx, workflows.GradeSubmission, pipeline.NewState(path, path))
}

// AnswerComment has the AI reply to a reviewer comment. No archive is touched.
func (p *Processor) AnswerComment(ctx context.Context, comment string) (pipeline.State, error) {
	return p.run(ctx, workflows.AnswerComment, pipeline.NewState("comment", comment))
}

// GradeBatch grades several archives with at most concurrency running at once.
// Each archive gets its own State and working directory; a failure does not
// stop the others. Results are in the order of paths.
func (p *Processor) GradeBatch(ctx context.Context, paths []string, concurrency int) []BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BatchResult, len(paths))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			state, err := p.GradeSubmission(ctx, path)
			results[i] = BatchResult{Path: path, State: state, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Close releases the AI client
func (p *Processor) Close() error {
	return p.client.Close()
}

func (p *Processor) run(ctx context.Context, workflow string, state pipeline.State) (pipeline.State, error) {
	stages, err := workflows.Build(workflow, p.prompts)
	if err != nil {
		return state, err
	}
	if err := workflows.ValidateSequence(stages); err != nil {
		return state, err
	}

	logger := p.logger.With(zap.String("workflow", workflow), zap.String("run_id", state.RunID))
	logger.Info("Workflow started", zap.String("source", state.Source))
	start := time.Now()

	final, err := p.runner.Run(ctx, state, stages)
	if err != nil {
		fields := []zap.Field{zap.Duration("elapsed", time.Since(start)), zap.Error(err)}
		if kind, ok := faults.KindOf(err); ok {
			fields = append(fields, zap.String("kind", string(kind)))
		}
		logger.Error("Workflow failed", fields...)
		return final, err
	}

	logger.Info("Workflow completed", zap.Duration("elapsed", time.Since(start)))
	return final, nil
}
