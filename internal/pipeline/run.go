// Package pipeline runs a caller-supplied sequence of stages (unpack, AI check,
// report, response) over a State.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/homework-checker/internal/faults"
	"github.com/jonathan/homework-checker/internal/llm"
	"github.com/jonathan/homework-checker/internal/rendering"
)

// DefaultExtension is the source file extension collected when neither the
// stage nor the runner names one.
const DefaultExtension = ".py"

// Extractor unpacks an archive into destination and returns the directory used
type Extractor interface {
	Extract(ctx context.Context, archivePath, destination string) (string, error)
}

// CorpusReader collects source files into a corpus and removes working directories
type CorpusReader interface {
	Collect(dir, ext string) (string, error)
	Purge(dir string) error
}

// Sink receives rendered reports and replies
type Sink interface {
	Emit(kind rendering.Kind, format, rendered string) error
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called after each stage completes
type ProgressCallback func(event ProgressEvent)

// Runner executes stage sequences. A configured Runner holds no per-run state
// and may be shared by concurrent runs.
type Runner struct {
	Extractor  Extractor
	Corpus     CorpusReader
	AI         llm.Client
	Generation llm.GenerationConfig
	Renderer   *rendering.Renderer
	Sink       Sink

	// WorkDir is the parent of per-run extraction directories (default os.TempDir())
	WorkDir string
	// Extension is the source extension collected by unpack stages that name none
	Extension string

	AITimeout      time.Duration
	ExtractTimeout time.Duration

	Logger     *zap.Logger
	OnProgress ProgressCallback
}

// Run drives state through stages in order. The first failing stage stops the
// run; the returned State then carries the failed StageRecord and the error is a
// *StageError.
func (r *Runner) Run(ctx context.Context, state State, stages []Stage) (State, error) {
	logger := r.logger().With(zap.String("run_id", state.RunID))

	for i, stage := range stages {
		state.Current = stage.Kind
		logger.Debug("Stage started",
			zap.Stringer("stage", stage),
			zap.Int("index", i+1),
			zap.Int("total", len(stages)))

		start := time.Now()
		next, err := r.execute(ctx, state, stage, logger)
		rec := StageRecord{Stage: stage, Started: start, Duration: time.Since(start)}

		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			state = state.withRecord(rec)
			logger.Warn("Stage failed",
				zap.Stringer("stage", stage),
				zap.Duration("elapsed", rec.Duration),
				zap.Error(err))
			return state, &StageError{Stage: stage, Index: i, RunID: state.RunID, Err: err}
		}

		rec.Status = StatusOK
		state = next.withRecord(rec)
		logger.Debug("Stage completed",
			zap.Stringer("stage", stage),
			zap.Duration("elapsed", rec.Duration))
		r.emitProgress(state, stage, i, len(stages))
	}

	return state, nil
}

func (r *Runner) execute(ctx context.Context, state State, stage Stage, logger *zap.Logger) (State, error) {
	switch stage.Kind {
	case KindUnpack:
		return r.unpack(ctx, state, stage, logger)
	case KindAICheck:
		return r.aiCheck(ctx, state, stage)
	case KindReport:
		return r.render(state, stage, rendering.KindReport)
	case KindResponse:
		return r.render(state, stage, rendering.KindResponse)
	default:
		return state, fmt.Errorf("unknown stage kind %q", stage.Kind)
	}
}

// unpack extracts, collects and always purges the working directory. A purge
// failure is returned only when extraction and collection succeeded.
func (r *Runner) unpack(ctx context.Context, state State, stage Stage, logger *zap.Logger) (State, error) {
	if r.Extractor == nil || r.Corpus == nil {
		return state, fmt.Errorf("unpack stage requires an extractor and a corpus reader")
	}

	dir := stage.TargetDir
	if dir == "" {
		dir = filepath.Join(r.workDir(), "homework-"+state.RunID)
	}
	ext := stage.Extension
	if ext == "" {
		ext = r.extension()
	}

	extractCtx, cancel := withTimeout(ctx, r.ExtractTimeout)
	defer cancel()

	var corpusText string
	_, err := r.Extractor.Extract(extractCtx, state.Data, dir)
	if err == nil {
		corpusText, err = r.Corpus.Collect(dir, ext)
	}

	purgeErr := r.Corpus.Purge(dir)
	if err != nil {
		if purgeErr != nil {
			logger.Warn("Working directory left behind after failed unpack",
				zap.String("dir", dir),
				zap.Error(purgeErr))
		}
		return state, err
	}
	if purgeErr != nil {
		return state, purgeErr
	}

	state.Data = corpusText
	return state, nil
}

// aiCheck calls the AI client with a per-call copy of the generation config
func (r *Runner) aiCheck(ctx context.Context, state State, stage Stage) (State, error) {
	if r.AI == nil {
		return state, faults.New(faults.AIRequestFailed, string(KindAICheck), "", "no AI client configured")
	}

	cfg := r.Generation.WithTemperature(stage.Temperature)

	aiCtx, cancel := withTimeout(ctx, r.AITimeout)
	defer cancel()

	text, err := r.AI.Generate(aiCtx, stage.Prompt, state.Data, cfg)
	if err != nil {
		if errors.Is(aiCtx.Err(), context.DeadlineExceeded) {
			return state, faults.Wrap(faults.Timeout, string(KindAICheck), "", err)
		}
		return state, faults.Wrap(faults.AIRequestFailed, string(KindAICheck), "", err)
	}

	state.Results = text
	return state, nil
}

func (r *Runner) render(state State, stage Stage, kind rendering.Kind) (State, error) {
	doc := rendering.Document{
		Kind:        kind,
		RunID:       state.RunID,
		Source:      filepath.Base(state.Source),
		Model:       r.Generation.Model,
		GeneratedAt: time.Now(),
		Body:        state.Results,
	}

	out, err := r.renderer().Render(doc, stage.Format)
	if err != nil {
		return state, err
	}

	if r.Sink != nil {
		if err := r.Sink.Emit(kind, stage.Format, out); err != nil {
			return state, fmt.Errorf("failed to emit %s: %w", kind, err)
		}
	}

	state.Output = out
	return state, nil
}

// emitProgress calls the progress callback if configured
func (r *Runner) emitProgress(state State, stage Stage, index, total int) {
	if r.OnProgress == nil {
		return
	}

	event := ProgressEvent{
		Step:     string(stage.Kind),
		Category: stage.Category(),
		RunID:    state.RunID,
		Index:    index + 1,
		Total:    total,
	}
	switch stage.Kind {
	case KindUnpack:
		event.Message = fmt.Sprintf("Collected %d bytes of source text", len(state.Data))
	case KindAICheck:
		event.Message = fmt.Sprintf("Received %d bytes from the model", len(state.Results))
		event.Content = state.Results
	default:
		event.Message = fmt.Sprintf("Rendered %s as %s", stage.Kind, stage.Format)
		event.Content = state.Results
	}
	r.OnProgress(event)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) renderer() *rendering.Renderer {
	if r.Renderer == nil {
		return rendering.NewRenderer()
	}
	return r.Renderer
}

func (r *Runner) workDir() string {
	if r.WorkDir == "" {
		return os.TempDir()
	}
	return r.WorkDir
}

func (r *Runner) extension() string {
	if r.Extension == "" {
		return DefaultExtension
	}
	return r.Extension
}

// withTimeout applies d to ctx when d is positive
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
