package checker

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/homework-checker/internal/faults"
	"github.com/jonathan/homework-checker/internal/llm"
	"github.com/jonathan/homework-checker/internal/pipeline"
	"github.com/jonathan/homework-checker/internal/prompts"
	"github.com/jonathan/homework-checker/internal/rendering"
)

type call struct {
	Prompt      string
	Data        string
	Temperature float32
}

type mockClient struct {
	mu     sync.Mutex
	calls  []call
	reply  string
	err    error
	closed bool
}

func (m *mockClient) Generate(_ context.Context, prompt, data string, cfg llm.GenerationConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{Prompt: prompt, Data: data, Temperature: cfg.Temperature})
	return m.reply, m.err
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func (m *mockClient) Calls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

type spyExtractor struct {
	calls int
}

func (s *spyExtractor) Extract(_ context.Context, _, destination string) (string, error) {
	s.calls++
	return destination, nil
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []rendering.Kind
	out   []string
}

func (s *recordingSink) Emit(kind rendering.Kind, _ string, rendered string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.out = append(s.out, rendered)
	return nil
}

func writeHomework(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct{ name, body string }{
		{"a.py", "print(1)"},
		{"b.py", "print(2)"},
		{"README.md", "do not send"},
	} {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newProcessor(t *testing.T, opts Options) *Processor {
	t.Helper()
	if opts.Generation.Model == "" {
		opts.Generation = llm.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	p, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestGradeSubmission(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "hw.zip")
	writeHomework(t, archivePath)

	client := &mockClient{reply: "Both files print a constant. Add a function."}
	sink := &recordingSink{}
	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(workDir, 0o755))

	p := newProcessor(t, Options{Client: client, Sink: sink, WorkDir: workDir})

	state, err := p.GradeSubmission(context.Background(), archivePath)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Review and fix the code", calls[0].Prompt)
	assert.InDelta(t, 0.7, calls[0].Temperature, 1e-6)
	assert.Contains(t, calls[0].Data, "File a.py\nprint(1)\n")
	assert.Contains(t, calls[0].Data, "File b.py\nprint(2)\n")
	assert.NotContains(t, calls[0].Data, "do not send")

	assert.Equal(t, client.reply, state.Results)
	assert.Equal(t, archivePath, state.Source)
	require.Equal(t, []rendering.Kind{rendering.KindReport}, sink.kinds)
	assert.Contains(t, sink.out[0], client.reply)
	assert.Contains(t, sink.out[0], "# Homework review: hw.zip")

	leftovers, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGradeSubmission_QuotedPath(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "hw.zip")
	writeHomework(t, archivePath)

	p := newProcessor(t, Options{Client: &mockClient{reply: "ok"}})

	state, err := p.GradeSubmission(context.Background(), ` "`+archivePath+`" `)
	require.NoError(t, err)
	assert.Equal(t, archivePath, state.Source)
}

func TestGradeSubmission_MissingArchive(t *testing.T) {
	client := &mockClient{reply: "unused"}
	p := newProcessor(t, Options{Client: client})

	state, err := p.GradeSubmission(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ArchiveNotFound)
	assert.Empty(t, client.Calls())

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.KindUnpack, stageErr.Stage.Kind)
	assert.Equal(t, pipeline.KindUnpack, state.Current)
}

func TestGradeSubmission_AIFailure(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "hw.zip")
	writeHomework(t, archivePath)

	cause := errors.New("quota exceeded")
	sink := &recordingSink{}
	p := newProcessor(t, Options{Client: &mockClient{err: cause}, Sink: sink})

	_, err := p.GradeSubmission(context.Background(), archivePath)
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.AIRequestFailed)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, sink.kinds)
}

func TestAnswerComment(t *testing.T) {
	client := &mockClient{reply: "Thank you for the feedback!"}
	extractor := &spyExtractor{}
	sink := &recordingSink{}
	p := newProcessor(t, Options{Client: client, Extractor: extractor, Sink: sink})

	state, err := p.AnswerComment(context.Background(), "nice work")
	require.NoError(t, err)

	assert.Equal(t, 0, extractor.calls)
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Check this comment", calls[0].Prompt)
	assert.Equal(t, "nice work", calls[0].Data)
	assert.InDelta(t, 0.5, calls[0].Temperature, 1e-6)

	assert.Equal(t, "Thank you for the feedback!\n", state.Output)
	assert.Equal(t, []rendering.Kind{rendering.KindResponse}, sink.kinds)
}

func TestAnswerComment_PromptOverride(t *testing.T) {
	client := &mockClient{reply: "ok"}
	p := newProcessor(t, Options{
		Client:  client,
		Prompts: prompts.Set{"answer_comment": "Reply politely to this comment"},
	})

	_, err := p.AnswerComment(context.Background(), "why?")
	require.NoError(t, err)
	assert.Equal(t, "Reply politely to this comment", client.Calls()[0].Prompt)
}

func TestGradeBatch(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "one.zip"),
		filepath.Join(dir, "missing.zip"),
		filepath.Join(dir, "three.zip"),
	}
	writeHomework(t, paths[0])
	writeHomework(t, paths[2])

	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(workDir, 0o755))
	client := &mockClient{reply: "reviewed"}
	p := newProcessor(t, Options{Client: client, WorkDir: workDir})

	results := p.GradeBatch(context.Background(), paths, 2)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, paths[i], res.Path)
	}
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, faults.ArchiveNotFound)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "reviewed", results[0].State.Results)
	assert.NotEqual(t, results[0].State.RunID, results[2].State.RunID)
	assert.Len(t, client.Calls(), 2)

	leftovers, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGradeBatch_ZeroConcurrency(t *testing.T) {
	p := newProcessor(t, Options{Client: &mockClient{}})

	results := p.GradeBatch(context.Background(), []string{filepath.Join(t.TempDir(), "x.7z")}, 0)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, faults.ArchiveNotFound)
}

func TestNew_ClientFromConfig(t *testing.T) {
	_, err := New(context.Background(), Options{Generation: llm.GenerationConfig{Provider: "anthropic"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to create AI client"))

	_, err = New(context.Background(), Options{Generation: llm.DefaultConfig()})
	assert.Error(t, err, "missing API key")
}

func TestClose(t *testing.T) {
	client := &mockClient{}
	p, err := New(context.Background(), Options{Client: client})
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, client.closed)
}

func TestGradeSubmission_LogsFailureKind(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	client := &mockClient{reply: "unused"}
	p := newProcessor(t, Options{Client: client, Logger: zap.New(core)})

	_, err := p.GradeSubmission(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)

	failures := logs.FilterMessage("Workflow failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, string(faults.ArchiveNotFound), failures[0].ContextMap()["kind"])
	assert.Equal(t, "grade_submission", failures[0].ContextMap()["workflow"])
	assert.Empty(t, client.Calls())
}
