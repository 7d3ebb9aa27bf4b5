package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/homework-checker/internal/archive"
	"github.com/jonathan/homework-checker/internal/corpus"
	"github.com/jonathan/homework-checker/internal/faults"
	"github.com/jonathan/homework-checker/internal/llm"
	"github.com/jonathan/homework-checker/internal/rendering"
)

type aiCall struct {
	Prompt string
	Data   string
	Config llm.GenerationConfig
}

type fakeAI struct {
	mu    sync.Mutex
	calls []aiCall
	reply func(call aiCall) (string, error)
}

func (f *fakeAI) Generate(ctx context.Context, prompt, data string, cfg llm.GenerationConfig) (string, error) {
	call := aiCall{Prompt: prompt, Data: data, Config: cfg}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(call)
}

func (f *fakeAI) Close() error { return nil }

func (f *fakeAI) Calls() []aiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]aiCall(nil), f.calls...)
}

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, _, destination string) (string, error) {
	f.calls++
	return destination, f.err
}

type fakeCorpus struct {
	text       string
	collectErr error
	purgeErr   error
	purged     []string
}

func (f *fakeCorpus) Collect(_, _ string) (string, error) {
	return f.text, f.collectErr
}

func (f *fakeCorpus) Purge(dir string) error {
	f.purged = append(f.purged, dir)
	return f.purgeErr
}

type emitted struct {
	Kind     rendering.Kind
	Format   string
	Rendered string
}

type captureSink struct {
	items []emitted
}

func (s *captureSink) Emit(kind rendering.Kind, format, rendered string) error {
	s.items = append(s.items, emitted{Kind: kind, Format: format, Rendered: rendered})
	return nil
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func gradeStages() []Stage {
	return []Stage{
		Unpack(""),
		AICheck("Review and fix the code", 0.7),
		Report("markdown"),
	}
}

func TestRun_GradeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "hw.zip")
	writeZip(t, archivePath, map[string]string{"a.py": "print(1)", "b.py": "print(2)"})
	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(workDir, 0o755))

	const review = "Line 1 is fine.\nConsider a main guard."
	ai := &fakeAI{reply: func(aiCall) (string, error) { return review, nil }}
	sink := &captureSink{}
	var events []ProgressEvent

	logger := zaptest.NewLogger(t)
	r := &Runner{
		Extractor:  archive.NewExtractor(logger),
		Corpus:     corpus.NewReader(logger),
		AI:         ai,
		Generation: llm.DefaultConfig(),
		Sink:       sink,
		WorkDir:    workDir,
		Logger:     logger,
		OnProgress: func(e ProgressEvent) { events = append(events, e) },
	}

	final, err := r.Run(context.Background(), NewState(archivePath, archivePath), gradeStages())
	require.NoError(t, err)

	calls := ai.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Review and fix the code", calls[0].Prompt)
	assert.Contains(t, calls[0].Data, "File a.py\nprint(1)\n")
	assert.Contains(t, calls[0].Data, "File b.py\nprint(2)\n")
	assert.InDelta(t, 0.7, calls[0].Config.Temperature, 1e-6)

	assert.Equal(t, review, final.Results)
	assert.Equal(t, KindReport, final.Current)
	require.Len(t, sink.items, 1)
	assert.Equal(t, rendering.KindReport, sink.items[0].Kind)
	assert.Contains(t, sink.items[0].Rendered, review)
	assert.Equal(t, final.Output, sink.items[0].Rendered)

	require.Len(t, events, 3)
	assert.Equal(t, "report", events[2].Step)
	assert.Equal(t, review, events[2].Content)

	require.Len(t, final.History, 3)
	for _, rec := range final.History {
		assert.Equal(t, StatusOK, rec.Status)
	}

	leftovers, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "working directory must be purged")
}

func TestRun_CommentSequenceNeverUnpacks(t *testing.T) {
	extractor := &fakeExtractor{}
	ai := &fakeAI{reply: func(aiCall) (string, error) { return "Thanks!", nil }}
	r := &Runner{
		Extractor:  extractor,
		Corpus:     &fakeCorpus{},
		AI:         ai,
		Generation: llm.DefaultConfig(),
	}

	final, err := r.Run(context.Background(), NewState("comment", "nice work"),
		[]Stage{AICheck("Check this comment", 0.5), Response("text")})
	require.NoError(t, err)

	assert.Equal(t, 0, extractor.calls)
	calls := ai.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Check this comment", calls[0].Prompt)
	assert.Equal(t, "nice work", calls[0].Data)
	assert.InDelta(t, 0.5, calls[0].Config.Temperature, 1e-6)
	assert.Equal(t, "Thanks!\n", final.Output)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	cause := errors.New("502 bad gateway")
	sink := &captureSink{}
	r := &Runner{
		AI:   &fakeAI{reply: func(aiCall) (string, error) { return "", cause }},
		Sink: sink,
	}

	final, err := r.Run(context.Background(), NewState("comment", "hi"),
		[]Stage{AICheck("Check this comment", 0.5), Response("text")})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, KindAICheck, stageErr.Stage.Kind)
	assert.Equal(t, 0, stageErr.Index)
	assert.Equal(t, final.RunID, stageErr.RunID)
	assert.ErrorIs(t, err, faults.AIRequestFailed)
	assert.ErrorIs(t, err, cause)

	assert.Empty(t, sink.items)
	require.Len(t, final.History, 1)
	failed, ok := final.Failed()
	require.True(t, ok)
	assert.Equal(t, KindAICheck, failed.Stage.Kind)
	assert.Contains(t, failed.Error, "502 bad gateway")
}

func TestRun_AITimeout(t *testing.T) {
	ai := &blockingAI{}
	r := &Runner{AI: ai, AITimeout: 20 * time.Millisecond}

	_, err := r.Run(context.Background(), NewState("comment", "hi"), []Stage{AICheck("p", 0.5)})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.Timeout)
	assert.NotErrorIs(t, err, faults.AIRequestFailed)
}

type blockingAI struct{}

func (blockingAI) Generate(ctx context.Context, _, _ string, _ llm.GenerationConfig) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingAI) Close() error { return nil }

func TestRun_UnpackPurgesOnCollectFailure(t *testing.T) {
	fc := &fakeCorpus{collectErr: faults.New(faults.EmptyCorpus, "collect", "x", "")}
	r := &Runner{Extractor: &fakeExtractor{}, Corpus: fc, WorkDir: "/work"}

	state := NewState("hw.zip", "hw.zip")
	_, err := r.Run(context.Background(), state, []Stage{Unpack("")})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.EmptyCorpus)
	assert.Equal(t, []string{filepath.Join("/work", "homework-"+state.RunID)}, fc.purged)
}

func TestRun_UnpackPurgeFailureSurfacedOnSuccess(t *testing.T) {
	fc := &fakeCorpus{
		text:     "File a.py\nx\n",
		purgeErr: faults.New(faults.DirectoryPurgeFailed, "purge", "temp", "busy"),
	}
	r := &Runner{Extractor: &fakeExtractor{}, Corpus: fc}

	_, err := r.Run(context.Background(), NewState("hw.zip", "hw.zip"), []Stage{Unpack("temp")})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.DirectoryPurgeFailed)
	assert.Equal(t, []string{"temp"}, fc.purged)
}

func TestRun_UnpackKeepsOriginalErrorWhenPurgeAlsoFails(t *testing.T) {
	fc := &fakeCorpus{purgeErr: faults.New(faults.DirectoryPurgeFailed, "purge", "temp", "busy")}
	ex := &fakeExtractor{err: faults.New(faults.ExtractionFailed, "extract", "hw.zip", "bad header")}
	r := &Runner{Extractor: ex, Corpus: fc, Logger: zaptest.NewLogger(t)}

	_, err := r.Run(context.Background(), NewState("hw.zip", "hw.zip"), []Stage{Unpack("temp")})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ExtractionFailed)
	assert.NotErrorIs(t, err, faults.DirectoryPurgeFailed)
}

func TestRun_UnpackReplacesData(t *testing.T) {
	r := &Runner{Extractor: &fakeExtractor{}, Corpus: &fakeCorpus{text: "File a.py\nx\n"}}

	final, err := r.Run(context.Background(), NewState("hw.zip", "hw.zip"), []Stage{Unpack("temp")})
	require.NoError(t, err)
	assert.Equal(t, "File a.py\nx\n", final.Data)
	assert.Equal(t, KindUnpack, final.Current)
}

func TestRun_ConcurrentTemperaturesDoNotLeak(t *testing.T) {
	ai := &fakeAI{reply: func(c aiCall) (string, error) {
		return fmt.Sprintf("%.1f", c.Config.Temperature), nil
	}}
	r := &Runner{AI: ai, Generation: llm.DefaultConfig()}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			temp := float32(i) / 10
			final, err := r.Run(context.Background(), NewState("c", "d"), []Stage{AICheck("p", temp)})
			assert.NoError(t, err)
			results[i] = final.Results
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, fmt.Sprintf("%.1f", float32(i)/10), got)
	}
	assert.InDelta(t, llm.DefaultTemperature, r.Generation.Temperature, 1e-6)
}

func TestRun_NoAIClient(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), NewState("c", "d"), []Stage{AICheck("p", 0.5)})
	assert.ErrorIs(t, err, faults.AIRequestFailed)
}

func TestRun_UnpackWithoutCollaborators(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), NewState("hw.zip", "hw.zip"), []Stage{Unpack("")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an extractor")
}

func TestRun_UnsupportedRenderFormat(t *testing.T) {
	state := NewState("hw.zip", "")
	state.Results = "review"

	_, err := (&Runner{}).Run(context.Background(), state, []Stage{Report("pdf")})
	var renderErr *rendering.RenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestRun_UnknownStageKind(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), NewState("x", "y"), []Stage{{Kind: "lint"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage kind "lint"`)
}

func TestRun_EmptySequence(t *testing.T) {
	state := NewState("x", "payload")

	final, err := (&Runner{}).Run(context.Background(), state, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(state, final); diff != "" {
		t.Errorf("state changed (-want +got):\n%s", diff)
	}
}

func TestState_WithRecordDoesNotAlias(t *testing.T) {
	base := NewState("x", "y")
	base = base.withRecord(StageRecord{Stage: Unpack(""), Status: StatusOK})

	a := base.withRecord(StageRecord{Stage: AICheck("a", 0.1), Status: StatusOK})
	b := base.withRecord(StageRecord{Stage: AICheck("b", 0.2), Status: StatusFailed})

	assert.Len(t, base.History, 1)
	assert.Equal(t, "a", a.History[1].Stage.Prompt)
	assert.Equal(t, "b", b.History[1].Stage.Prompt)
}

func TestNewState_UniqueRunIDs(t *testing.T) {
	assert.NotEqual(t, NewState("a", "").RunID, NewState("a", "").RunID)
}

func TestStageString(t *testing.T) {
	tests := []struct {
		stage    Stage
		expected string
	}{
		{Unpack(""), "unpack"},
		{Unpack("temp"), "unpack(temp)"},
		{AICheck("Check this comment", 0.5), `ai_check("Check this comment", 0.50)`},
		{Report("markdown"), "report(markdown)"},
		{Response("text"), "response(text)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.stage.String())
	}
}

func TestStageCategory(t *testing.T) {
	assert.Equal(t, CategoryIngestion, Unpack("").Category())
	assert.Equal(t, CategoryReview, AICheck("p", 0).Category())
	assert.Equal(t, CategoryOutput, Report("markdown").Category())
	assert.Equal(t, CategoryOutput, Response("text").Category())
}
