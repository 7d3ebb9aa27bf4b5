// Package observability provides terminal output for the CLI: stage progress,
// rendered reports and boxed run summaries.
package observability

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jonathan/homework-checker/internal/checker"
	"github.com/jonathan/homework-checker/internal/pipeline"
	"github.com/jonathan/homework-checker/internal/rendering"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// wordWrap is the column at which pretty markdown is wrapped
	wordWrap = 80
)

// Printer writes reports, replies and summaries to a terminal. It implements
// pipeline.Sink and is safe for concurrent runs.
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	markdown *glamour.TermRenderer
}

// NewPrinter creates a new Printer that writes to the given writer. With pretty
// set, markdown output is rendered for the terminal.
func NewPrinter(out io.Writer, pretty bool) *Printer {
	p := &Printer{out: out}
	if pretty {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrap),
		)
		if err == nil {
			p.markdown = renderer
		}
	}
	return p
}

// Emit writes a rendered report or reply
func (p *Printer) Emit(_ rendering.Kind, format, rendered string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.markdown != nil && strings.EqualFold(format, rendering.FormatMarkdown) {
		styled, err := p.markdown.Render(rendered)
		if err == nil {
			rendered = styled
		}
	}

	if _, err := io.WriteString(p.out, rendered); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if !strings.HasSuffix(rendered, "\n") {
		if _, err := io.WriteString(p.out, "\n"); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// PrintStep prints one progress line for a completed stage
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintStep(event pipeline.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "Step %d/%d: %s - %s\n", event.Index, event.Total, event.Step, event.Message)
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = truncate(line, boxWidth-4)
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunSummary outputs the stage history of a finished run
func (p *Printer) PrintRunSummary(state pipeline.State) {
	if len(state.History) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:     %s\n", state.RunID))
	sb.WriteString(fmt.Sprintf("Source:  %s\n", state.Source))
	sb.WriteString("\n")

	var total time.Duration
	for _, rec := range state.History {
		total += rec.Duration
		mark := "✓"
		if rec.Status == pipeline.StatusFailed {
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s %-10s %s\n", mark, rec.Stage.Kind, rec.Duration.Round(time.Millisecond)))
		if rec.Error != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", rec.Error))
		}
	}
	sb.WriteString(fmt.Sprintf("\nTotal: %s", total.Round(time.Millisecond)))

	title := "RUN SUMMARY"
	if _, failed := state.Failed(); failed {
		title = "RUN SUMMARY (failed)"
	}
	p.printBox(title, sb.String())
}

// PrintBatchSummary outputs one line per graded archive
func (p *Printer) PrintBatchSummary(results []checker.BatchResult) {
	if len(results) == 0 {
		return
	}

	var sb strings.Builder
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			sb.WriteString(fmt.Sprintf("✗ %s\n  %s\n", res.Path, res.Err))
			continue
		}
		sb.WriteString(fmt.Sprintf("✓ %s\n", res.Path))
	}
	sb.WriteString(fmt.Sprintf("\n%d graded, %d failed", len(results)-failed, failed))

	p.printBox("BATCH SUMMARY", sb.String())
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
