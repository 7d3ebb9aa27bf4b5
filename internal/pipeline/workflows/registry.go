// Package workflows names the fixed stage sequences the checker runs and
// validates caller-built sequences before execution.
package workflows

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/homework-checker/internal/pipeline"
	"github.com/jonathan/homework-checker/internal/prompts"
	"github.com/jonathan/homework-checker/internal/rendering"
)

// Workflow names
const (
	GradeSubmission = "grade_submission"
	AnswerComment   = "answer_comment"
)

// Temperatures of the built-in workflows
const (
	GradeTemperature   = 0.7
	CommentTemperature = 0.5
)

// Output formats of the built-in workflows
const (
	ReportFormat   = rendering.FormatMarkdown
	ResponseFormat = rendering.FormatText
)

// Definition describes a named stage sequence
type Definition struct {
	Name        string
	Description string
	Stages      []pipeline.Stage
}

// Registry holds all workflow definitions
var Registry = map[string]Definition{
	GradeSubmission: {
		Name:        GradeSubmission,
		Description: "unpack an archive, review the collected sources, render a markdown report",
		Stages: []pipeline.Stage{
			pipeline.Unpack(""),
			pipeline.AICheck(prompts.MustGet(GradeSubmission), GradeTemperature),
			pipeline.Report(ReportFormat),
		},
	},
	AnswerComment: {
		Name:        AnswerComment,
		Description: "reply to a reviewer comment as plain text",
		Stages: []pipeline.Stage{
			pipeline.AICheck(prompts.MustGet(AnswerComment), CommentTemperature),
			pipeline.Response(ResponseFormat),
		},
	},
}

// UnknownWorkflowError is returned by Lookup for names not in the Registry
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow: %s (known: %s)", e.Name, strings.Join(Names(), ", "))
}

// DependencyError reports a stage whose input no earlier stage produces
type DependencyError struct {
	Stage               pipeline.Stage
	Index               int
	MissingDependencies []pipeline.Kind
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %d (%s): missing dependencies: %v", e.Index+1, e.Stage.Kind, e.MissingDependencies)
}

// dependencies lists, per stage kind, the kinds that must run earlier
var dependencies = map[pipeline.Kind][]pipeline.Kind{
	pipeline.KindUnpack:   {},
	pipeline.KindAICheck:  {},
	pipeline.KindReport:   {pipeline.KindAICheck},
	pipeline.KindResponse: {pipeline.KindAICheck},
}

// Lookup returns the stages of the named workflow. The returned slice is a copy.
func Lookup(name string) ([]pipeline.Stage, error) {
	def, ok := Registry[name]
	if !ok {
		return nil, &UnknownWorkflowError{Name: name}
	}
	return append([]pipeline.Stage(nil), def.Stages...), nil
}

// Build returns the stages of the named workflow with its AI check prompt
// replaced by overrides[name] when present.
func Build(name string, overrides prompts.Set) ([]pipeline.Stage, error) {
	stages, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	prompt, ok := overrides[name]
	if !ok {
		return stages, nil
	}
	for i := range stages {
		if stages[i].Kind == pipeline.KindAICheck {
			stages[i].Prompt = prompt
		}
	}
	return stages, nil
}

// Names returns the registered workflow names in sorted order
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSequence checks that every stage's dependencies appear before it
func ValidateSequence(stages []pipeline.Stage) error {
	seen := make(map[pipeline.Kind]bool)

	for i, stage := range stages {
		deps, ok := dependencies[stage.Kind]
		if !ok {
			return fmt.Errorf("unknown stage kind: %s", stage.Kind)
		}

		var missing []pipeline.Kind
		for _, dep := range deps {
			if !seen[dep] {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			return &DependencyError{
				Stage:               stage,
				Index:               i,
				MissingDependencies: missing,
			}
		}

		seen[stage.Kind] = true
	}

	return nil
}
