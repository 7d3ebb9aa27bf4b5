package pipeline

import "fmt"

// Kind identifies which of the four stage behaviors a Stage runs
type Kind string

// Stage kinds
const (
	KindUnpack   Kind = "unpack"
	KindAICheck  Kind = "ai_check"
	KindReport   Kind = "report"
	KindResponse Kind = "response"
)

// Stage categories, used to group progress output
const (
	CategoryIngestion = "ingestion"
	CategoryReview    = "review"
	CategoryOutput    = "output"
)

// Stage is an immutable stage descriptor. Only the fields relevant to Kind are set.
type Stage struct {
	Kind Kind

	// unpack
	TargetDir string // empty: a per-run directory under Runner.WorkDir
	Extension string // empty: Runner.Extension

	// ai_check
	Prompt      string
	Temperature float32

	// report, response
	Format string
}

// Unpack extracts the archive named by State.Data into targetDir and replaces
// State.Data with the collected corpus.
func Unpack(targetDir string) Stage {
	return Stage{Kind: KindUnpack, TargetDir: targetDir}
}

// AICheck sends State.Data to the AI client under prompt and stores the reply in
// State.Results.
func AICheck(prompt string, temperature float32) Stage {
	return Stage{Kind: KindAICheck, Prompt: prompt, Temperature: temperature}
}

// Report renders State.Results as a graded report.
func Report(format string) Stage {
	return Stage{Kind: KindReport, Format: format}
}

// Response renders State.Results as a conversational reply.
func Response(format string) Stage {
	return Stage{Kind: KindResponse, Format: format}
}

// Category returns the progress category of the stage
func (s Stage) Category() string {
	switch s.Kind {
	case KindUnpack:
		return CategoryIngestion
	case KindAICheck:
		return CategoryReview
	default:
		return CategoryOutput
	}
}

func (s Stage) String() string {
	switch s.Kind {
	case KindUnpack:
		if s.TargetDir == "" {
			return "unpack"
		}
		return fmt.Sprintf("unpack(%s)", s.TargetDir)
	case KindAICheck:
		return fmt.Sprintf("ai_check(%q, %.2f)", s.Prompt, s.Temperature)
	case KindReport, KindResponse:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Format)
	default:
		return string(s.Kind)
	}
}
