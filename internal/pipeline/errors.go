package pipeline

import "fmt"

// StageError reports the stage at which a run stopped. It unwraps to the
// component error, so errors.Is(err, faults.EmptyCorpus) works on it.
type StageError struct {
	Stage Stage
	Index int
	RunID string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Index+1, e.Stage.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
