package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus is the outcome of one stage execution
type StageStatus string

// Stage statuses
const (
	StatusOK     StageStatus = "ok"
	StatusFailed StageStatus = "failed"
)

// StageRecord is an immutable log entry for one stage execution
type StageRecord struct {
	Stage    Stage
	Status   StageStatus
	Started  time.Time
	Duration time.Duration
	Error    string
}

// State is the data threaded through one pipeline run. Stages receive a State
// value and return a new one; History is never shared between values.
type State struct {
	RunID  string
	Source string
	// Current is the kind of the stage being (or last) executed
	Current Kind
	// Data is the payload for the next stage: archive path, corpus or comment
	Data string
	// Results is the last AI output
	Results string
	// Output is the last rendered report or reply
	Output  string
	History []StageRecord
}

// NewState starts a run over data. source names the submission for reports.
func NewState(source, data string) State {
	return State{
		RunID:  uuid.NewString(),
		Source: source,
		Data:   data,
	}
}

// withRecord returns a copy of s with rec appended to a fresh History slice
func (s State) withRecord(rec StageRecord) State {
	history := make([]StageRecord, len(s.History), len(s.History)+1)
	copy(history, s.History)
	s.History = append(history, rec)
	return s
}

// Failed returns the record of the stage that failed, if any
func (s State) Failed() (StageRecord, bool) {
	for _, rec := range s.History {
		if rec.Status == StatusFailed {
			return rec, true
		}
	}
	return StageRecord{}, false
}
