package analysis

import (
	"errors"
	"fmt"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/scoring"
)

// ErrorKind tags a pipeline failure.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindModelInvocation   ErrorKind = "model_invocation_failure"
	KindParse             ErrorKind = "parse_failure"
	KindSchema            ErrorKind = "schema_violation"
	KindAggregation       ErrorKind = "aggregation_inconsistency"
	KindSubscriberFailure ErrorKind = "subscriber_failure"
	KindUnclassified      ErrorKind = "unclassified"
)

// StageError is the typed failure of a single stage or check execution.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("analysis: %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PipelineError is the single terminal error of a sequential run. It names
// exactly one failing stage.
type PipelineError struct {
	RunID string
	Stage model.StageName
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("analysis: run %s failed at stage %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Kind returns the kind of the underlying stage failure.
func (e *PipelineError) Kind() ErrorKind {
	return KindOf(e.Err)
}

// KindOf maps any error to its taxonomy kind.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	var ae *scoring.AggregationError
	if errors.As(err, &ae) {
		return KindAggregation
	}
	var sub *events.SubscriberError
	if errors.As(err, &sub) {
		return KindSubscriberFailure
	}
	if errors.Is(err, model.ErrEmptyDocument) {
		return KindInvalidInput
	}
	return KindUnclassified
}
