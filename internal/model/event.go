package model

import "time"

// EventKind is the lifecycle transition an AnalysisEvent reports.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// AnalysisEvent is a progress notification for one run. Events are
// delivered once and never retained by the bus.
type AnalysisEvent struct {
	Kind      EventKind      `json:"kind"`
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage,omitempty"`
	Progress  *int           `json:"progress,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(kind EventKind, runID, stage string) AnalysisEvent {
	return AnalysisEvent{
		Kind:      kind,
		RunID:     runID,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
}

// WithProgress returns a copy of the event carrying pct (clamped to 0..100).
func (e AnalysisEvent) WithProgress(pct int) AnalysisEvent {
	pct = max(0, min(100, pct))
	e.Progress = &pct
	return e
}

// WithPayload returns a copy of the event with key set in its payload.
func (e AnalysisEvent) WithPayload(key string, value any) AnalysisEvent {
	p := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		p[k] = v
	}
	p[key] = value
	e.Payload = p
	return e
}
