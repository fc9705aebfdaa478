package events

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

// LogSubscriber writes every event to the global zap logger.
type LogSubscriber struct{}

// ID implements Subscriber.
func (LogSubscriber) ID() string { return "log" }

// Handle implements Subscriber.
func (LogSubscriber) Handle(_ context.Context, ev model.AnalysisEvent) error {
	fields := []zap.Field{
		zap.String("run_id", ev.RunID),
		zap.String("event", string(ev.Kind)),
	}
	if ev.Stage != "" {
		fields = append(fields, zap.String("stage", ev.Stage))
	}
	if ev.Progress != nil {
		fields = append(fields, zap.Int("progress", *ev.Progress))
	}
	if ev.Kind == model.EventFailed {
		zap.L().Warn("analysis event", fields...)
		return nil
	}
	zap.L().Debug("analysis event", fields...)
	return nil
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	id     string
	mu     sync.Mutex
	events []model.AnalysisEvent
}

// NewRecorder creates a recorder registered under id.
func NewRecorder(id string) *Recorder {
	return &Recorder{id: id}
}

// ID implements Subscriber.
func (r *Recorder) ID() string { return r.id }

// Handle implements Subscriber.
func (r *Recorder) Handle(_ context.Context, ev model.AnalysisEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []model.AnalysisEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AnalysisEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in delivery order.
func (r *Recorder) Kinds() []model.EventKind {
	evs := r.Events()
	out := make([]model.EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

// EventAppender is the append-only store a StoreSink writes to.
type EventAppender interface {
	AppendEvent(ctx context.Context, userID, runID string, ev model.AnalysisEvent) error
}

// StoreSink persists events keyed by (user id, run id).
type StoreSink struct {
	store  EventAppender
	userID string
}

// NewStoreSink creates a sink that attributes events to userID.
func NewStoreSink(st EventAppender, userID string) *StoreSink {
	return &StoreSink{store: st, userID: userID}
}

// ID implements Subscriber.
func (s *StoreSink) ID() string { return "store:" + s.userID }

// Handle implements Subscriber.
func (s *StoreSink) Handle(ctx context.Context, ev model.AnalysisEvent) error {
	if err := s.store.AppendEvent(ctx, s.userID, ev.RunID, ev); err != nil {
		return eris.Wrap(err, "events: append to store")
	}
	return nil
}
