// Package events broadcasts analysis lifecycle events to subscribers.
//
// Delivery is synchronous and ordered by registration. A subscriber that
// returns an error or panics is logged and skipped; it never blocks delivery
// to the subscribers after it and never fails the run that published.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

// Subscriber receives analysis events.
type Subscriber interface {
	ID() string
	Handle(ctx context.Context, ev model.AnalysisEvent) error
}

// HandlerFunc adapts a function to a Subscriber with the given id.
func HandlerFunc(id string, fn func(ctx context.Context, ev model.AnalysisEvent) error) Subscriber {
	return funcSubscriber{id: id, fn: fn}
}

type funcSubscriber struct {
	id string
	fn func(ctx context.Context, ev model.AnalysisEvent) error
}

func (f funcSubscriber) ID() string { return f.id }

func (f funcSubscriber) Handle(ctx context.Context, ev model.AnalysisEvent) error {
	return f.fn(ctx, ev)
}

// SubscriberError records one isolated delivery failure.
type SubscriberError struct {
	SubscriberID string
	Err          error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("events: subscriber %s: %v", e.SubscriberID, e.Err)
}

func (e *SubscriberError) Unwrap() error { return e.Err }

// Bus is an ordered subscriber registry. The zero value is not usable; call
// NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
	idx  map[string]int
}

// NewBus creates a bus with the given initial subscribers.
func NewBus(subs ...Subscriber) *Bus {
	b := &Bus{idx: make(map[string]int)}
	for _, s := range subs {
		b.Subscribe(s)
	}
	return b
}

// Subscribe registers s. Subscribing an id that is already registered
// replaces the handler but keeps its original position.
func (b *Bus) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.idx[s.ID()]; ok {
		b.subs[i] = s
		return
	}
	b.idx[s.ID()] = len(b.subs)
	b.subs = append(b.subs, s)
}

// Unsubscribe removes the subscriber with the given id. It reports whether
// a subscriber was removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.idx[id]
	if !ok {
		return false
	}
	b.subs = append(b.subs[:i], b.subs[i+1:]...)
	delete(b.idx, id)
	for j := i; j < len(b.subs); j++ {
		b.idx[b.subs[j].ID()] = j
	}
	return true
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// With returns a new bus holding this bus's current subscribers followed by
// extra. Used to attach per-call subscribers to a shared bus.
func (b *Bus) With(extra ...Subscriber) *Bus {
	b.mu.RLock()
	base := make([]Subscriber, len(b.subs))
	copy(base, b.subs)
	b.mu.RUnlock()

	return NewBus(append(base, extra...)...)
}

// Publish delivers ev to every current subscriber in registration order and
// returns the failures it absorbed. The registry is snapshotted under the
// read lock so handlers may subscribe or unsubscribe without deadlocking.
func (b *Bus) Publish(ctx context.Context, ev model.AnalysisEvent) []*SubscriberError {
	b.mu.RLock()
	snapshot := make([]Subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	var failures []*SubscriberError
	for _, s := range snapshot {
		if err := deliver(ctx, s, ev); err != nil {
			se := &SubscriberError{SubscriberID: s.ID(), Err: err}
			failures = append(failures, se)
			zap.L().Warn("events: subscriber failed",
				zap.String("error_kind", "subscriber_failure"),
				zap.String("subscriber", s.ID()),
				zap.String("run_id", ev.RunID),
				zap.String("event", string(ev.Kind)),
				zap.Error(err),
			)
		}
	}
	return failures
}

func deliver(ctx context.Context, s Subscriber, ev model.AnalysisEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return s.Handle(ctx, ev)
}
