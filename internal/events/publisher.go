package events

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// Publisher hands committed events to downstream consumers (notifications,
// audit sinks). Publishing happens after the store commit.
type Publisher interface {
	Publish(ctx context.Context, rec domain.EventRecord) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.EventRecord) error { return nil }

// LogPublisher writes events to a logger at debug level.
type LogPublisher struct {
	Logger *log.Logger
}

func (p LogPublisher) Publish(_ context.Context, rec domain.EventRecord) error {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Debug("event", "type", rec.Type, "entity_kind", rec.EntityKind, "entity_id", rec.EntityID, "actor", rec.ActorID)
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, rec domain.EventRecord) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []domain.EventRecord
	// Err, when set, is returned from every Publish after recording.
	Err error
}

func (r *Recorder) Publish(_ context.Context, rec domain.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, rec)
	return r.Err
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []domain.EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventRecord, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
