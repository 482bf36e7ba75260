package council

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrStreamClosed is returned by emitters after the terminal event was written.
var ErrStreamClosed = errors.New("event stream closed")

// Emitter delivers session events to one client. An Emit error means the
// client can no longer be reached.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event) error

func (f EmitterFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Sink receives a copy of every event on a best-effort basis.
type Sink interface {
	Publish(ctx context.Context, sessionID string, ev Event) error
}

// Tee forwards events to primary and copies them to sinks. Sink failures are
// logged and never fail the session.
func Tee(primary Emitter, sessionID string, logger *log.Logger, sinks ...Sink) Emitter {
	if len(sinks) == 0 {
		return primary
	}
	if logger == nil {
		logger = log.Default()
	}
	return EmitterFunc(func(ctx context.Context, ev Event) error {
		err := primary.Emit(ctx, ev)
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if perr := s.Publish(ctx, sessionID, ev); perr != nil {
				logger.Printf("council: sink publish failed (session=%s type=%s): %v", sessionID, ev.Type, perr)
			}
		}
		return err
	})
}

// Once guards an emitter so nothing is written after a terminal event.
type Once struct {
	next   Emitter
	mu     sync.Mutex
	closed bool
}

func NewOnce(next Emitter) *Once { return &Once{next: next} }

func (o *Once) Emit(ctx context.Context, ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrStreamClosed
	}
	if ev.Terminal() {
		o.closed = true
	}
	return o.next.Emit(ctx, ev)
}

// Closed reports whether a terminal event has been emitted.
func (o *Once) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Recorder collects events in memory. Useful for tests and for callers that
// want the full transcript.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
