// Package notify delivers scaling intents to external sinks. Delivery
// is best-effort: callers log failures and move on, they never retry.
package notify

import (
	"context"
	"sync"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Notifier delivers a scaling intent to one external sink
type Notifier interface {
	// Notify emits the intent. The context carries the caller's
	// delivery deadline.
	Notify(ctx context.Context, intent types.ScalingIntent) error

	// Close releases the sink's resources
	Close() error
}

// Nop is a sink that accepts and discards every intent
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(ctx context.Context, intent types.ScalingIntent) error { return nil }

// Close implements Notifier
func (Nop) Close() error { return nil }

// Multi fans an intent out to several sinks. Every sink is attempted;
// the first error encountered is returned.
type Multi struct {
	sinks []Notifier
}

// NewMulti composes the given sinks into one notifier
func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

// Notify delivers to all sinks
func (m *Multi) Notify(ctx context.Context, intent types.ScalingIntent) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, intent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all sinks
func (m *Multi) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recorder is a test sink that captures intents and can be told to fail
type Recorder struct {
	intents []types.ScalingIntent
	failErr error
	mu      sync.Mutex
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records the intent, or fails if a failure is configured
func (r *Recorder) Notify(ctx context.Context, intent types.ScalingIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return r.failErr
	}
	r.intents = append(r.intents, intent)
	return nil
}

// Close implements Notifier
func (r *Recorder) Close() error { return nil }

// SetError makes subsequent Notify calls fail with err; nil restores
// normal recording
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Intents returns a copy of the recorded intents
func (r *Recorder) Intents() []types.ScalingIntent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.ScalingIntent, len(r.intents))
	copy(out, r.intents)
	return out
}
