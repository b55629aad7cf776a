// Package schedule provides the recurring-task loop shared by the
// health checker, the router monitor, the policy engine and the
// session sweeper.
package schedule

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Task runs a function on a fixed interval until stopped. Start and
// Stop are safe to call from multiple goroutines; Stop is idempotent
// and waits for the loop goroutine to exit.
type Task struct {
	name     string
	interval time.Duration
	fn       func()

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	mu      sync.Mutex
}

// NewTask creates a task that invokes fn every interval once started
func NewTask(name string, interval time.Duration, fn func()) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

// Start launches the ticker loop. Starting a running task is a no-op.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.running = true

	go t.loop(t.stopCh, t.doneCh)

	log.WithFields(log.Fields{
		"task":     t.name,
		"interval": t.interval,
	}).Debug("Scheduled task started")
}

func (t *Task) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.fn()
		case <-stopCh:
			return
		}
	}
}

// Stop halts the loop and waits for it to exit. An in-flight tick
// completes; it is not interrupted.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	doneCh := t.doneCh
	t.mu.Unlock()

	<-doneCh

	log.WithFields(log.Fields{"task": t.name}).Debug("Scheduled task stopped")
}

// Running reports whether the loop is active
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
