package control

import (
	"context"
	"log/slog"
	"sync"
)

// Executor runs one command to completion. The controller implements it;
// tests substitute recorders.
type Executor interface {
	Execute(cmd Command)
}

// Dispatcher is a single-consumer command queue. Any number of goroutines
// may Enqueue; one worker started by Run executes commands strictly in
// enqueue order, one at a time. Enqueue never blocks and never fails: the
// queue is unbounded, producers being rate-limited by frame production and
// user actions rather than load.
//
// Each worker wake-up drains everything queued at that point before
// checking for cancellation again, so bursts coalesce into one cycle.
type Dispatcher struct {
	log  *slog.Logger
	exec Executor

	mu      sync.Mutex
	pending []Command
	wake    chan struct{}
}

// NewDispatcher creates a Dispatcher delivering to exec. If log is nil,
// slog.Default() is used.
func NewDispatcher(exec Executor, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:  log.With("component", "dispatcher"),
		exec: exec,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends cmd to the queue and nudges the worker.
func (d *Dispatcher) Enqueue(cmd Command) {
	d.mu.Lock()
	d.pending = append(d.pending, cmd)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run owns the worker loop. It blocks until ctx is cancelled; commands
// still queued at cancellation are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}

		for _, cmd := range d.take() {
			d.log.Debug("executing command", "kind", cmd.Kind.String(), "target", cmd.Target)
			d.exec.Execute(cmd)
		}
	}
}

// take swaps out the pending queue under the lock.
func (d *Dispatcher) take() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := d.pending
	d.pending = nil
	return batch
}
