package control

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingExecutor collects executed commands in order.
type recordingExecutor struct {
	mu   sync.Mutex
	cmds []Command
}

func (r *recordingExecutor) Execute(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
}

func (r *recordingExecutor) snapshot() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDispatcherFIFO(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	d := NewDispatcher(exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(Command{Kind: KindPlay, Target: "A", URL: "http://host/a.mp4"})
	d.Enqueue(Command{Kind: KindStop, Target: "B"})
	d.Enqueue(Command{Kind: KindPlay, Target: "C", URL: "http://host/c.mp4"})

	waitFor(t, func() bool { return len(exec.snapshot()) == 3 })

	got := exec.snapshot()
	want := []struct {
		kind   Kind
		target string
	}{
		{KindPlay, "A"},
		{KindStop, "B"},
		{KindPlay, "C"},
	}
	for i, w := range want {
		if got[i].Kind != w.kind || got[i].Target != w.target {
			t.Errorf("command %d: got %v/%q, want %v/%q",
				i, got[i].Kind, got[i].Target, w.kind, w.target)
		}
	}
}

func TestDispatcherDrainsBursts(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	d := NewDispatcher(exec, nil)

	// Enqueue before the worker starts; a single wake must drain everything.
	for i := 0; i < 50; i++ {
		d.Enqueue(Command{Kind: KindScan})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	waitFor(t, func() bool { return len(exec.snapshot()) == 50 })
}

func TestDispatcherEnqueueNeverBlocks(t *testing.T) {
	t.Parallel()

	// No worker running at all: Enqueue must still return promptly.
	d := NewDispatcher(&recordingExecutor{}, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.Enqueue(Command{Kind: KindStop, Target: "X"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked without a consumer")
	}
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&recordingExecutor{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
