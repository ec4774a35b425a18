// Package relay implements the byte buffer that sits between the encoder
// callback (producer) and the HTTP media endpoint (consumer). The producer
// appends encoded chunks without blocking; the consumer pulls bytes with a
// bounded wait, treating "no data yet" as a valid empty result.
package relay

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// pullInterval is how long an empty Pull sleeps between re-checks.
	pullInterval = 50 * time.Millisecond
	// pullAttempts bounds the number of re-checks before Pull gives up
	// and returns zero bytes (~0.5s total).
	pullAttempts = 10
)

// Buffer is a FIFO byte buffer safe for one producer and concurrent
// consumers. Frame boundaries are not preserved: once pushed, bytes are an
// opaque stream and a Pull may split or merge frames freely.
//
// The first transition from empty to non-empty after the session's first
// Push fires onFirstData exactly once. The callback runs on the producer's
// goroutine after the chunk is already buffered, so a consumer woken by it
// will find data available.
type Buffer struct {
	log         *slog.Logger
	onFirstData func()

	mu       sync.Mutex
	data     []byte
	consumed int64
	primed   bool
}

// NewBuffer creates a Buffer. onFirstData may be nil. If log is nil,
// slog.Default() is used.
func NewBuffer(log *slog.Logger, onFirstData func()) *Buffer {
	if log == nil {
		log = slog.Default()
	}
	return &Buffer{
		log:         log.With("component", "relay-buffer"),
		onFirstData: onFirstData,
	}
}

// Push appends p to the buffer. It never blocks beyond the brief internal
// lock and never fails; growth is amortized and the consumer is expected to
// drain promptly.
func (b *Buffer) Push(p []byte) {
	if len(p) == 0 {
		return
	}

	b.mu.Lock()
	b.data = append(b.data, p...)
	fire := !b.primed
	b.primed = true
	b.mu.Unlock()

	if fire {
		b.log.Debug("first data buffered", "bytes", len(p))
		if b.onFirstData != nil {
			b.onFirstData()
		}
	}
}

// Pull copies up to len(dst) bytes from the front of the buffer into dst and
// removes them, returning the number of bytes copied. If the buffer is
// empty, Pull sleeps pullInterval and re-checks, at most pullAttempts times,
// then returns 0. Zero means "no data yet", not an error. The lock is held
// only for the copy, never across the sleeps.
func (b *Buffer) Pull(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}

	for try := 0; ; try++ {
		b.mu.Lock()
		if len(b.data) > 0 {
			n := copy(dst, b.data)
			b.data = b.data[:copy(b.data, b.data[n:])]
			b.consumed += int64(n)
			b.mu.Unlock()
			return n
		}
		b.mu.Unlock()

		if try >= pullAttempts {
			return 0
		}
		time.Sleep(pullInterval)
	}
}

// Len returns the number of buffered bytes not yet pulled.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Consumed returns the total number of bytes handed to consumers so far.
func (b *Buffer) Consumed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumed
}
