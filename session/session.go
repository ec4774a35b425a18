// Package session ties a capture source to the relay buffer and exposes
// the live stream as a seekless reader for HTTP delivery. The manager
// owns session lifecycle, numeric identifiers and per-renderer
// availability.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/dlnacast/media"
	"github.com/zsiec/dlnacast/relay"
)

// liveSize is the stream length reported to seek-to-end probes. Live
// output has no real length; advertising a large one keeps range-probing
// HTTP clients reading from the front.
const liveSize = 1 << 31

// Session is one live relay from a capture source to a renderer.
type Session struct {
	// ID is the numeric session identifier, unique per process.
	ID int
	// Device is the UDN of the renderer this session plays on.
	Device string
	// Path is the media route the stream is served under.
	Path string
	// URL is the absolute media URL handed to the renderer.
	URL string

	log    *slog.Logger
	buf    *relay.Buffer
	corr   media.Corrector
	frames atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	status    string
	startedAt time.Time
	lastSeen  time.Time
}

// HandleEncoded ingests one encoded chunk from the capture source:
// timestamps are rewritten onto the strict frame grid, then the bytes
// are buffered for the HTTP reader.
func (s *Session) HandleEncoded(p []byte) {
	f := media.Frame{Data: p, PTS: media.NoTimestamp}
	s.corr.Correct(&f)
	s.buf.Push(f.Data)
	s.frames.Add(1)
}

// Read pulls buffered stream bytes, waiting briefly for the source to
// catch up. An empty pull is not an error: the source may simply be
// between chunks, so the HTTP copy loop keeps polling. Only a torn-down
// session reports end of stream.
func (s *Session) Read(p []byte) (int, error) {
	n := s.buf.Pull(p)
	if n > 0 {
		return n, nil
	}
	if s.ctx.Err() != nil {
		return 0, io.EOF
	}
	return 0, nil
}

// Seek satisfies the probing done by http.ServeContent. The stream is
// not actually seekable: seek-to-end reports a nominal large size and
// everything else stays at the front.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekEnd {
		return liveSize, nil
	}
	return 0, nil
}

// Frames reports how many encoded chunks the source delivered so far.
func (s *Session) Frames() int64 {
	return s.frames.Load()
}

// Status reports the session lifecycle state: "init" until the first
// chunk is buffered, "run" afterwards.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Touch records liveness from the status monitor.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
