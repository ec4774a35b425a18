package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	srtgo "github.com/zsiec/srtgo"
)

// srtReadBufferSize is the read buffer for SRT socket reads.
// 1316 bytes = 7 MPEG-TS packets (188 * 7), the standard SRT payload size.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// srtSource accepts SRT publish connections and emits their payload as
// encoded chunks. One connection feeds the session at a time; when a
// publisher disconnects the listener accepts the next.
type srtSource struct {
	log  *slog.Logger
	addr string
}

func newSRTSource(cfg Config, log *slog.Logger) *srtSource {
	return &srtSource{
		log:  log.With("component", "srt-source"),
		addr: fmt.Sprintf(":%d", cfg.Port),
	}
}

func (s *srtSource) Run(ctx context.Context, emit func(p []byte)) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		s.log.Info("publish", "stream_id", conn.StreamID(), "remote", conn.RemoteAddr())
		s.serve(ctx, conn, emit)
	}
}

func (s *srtSource) serve(ctx context.Context, conn *srtgo.Conn, emit func(p []byte)) {
	defer conn.Close()

	buf := make([]byte, srtReadBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read error", "error", err)
			}
			return
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(chunk)
		}
	}
}
