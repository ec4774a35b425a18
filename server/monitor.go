package server

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/zsiec/dlnacast/session"
)

// StatusMonitor answers "status:<id>" queries over a plain TCP line
// protocol so watchdog clients can poll session health without HTTP.
type StatusMonitor struct {
	log *slog.Logger
	mgr *session.Manager
}

// NewStatusMonitor creates a monitor backed by the session manager.
// If log is nil, slog.Default() is used.
func NewStatusMonitor(mgr *session.Manager, log *slog.Logger) *StatusMonitor {
	if log == nil {
		log = slog.Default()
	}
	return &StatusMonitor{
		log: log.With("component", "status-monitor"),
		mgr: mgr,
	}
}

// Serve accepts monitor connections until ctx is cancelled.
func (m *StatusMonitor) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.Warn("accept error", "error", err)
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
		}
		go m.serveConn(conn)
	}
}

func (m *StatusMonitor) serveConn(conn net.Conn) {
	defer conn.Close()

	reader := textproto.NewReader(bufio.NewReader(conn))
	for {
		line, err := reader.ReadLine()
		if err != nil {
			return
		}

		status := session.DeviceDown
		if key, value, ok := strings.Cut(line, ":"); ok && key == "status" {
			if id, err := strconv.Atoi(value); err == nil {
				status = m.mgr.Status(id)
				if sess, ok := m.mgr.Get(id); ok {
					sess.Touch()
				}
			}
		}

		if _, err := conn.Write([]byte(status + "\r\n")); err != nil {
			return
		}
	}
}
