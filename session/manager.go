package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/zsiec/dlnacast/capture"
	"github.com/zsiec/dlnacast/control"
	"github.com/zsiec/dlnacast/relay"
)

// firstSessionID seeds the numeric identifier sequence. Identifiers are
// process-unique and monotonic.
const firstSessionID = 9235

// Renderer availability states as reported to clients.
const (
	DeviceDown  = "down"  // not seen by the last scan
	DeviceReady = "ready" // discovered and idle
	DeviceInit  = "init"  // session starting, no media flowing yet
	DeviceRun   = "run"   // session delivering media
)

// Enqueuer accepts control commands for asynchronous dispatch.
type Enqueuer interface {
	Enqueue(cmd control.Command)
}

// Manager creates and tears down relay sessions and tracks per-renderer
// availability.
type Manager struct {
	log     *slog.Logger
	queue   Enqueuer
	baseURL string

	mu       sync.Mutex
	nextID   int
	sessions map[int]*Session
	byDevice map[string]int
	devices  map[string]string // UDN -> availability state
}

// NewManager creates a Manager serving media under baseURL (scheme, host
// and port, no trailing slash). If log is nil, slog.Default() is used.
func NewManager(queue Enqueuer, baseURL string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		queue:    queue,
		baseURL:  baseURL,
		nextID:   firstSessionID,
		sessions: make(map[int]*Session),
		byDevice: make(map[string]int),
		devices:  make(map[string]string),
	}
}

// Start creates a session relaying the configured source to the given
// renderer. The playback command is not issued here: it fires once the
// source delivers its first chunk, so the renderer never fetches an
// empty stream.
func (m *Manager) Start(device, endpoint string, cfg capture.Config) (*Session, error) {
	src, err := capture.New(cfg, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if id, busy := m.byDevice[device]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("renderer %s already serving session %d", device, id)
	}
	id := m.nextID
	m.nextID++

	path := "/" + endpoint + strconv.Itoa(id) + ".mp4"
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        id,
		Device:    device,
		Path:      path,
		URL:       m.baseURL + path,
		log:       m.log.With("session", id),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    DeviceInit,
		startedAt: time.Now(),
	}
	sess.buf = relay.NewBuffer(sess.log, func() { m.firstData(sess) })

	m.sessions[id] = sess
	m.byDevice[device] = id
	m.devices[device] = DeviceInit
	m.mu.Unlock()

	go func() {
		defer close(sess.done)
		if err := src.Run(ctx, sess.HandleEncoded); err != nil {
			sess.log.Error("source stopped", "error", err)
		}
	}()

	m.log.Info("session started", "id", id, "device", device, "url", sess.URL)
	return sess, nil
}

// firstData runs once per session, when the buffer holds its first
// chunk. Playback starts only now.
func (m *Manager) firstData(sess *Session) {
	sess.setStatus(DeviceRun)
	m.mu.Lock()
	m.devices[sess.Device] = DeviceRun
	m.mu.Unlock()

	m.queue.Enqueue(control.Command{
		Kind:   control.KindPlay,
		Target: sess.Device,
		URL:    sess.URL,
	})
}

// Stop tears down a session and asks the renderer to stop, best-effort.
func (m *Manager) Stop(id int) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	delete(m.byDevice, sess.Device)
	m.devices[sess.Device] = DeviceReady
	m.mu.Unlock()

	sess.cancel()
	m.queue.Enqueue(control.Command{Kind: control.KindStop, Target: sess.Device})
	m.log.Info("session stopped", "id", id, "device", sess.Device)
	return true
}

// Get returns a running session by identifier.
func (m *Manager) Get(id int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// MarkSeen reconciles renderer availability against the latest scan
// snapshot: devices in the snapshot become ready, devices that vanished
// go down. Devices with an active session keep their session state.
func (m *Manager) MarkSeen(udns []string) {
	seen := make(map[string]bool, len(udns))
	for _, u := range udns {
		seen[u] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for udn := range m.devices {
		if _, busy := m.byDevice[udn]; busy {
			continue
		}
		if seen[udn] {
			m.devices[udn] = DeviceReady
		} else {
			m.devices[udn] = DeviceDown
		}
	}
	for udn := range seen {
		if _, known := m.devices[udn]; !known {
			m.devices[udn] = DeviceReady
		}
	}
}

// MarkAvailable records one renderer discovered on the network, making it
// eligible for sessions without waiting for a full scan snapshot. A
// renderer with an active session keeps its session state.
func (m *Manager) MarkAvailable(udn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.byDevice[udn]; busy {
		return
	}
	m.devices[udn] = DeviceReady
}

// MarkGone records one renderer that announced it is leaving the network.
func (m *Manager) MarkGone(udn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.byDevice[udn]; busy {
		return
	}
	m.devices[udn] = DeviceDown
}

// Available reports whether a renderer can accept a new session.
func (m *Manager) Available(udn string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[udn] == DeviceReady
}

// Status reports the lifecycle state of a session for the status
// monitor. Unknown identifiers report down.
func (m *Manager) Status(id int) string {
	sess, ok := m.Get(id)
	if !ok {
		return DeviceDown
	}
	return sess.Status()
}
