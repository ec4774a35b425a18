// Package server exposes the HTTP control surface and the media delivery
// endpoints: renderer listing with an on-demand scan, session start/stop,
// per-session stream routes with DLNA headers, the GENA event callback,
// and a TCP status monitor for watchdog clients.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zsiec/dlnacast/capture"
	"github.com/zsiec/dlnacast/control"
	"github.com/zsiec/dlnacast/renderer"
	"github.com/zsiec/dlnacast/session"
)

// maxListedRenderers caps the /dmrs response; scans beyond this are
// truncated, not an error.
const maxListedRenderers = 10

// defaultScanSettle is how long /dmrs lets discovery responses trickle in
// before snapshotting the registry.
const defaultScanSettle = 5 * time.Second

// monitorPort is advertised to stream clients for the status monitor.
const monitorPort = "3221"

// contentFeatures is the DLNA.ORG_PN profile string advertised on every
// media response.
const contentFeatures = "DLNA.ORG_PN=AVC_MP4_BL_CIF15_AAC_520;DLNA.ORG_OP=00;DLNA.ORG_CI=1;DLNA.ORG_FLAGS=05700000000000000000000000000000"

type dmrEntry struct {
	Name string `json:"name"`
	USN  string `json:"usn"`
}

type dmrList struct {
	Len  int        `json:"len"`
	DMRs []dmrEntry `json:"dmrs"`
}

// Server is the HTTP front of the relay.
type Server struct {
	log      *slog.Logger
	mgr      *session.Manager
	registry *renderer.Registry
	queue    session.Enqueuer
	events   http.Handler
	settle   time.Duration

	mu     sync.Mutex
	routes map[string]*session.Session

	mux *http.ServeMux
}

// New wires the server. events handles GENA notifications and may be nil.
// If log is nil, slog.Default() is used.
func New(mgr *session.Manager, registry *renderer.Registry, queue session.Enqueuer, events http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:      log.With("component", "http-server"),
		mgr:      mgr,
		registry: registry,
		queue:    queue,
		events:   events,
		settle:   defaultScanSettle,
		routes:   make(map[string]*session.Session),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/dmrs", s.handleDMRs)
	s.mux.HandleFunc("/stream", s.handleStream)
	if events != nil {
		s.mux.Handle("/events", events)
	}
	s.mux.HandleFunc("/", s.handleMedia)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleDMRs triggers a network scan, waits out the settle window, and
// answers with the registry snapshot.
func (s *Server) handleDMRs(w http.ResponseWriter, r *http.Request) {
	s.queue.Enqueue(control.Command{Kind: control.KindScan})

	select {
	case <-r.Context().Done():
		return
	case <-time.After(s.settle):
	}

	renderers := s.registry.ListAll(maxListedRenderers)

	list := dmrList{Len: len(renderers)}
	udns := make([]string, 0, len(renderers))
	for _, rd := range renderers {
		list.DMRs = append(list.DMRs, dmrEntry{Name: rd.Name, USN: rd.UDN})
		udns = append(udns, rd.UDN)
	}
	s.mgr.MarkSeen(udns)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		s.log.Debug("dmrs response write failed", "error", err)
	}
}

// handleStream starts and stops relay sessions.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	switch q.Get("action") {
	case "play":
		s.startStream(w, q.Get("device"), q.Get("endpoint"), q.Get("source"), q.Get("port"))
	case "stop":
		if id, err := strconv.Atoi(q.Get("id")); err == nil && s.stopStream(id) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (s *Server) startStream(w http.ResponseWriter, device, endpoint, source, port string) {
	if device == "" || endpoint == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if source == "" {
		source = string(capture.SourceCamera)
	}
	srcType, err := capture.ParseSourceType(source)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cfg := capture.Config{Type: srcType}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cfg.Port = p
	}

	if !s.mgr.Available(device) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	sess, err := s.mgr.Start(device, endpoint, cfg)
	if err != nil {
		s.log.Warn("session start failed", "device", device, "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	s.routes[sess.Path] = sess
	s.mu.Unlock()

	w.Header().Add("Identifier", strconv.Itoa(sess.ID))
	w.Header().Add("Healthport", monitorPort)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) stopStream(id int) bool {
	sess, ok := s.mgr.Get(id)
	if !ok {
		return false
	}
	s.teardown(sess)
	return true
}

// teardown unmounts the media route and stops the session. Safe to call
// for a session already stopped elsewhere; the route still comes down.
func (s *Server) teardown(sess *session.Session) {
	s.mu.Lock()
	delete(s.routes, sess.Path)
	s.mu.Unlock()
	s.mgr.Stop(sess.ID)
}

// handleMedia serves the per-session stream routes. Renderers probe with
// HEAD before fetching; both verbs answer with the DLNA headers.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess := s.routes[r.URL.Path]
	s.mu.Unlock()
	if sess == nil {
		http.NotFound(w, r)
		return
	}

	h := w.Header()
	h.Set("Pragma", "no-cache")
	h.Set("Cache-control", "no-cache")
	h.Set("Accept-Ranges", "none")
	h.Add("contentFeatures.dlna.org", contentFeatures)
	h.Add("transferMode.dlna.org", "Streaming")
	h.Set("Content-Type", "video/mp4")

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		s.log.Info("media fetch", "session", sess.ID, "remote", r.RemoteAddr)
		http.ServeContent(w, r, "stream.mp4", time.Now(), sess)
		// The renderer hung up or the session was stopped; either way
		// this delivery is finished.
		s.log.Info("media fetch ended, tearing down", "session", sess.ID)
		s.teardown(sess)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
