package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/dlnacast/capture"
	"github.com/zsiec/dlnacast/control"
	"github.com/zsiec/dlnacast/renderer"
	"github.com/zsiec/dlnacast/session"
)

type fakeQueue struct {
	mu   sync.Mutex
	cmds []control.Command
}

func (q *fakeQueue) Enqueue(cmd control.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, cmd)
}

func (q *fakeQueue) kinds() []control.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	kinds := make([]control.Kind, len(q.cmds))
	for i, c := range q.cmds {
		kinds[i] = c.Kind
	}
	return kinds
}

func captureConfigForTest() capture.Config {
	return capture.Config{Type: capture.SourceStreaming, Port: 0}
}

type fixture struct {
	queue    *fakeQueue
	registry *renderer.Registry
	mgr      *session.Manager
	srv      *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	q := &fakeQueue{}
	g := renderer.NewRegistry(nil)
	mgr := session.NewManager(q, "http://10.0.0.5:7071", nil)
	srv := New(mgr, g, q, nil, nil)
	srv.settle = 10 * time.Millisecond
	return &fixture{queue: q, registry: g, mgr: mgr, srv: srv}
}

func TestDMRsScansAndLists(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.registry.Upsert(&renderer.Renderer{UDN: "uuid:a", Name: "Living Room"})
	f.registry.Upsert(&renderer.Renderer{UDN: "uuid:b", Name: "Bedroom"})

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dmrs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var list dmrList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if list.Len != 2 || len(list.DMRs) != 2 {
		t.Fatalf("list: got %+v, want 2 renderers", list)
	}
	if list.DMRs[0].Name != "Living Room" || list.DMRs[0].USN != "uuid:a" {
		t.Errorf("first entry: got %+v", list.DMRs[0])
	}

	kinds := f.queue.kinds()
	if len(kinds) != 1 || kinds[0] != control.KindScan {
		t.Errorf("enqueued commands: got %v, want one scan", kinds)
	}
	if !f.mgr.Available("uuid:a") {
		t.Error("listed renderer not marked available")
	}
}

func TestStreamRejectsNonPOST(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?action=play", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", rec.Code)
	}
}

func TestStreamRejectsBadRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, target := range []string{
		"/stream",
		"/stream?action=rewind",
		"/stream?action=play&endpoint=cam",                            // no device
		"/stream?action=play&device=uuid:a",                           // no endpoint
		"/stream?action=play&device=uuid:a&endpoint=cam&source=webrtc", // bad source
		"/stream?action=stop",                                         // no id
		"/stream?action=stop&id=999",                                  // unknown id
	} {
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", target, rec.Code)
		}
	}
}

func TestStreamPlayRequiresAvailableRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/stream?action=play&device=uuid:a&endpoint=cam&source=streaming", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status for undiscovered renderer: got %d, want 503", rec.Code)
	}
}

func TestStreamPlayStartsSessionAndMountsRoute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.MarkSeen([]string{"uuid:a"})

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/stream?action=play&device=uuid:a&endpoint=cam&source=streaming", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if id := rec.Header().Get("Identifier"); id != "9235" {
		t.Errorf("Identifier: got %q, want 9235", id)
	}
	if hp := rec.Header().Get("Healthport"); hp != "3221" {
		t.Errorf("Healthport: got %q, want 3221", hp)
	}

	head := httptest.NewRecorder()
	f.srv.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/cam9235.mp4", nil))
	if head.Code != http.StatusOK {
		t.Fatalf("HEAD on media route: got %d", head.Code)
	}
	h := head.Header()
	if h.Get("contentFeatures.dlna.org") != contentFeatures {
		t.Errorf("contentFeatures: got %q", h.Get("contentFeatures.dlna.org"))
	}
	if h.Get("transferMode.dlna.org") != "Streaming" {
		t.Errorf("transferMode: got %q", h.Get("transferMode.dlna.org"))
	}
	if h.Get("Content-Type") != "video/mp4" {
		t.Errorf("Content-Type: got %q", h.Get("Content-Type"))
	}
}

func TestStreamPlayAcceptedBeforeAnyRendererListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Discovery publishes the renderer and primes availability directly;
	// no /dmrs request has happened yet.
	f.registry.Upsert(&renderer.Renderer{UDN: "uuid:a", Name: "Living Room"})
	f.mgr.MarkAvailable("uuid:a")

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/stream?action=play&device=uuid:a&endpoint=cam&source=streaming", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("play before any listing: got %d, want 200", rec.Code)
	}
}

func TestStreamPlayRefusesBusyRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.MarkSeen([]string{"uuid:a"})

	target := "/stream?action=play&device=uuid:a&endpoint=cam&source=streaming"
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first play: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("second play on busy renderer: got %d, want 503", rec.Code)
	}
}

func TestMediaRouteDeliversBufferedStream(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.MarkSeen([]string{"uuid:a"})

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/stream?action=play&device=uuid:a&endpoint=cam&source=streaming", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("play: got %d", rec.Code)
	}

	sess, ok := f.mgr.Get(9235)
	if !ok {
		t.Fatal("session not found")
	}
	sess.HandleEncoded([]byte("ftypiso5-and-moof-bytes"))

	// The GET polls the live stream until the session ends, so serve it
	// on its own goroutine and stop the session to finish the delivery.
	get := httptest.NewRecorder()
	served := make(chan struct{})
	go func() {
		defer close(served)
		f.srv.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/cam9235.mp4", nil))
	}()

	time.Sleep(50 * time.Millisecond)
	f.mgr.Stop(sess.ID)
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("media fetch did not end after the session stopped")
	}

	if !strings.Contains(get.Body.String(), "ftypiso5") {
		t.Errorf("media body missing stream bytes: %q", get.Body.String())
	}

	// A finished fetch also unmounts the route, even though the session
	// was stopped elsewhere.
	head := httptest.NewRecorder()
	f.srv.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/cam9235.mp4", nil))
	if head.Code != http.StatusNotFound {
		t.Errorf("media route after fetch ended: got %d, want 404", head.Code)
	}
	if !f.mgr.Available("uuid:a") {
		t.Error("renderer not released after the media fetch ended")
	}
}

func TestStreamStopUnmountsRoute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.MarkSeen([]string{"uuid:a"})

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/stream?action=play&device=uuid:a&endpoint=cam&source=streaming", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("play: got %d", rec.Code)
	}

	stop := httptest.NewRecorder()
	f.srv.ServeHTTP(stop, httptest.NewRequest(http.MethodPost, "/stream?action=stop&id=9235", nil))
	if stop.Code != http.StatusOK {
		t.Fatalf("stop: got %d", stop.Code)
	}

	head := httptest.NewRecorder()
	f.srv.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/cam9235.mp4", nil))
	if head.Code != http.StatusNotFound {
		t.Errorf("media route after stop: got %d, want 404", head.Code)
	}
	if !f.mgr.Available("uuid:a") {
		t.Error("renderer not released after stop")
	}
}

func TestStatusMonitorAnswersQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.MarkSeen([]string{"uuid:a"})
	sess, err := f.mgr.Start("uuid:a", "cam", captureConfigForTest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.mgr.Stop(sess.ID)
	sess.HandleEncoded([]byte{1})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewStatusMonitor(f.mgr, nil).Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for _, tc := range []struct {
		query string
		want  string
	}{
		{"status:9235", session.DeviceRun},
		{"status:42", session.DeviceDown},
		{"bogus line", session.DeviceDown},
	} {
		if _, err := io.WriteString(conn, tc.query+"\r\n"); err != nil {
			t.Fatalf("write %q: %v", tc.query, err)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read reply to %q: %v", tc.query, err)
		}
		if got := strings.TrimRight(line, "\r\n"); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.query, got, tc.want)
		}
	}
}
