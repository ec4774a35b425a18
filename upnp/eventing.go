package upnp

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zsiec/dlnacast/renderer"
)

// subscribeTimeout is the GENA subscription duration requested from the
// renderer. Subscriptions are best-effort and not renewed: the periodic
// state queries remain the authoritative reconciliation path.
const subscribeTimeout = "Second-1800"

// Subscriber enables UPnP eventing on renderer services and feeds NOTIFY
// callbacks back into the registry. It is also the http.Handler for the
// event callback endpoint.
type Subscriber struct {
	log      *slog.Logger
	registry *renderer.Registry

	// callbackURL is the absolute URL renderers deliver NOTIFY requests to.
	callbackURL string
	client      *http.Client

	mu   sync.Mutex
	sids map[string]string // subscription id -> UDN
}

// NewSubscriber creates a Subscriber delivering events for callbackURL.
// If log is nil, slog.Default() is used.
func NewSubscriber(registry *renderer.Registry, callbackURL string, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		log:         log.With("component", "gena-subscriber"),
		registry:    registry,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 5 * time.Second},
		sids:        make(map[string]string),
	}
}

// Subscribe issues a GENA SUBSCRIBE for one service event endpoint.
// Failures are logged and otherwise ignored.
func (s *Subscriber) Subscribe(udn, eventURL string) {
	req, err := http.NewRequest("SUBSCRIBE", eventURL, nil)
	if err != nil {
		s.log.Warn("subscribe request build failed", "udn", udn, "error", err)
		return
	}
	req.Header.Set("CALLBACK", fmt.Sprintf("<%s>", s.callbackURL))
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", subscribeTimeout)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("subscribe failed", "udn", udn, "url", eventURL, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("subscribe rejected", "udn", udn, "status", resp.StatusCode)
		return
	}
	sid := resp.Header.Get("SID")
	if sid == "" {
		return
	}

	s.mu.Lock()
	s.sids[sid] = udn
	s.mu.Unlock()
	s.log.Debug("subscribed", "udn", udn, "sid", sid)
}

// Forget drops all subscription state for a renderer that went away.
func (s *Subscriber) Forget(udn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, u := range s.sids {
		if u == udn {
			delete(s.sids, sid)
		}
	}
}

// ServeHTTP handles NOTIFY deliveries. Transport state changes found in a
// LastChange property are written to the registry; everything else is
// acknowledged and dropped.
func (s *Subscriber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "NOTIFY" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	udn, known := s.sids[r.Header.Get("SID")]
	s.mu.Unlock()

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || !known {
		w.WriteHeader(http.StatusOK)
		return
	}

	if state, ok := transportStateFromNotify(body); ok {
		s.log.Debug("event state change", "udn", udn, "state", state)
		s.registry.UpdateState(udn, renderer.StateFromName(state))
	}
	w.WriteHeader(http.StatusOK)
}

// transportStateFromNotify digs the TransportState value out of a GENA
// property set. The LastChange property carries an escaped AVT event
// document, so the body is parsed in two passes.
func transportStateFromNotify(body []byte) (string, bool) {
	var set struct {
		LastChange []string `xml:"property>LastChange"`
	}
	if err := xml.Unmarshal(body, &set); err != nil {
		return "", false
	}

	for _, change := range set.LastChange {
		var event struct {
			TransportState struct {
				Val string `xml:"val,attr"`
			} `xml:"InstanceID>TransportState"`
		}
		if err := xml.Unmarshal([]byte(change), &event); err != nil {
			continue
		}
		if event.TransportState.Val != "" {
			return event.TransportState.Val, true
		}
	}
	return "", false
}
