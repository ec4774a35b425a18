package upnp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/av1"
	"github.com/koron/go-ssdp"

	"github.com/zsiec/dlnacast/renderer"
)

// mediaRendererType is the SSDP search target for DLNA playback devices.
const mediaRendererType = "urn:schemas-upnp-org:device:MediaRenderer:1"

// searchWait is how long an active M-SEARCH listens for responses. It is
// well inside the caller-visible scan settle window.
const searchWait = 3

// Monitor watches the local network for media renderers and keeps the
// registry in sync: alive announcements and search responses resolve the
// device description and publish a renderer; byebye announcements remove
// it. A renderer is only published once its AVTransport, RenderingControl
// and ConnectionManager endpoints all resolved.
type Monitor struct {
	log      *slog.Logger
	registry *renderer.Registry

	// OnAdded, if set, is invoked with the UDN after a renderer is first
	// published. Set it before Start.
	OnAdded func(udn string)

	// OnRemoved, if set, is invoked with the UDN after a renderer's byebye
	// announcement removed it from the registry. Set it before Start.
	OnRemoved func(udn string)

	// subscriber, if set, receives the event endpoints of every published
	// renderer for GENA subscription.
	subscriber *Subscriber

	monitor *ssdp.Monitor
}

// NewMonitor creates a Monitor feeding the registry. subscriber may be
// nil. If log is nil, slog.Default() is used.
func NewMonitor(registry *renderer.Registry, subscriber *Subscriber, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		log:        log.With("component", "upnp-monitor"),
		registry:   registry,
		subscriber: subscriber,
	}
}

// Start begins passive SSDP monitoring and runs one initial active search,
// then blocks until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.monitor = &ssdp.Monitor{
		Alive: m.handleAlive,
		Bye:   m.handleBye,
	}
	if err := m.monitor.Start(); err != nil {
		return fmt.Errorf("start ssdp monitor: %w", err)
	}
	m.log.Info("ssdp monitor started")

	go m.Rescan()

	<-ctx.Done()
	m.monitor.Close()
	return nil
}

// Rescan performs an active M-SEARCH for media renderers and resolves any
// responders not yet in the registry. It blocks for the search wait
// (seconds-scale) and is safe to call from any goroutine.
func (m *Monitor) Rescan() {
	services, err := ssdp.Search(mediaRendererType, searchWait, "")
	if err != nil {
		m.log.Warn("ssdp search failed", "error", err)
		return
	}
	m.log.Debug("ssdp search done", "responses", len(services))
	for _, svc := range services {
		m.observed(svc.USN, svc.Location)
	}
}

func (m *Monitor) handleAlive(msg *ssdp.AliveMessage) {
	if msg.Type != mediaRendererType {
		return
	}
	m.observed(msg.USN, msg.Location)
}

func (m *Monitor) handleBye(msg *ssdp.ByeMessage) {
	if msg.Type != mediaRendererType {
		return
	}
	udn := udnFromUSN(msg.USN)
	if m.subscriber != nil {
		m.subscriber.Forget(udn)
	}
	m.registry.Remove(udn)
	if m.OnRemoved != nil {
		m.OnRemoved(udn)
	}
}

// observed handles one discovery sighting. Description fetch is network
// I/O, so it runs off the SSDP callback goroutine; the registry's
// idempotent Upsert resolves the race between duplicate sightings.
func (m *Monitor) observed(usn, location string) {
	udn := udnFromUSN(usn)
	if udn == "" || location == "" {
		return
	}
	if _, ok := m.registry.Lookup(udn); ok {
		return
	}
	go m.resolve(udn, location)
}

func (m *Monitor) resolve(udn, location string) {
	loc, err := url.Parse(location)
	if err != nil {
		m.log.Warn("bad device location", "udn", udn, "location", location, "error", err)
		return
	}

	root, err := goupnp.DeviceByURL(loc)
	if err != nil {
		m.log.Warn("device description fetch failed", "udn", udn, "error", err)
		return
	}

	avts, err := av1.NewAVTransport1ClientsFromRootDevice(root, loc)
	if err != nil || len(avts) == 0 {
		m.log.Debug("skipping device without AVTransport", "udn", udn)
		return
	}
	rcs, err := av1.NewRenderingControl1ClientsFromRootDevice(root, loc)
	if err != nil || len(rcs) == 0 {
		m.log.Debug("skipping device without RenderingControl", "udn", udn)
		return
	}
	cms, err := av1.NewConnectionManager1ClientsFromRootDevice(root, loc)
	if err != nil || len(cms) == 0 {
		m.log.Debug("skipping device without ConnectionManager", "udn", udn)
		return
	}

	name := root.Device.FriendlyName
	if name == "" {
		name = udn
	}

	added := m.registry.Upsert(&renderer.Renderer{
		UDN:               udn,
		Name:              name,
		AVTransport:       newAVTransportActor(avts[0]),
		RenderingControl:  newRenderingControlActor(rcs[0]),
		ConnectionManager: newConnectionManagerActor(cms[0]),
	})
	if !added {
		return
	}

	if m.subscriber != nil {
		if u := avts[0].Service.EventSubURL; u.Ok {
			m.subscriber.Subscribe(udn, u.URL.String())
		}
		if u := rcs[0].Service.EventSubURL; u.Ok {
			m.subscriber.Subscribe(udn, u.URL.String())
		}
	}
	if m.OnAdded != nil {
		m.OnAdded(udn)
	}
}

// udnFromUSN extracts the device UDN from a unique service name of the
// form "uuid:device::urn:...".
func udnFromUSN(usn string) string {
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}
