package control

import (
	"log/slog"
	"strings"

	"github.com/zsiec/dlnacast/didl"
	"github.com/zsiec/dlnacast/renderer"
)

// Controller translates commands into asynchronous AVTransport actions and
// reconciles registry state from their completions. Actions follow an
// issued -> succeeded|failed life cycle with no retry: a failed action is
// logged with its name and device, prior renderer state stays untouched,
// and the next discovery or query cycle is the recovery path.
type Controller struct {
	log      *slog.Logger
	registry *renderer.Registry

	// rescan triggers the discovery layer's active SSDP search. May be nil
	// in tests.
	rescan func()
}

// NewController creates a Controller bound to the registry. rescan is
// invoked for Scan commands. If log is nil, slog.Default() is used.
func NewController(registry *renderer.Registry, rescan func(), log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		log:      log.With("component", "av-controller"),
		registry: registry,
		rescan:   rescan,
	}
}

// Execute runs one command on the dispatcher worker. The AVTransport
// actions it issues complete asynchronously on other goroutines; Execute
// only blocks for the registry lookups and the action hand-off.
func (c *Controller) Execute(cmd Command) {
	switch cmd.Kind {
	case KindPlay:
		c.play(cmd.Target, cmd.URL)
	case KindStop:
		c.stop(cmd.Target)
	case KindScan:
		if c.rescan != nil {
			c.rescan()
		}
	}
}

// play binds url to the target renderer: build DIDL-Lite metadata against
// the renderer's advertised sink capability, issue SetAVTransportURI, and
// on its success issue Play at speed "1". A failure at either step aborts
// the chain; the second step is never retried alone.
func (c *Controller) play(target, url string) {
	r, ok := c.registry.Lookup(target)
	if !ok {
		c.log.Warn("play aborted, renderer not found", "udn", target)
		return
	}
	if !sinkAccepts(r.SinkProtocolInfo, "video/mp4") {
		c.log.Warn("play aborted, no compatible sink protocol",
			"udn", target, "sink", r.SinkProtocolInfo)
		return
	}

	metadata, err := didl.Build(url, didl.DefaultWidth, didl.DefaultHeight, "video/mp4")
	if err != nil {
		c.log.Warn("play aborted, metadata build failed", "udn", target, "error", err)
		return
	}

	udn := target
	avt := r.AVTransport
	avt.Begin("SetAVTransportURI", map[string]string{
		"InstanceID":         "0",
		"CurrentURI":         url,
		"CurrentURIMetaData": metadata,
	}, func(_ map[string]string, err error) {
		if err != nil {
			c.log.Warn("action failed", "action", "SetAVTransportURI", "udn", udn, "error", err)
			return
		}
		avt.Begin("Play", map[string]string{
			"InstanceID": "0",
			"Speed":      "1",
		}, c.completionLogger("Play", udn))
	})
}

// stop issues a Stop action against the target. Errors are logged, never
// retried; a missing target is a handled abort.
func (c *Controller) stop(target string) {
	r, ok := c.registry.Lookup(target)
	if !ok {
		c.log.Warn("stop aborted, renderer not found", "udn", target)
		return
	}
	r.AVTransport.Begin("Stop", map[string]string{
		"InstanceID": "0",
	}, c.completionLogger("Stop", target))
}

// RendererAdded fires the two read-only state queries for a freshly
// discovered renderer. Both are fire-and-forget relative to the addition:
// their completions reconcile the registry whenever they arrive, and are
// dropped if the device vanished in the meantime.
func (c *Controller) RendererAdded(udn string) {
	r, ok := c.registry.Lookup(udn)
	if !ok {
		return
	}

	r.ConnectionManager.Begin("GetProtocolInfo", nil, func(out map[string]string, err error) {
		if err != nil {
			c.log.Warn("action failed", "action", "GetProtocolInfo", "udn", udn, "error", err)
			return
		}
		c.registry.UpdateCapability(udn, out["Sink"])
	})

	r.AVTransport.Begin("GetTransportInfo", map[string]string{
		"InstanceID": "0",
	}, func(out map[string]string, err error) {
		if err != nil {
			c.log.Warn("action failed", "action", "GetTransportInfo", "udn", udn, "error", err)
			return
		}
		c.registry.UpdateState(udn, renderer.StateFromName(out["CurrentTransportState"]))
	})
}

func (c *Controller) completionLogger(action, udn string) func(map[string]string, error) {
	return func(_ map[string]string, err error) {
		if err != nil {
			c.log.Warn("action failed", "action", action, "udn", udn, "error", err)
			return
		}
		c.log.Info("action succeeded", "action", action, "udn", udn)
	}
}

// sinkAccepts reports whether a renderer's sink protocol info admits an
// http-get resource of the given MIME type. An empty capability string
// means the GetProtocolInfo completion has not arrived yet; the renderer is
// then treated as compatible rather than refusing a likely-valid play.
func sinkAccepts(sinkProtocolInfo, mimeType string) bool {
	if sinkProtocolInfo == "" {
		return true
	}
	for _, entry := range strings.Split(sinkProtocolInfo, ",") {
		fields := strings.Split(strings.TrimSpace(entry), ":")
		if len(fields) < 3 {
			continue
		}
		if fields[0] != "http-get" {
			continue
		}
		if fields[2] == mimeType || fields[2] == "*" {
			return true
		}
	}
	return false
}
