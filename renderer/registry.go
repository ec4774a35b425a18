package renderer

import (
	"log/slog"
	"sync"
)

// Registry is the thread-safe catalog of currently known renderers, keyed
// by UDN. All reads and writes synchronize on one lock; callers outside
// this package only ever hold UDNs and value snapshots, never pointers into
// the registry.
type Registry struct {
	log *slog.Logger

	mu        sync.RWMutex
	renderers map[string]*Renderer
	order     []string
}

// NewRegistry creates an empty Registry. If log is nil, slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:       log.With("component", "renderer-registry"),
		renderers: make(map[string]*Renderer),
	}
}

// Upsert inserts r if its UDN is unseen and returns true. A renderer that
// is already known is left untouched and Upsert returns false, making the
// operation idempotent under concurrent discovery callbacks.
func (g *Registry) Upsert(r *Renderer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.renderers[r.UDN]; ok {
		return false
	}
	clone := *r
	g.renderers[r.UDN] = &clone
	g.order = append(g.order, r.UDN)
	g.log.Info("renderer added", "udn", r.UDN, "name", r.Name)
	return true
}

// Remove deletes the renderer with the given UDN, or does nothing if it is
// not present.
func (g *Registry) Remove(udn string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.renderers[udn]; !ok {
		return
	}
	delete(g.renderers, udn)
	for i, u := range g.order {
		if u == udn {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.log.Info("renderer removed", "udn", udn)
}

// Lookup returns a snapshot of the renderer with the given UDN. Absence is
// a normal outcome, not an error: the device may simply not have been
// discovered yet, or may have gone away.
func (g *Registry) Lookup(udn string) (Renderer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.renderers[udn]
	if !ok {
		return Renderer{}, false
	}
	return *r, true
}

// UpdateCapability records the sink protocol info reported by an
// asynchronous GetProtocolInfo completion. If the renderer vanished in the
// meantime the write is silently dropped.
func (g *Registry) UpdateCapability(udn, sinkProtocolInfo string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.renderers[udn]; ok {
		r.SinkProtocolInfo = sinkProtocolInfo
	}
}

// UpdateState records a playback state observed by a query completion or a
// GENA event. Writes for unknown UDNs are silently dropped.
func (g *Registry) UpdateState(udn string, state PlaybackState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.renderers[udn]; ok {
		r.State = state
	}
}

// ListAll returns value snapshots of up to limit renderers in insertion
// order. A limit <= 0 returns an empty slice.
func (g *Registry) ListAll(limit int) []Renderer {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if limit <= 0 {
		return nil
	}
	out := make([]Renderer, 0, min(limit, len(g.order)))
	for _, udn := range g.order {
		if len(out) == limit {
			break
		}
		if r, ok := g.renderers[udn]; ok {
			out = append(out, *r)
		}
	}
	return out
}

// Len returns the number of known renderers.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.renderers)
}
