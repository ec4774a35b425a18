// Package renderer tracks DLNA media renderers discovered on the local
// network, together with their control endpoints and playback state.
package renderer

// PlaybackState is the last known AVTransport state of a renderer.
type PlaybackState int

// Playback states, matching the AVTransport CurrentTransportState values.
const (
	StateUnknown PlaybackState = iota
	StateTransitioning
	StateStopped
	StatePaused
	StatePlaying
)

func (s PlaybackState) String() string {
	switch s {
	case StateTransitioning:
		return "transitioning"
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// StateFromName maps an AVTransport state name from the wire to a
// PlaybackState. Unrecognized names map to StateUnknown.
func StateFromName(name string) PlaybackState {
	switch name {
	case "STOPPED":
		return StateStopped
	case "PLAYING":
		return StatePlaying
	case "PAUSED_PLAYBACK":
		return StatePaused
	case "TRANSITIONING":
		return StateTransitioning
	default:
		return StateUnknown
	}
}

// Actor issues one named control action against a single UPnP service
// endpoint. Begin returns immediately; done is invoked exactly once from
// another goroutine with the action's output arguments or an error.
// Implementations live in the upnp package; tests supply fakes.
type Actor interface {
	Begin(action string, args map[string]string, done func(out map[string]string, err error))
}

// Renderer is one discovered playback device. A Renderer is only published
// to the registry once all three service endpoints resolved; partial
// discovery never produces a record.
type Renderer struct {
	// UDN is the device's unique identifier and the registry key.
	UDN  string
	Name string

	// SinkProtocolInfo is the renderer-advertised capability string,
	// empty until the GetProtocolInfo completion arrives.
	SinkProtocolInfo string
	State            PlaybackState

	AVTransport       Actor
	RenderingControl  Actor
	ConnectionManager Actor
}
