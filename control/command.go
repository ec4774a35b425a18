// Package control turns playback requests into AVTransport action chains.
// It contains the cross-goroutine command queue and the controller that
// drives renderers through the registry.
package control

// Kind enumerates the playback commands. The enumeration is closed: the
// dispatcher never sees any other value.
type Kind int

const (
	KindPlay Kind = iota
	KindStop
	KindScan
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindStop:
		return "stop"
	case KindScan:
		return "scan"
	default:
		return "invalid"
	}
}

// Command is one playback request. Target is the renderer UDN (empty for
// Scan); URL is the stream location a Play should hand to the renderer.
// A Command is created by any goroutine and consumed exactly once by the
// dispatcher worker.
type Command struct {
	Kind   Kind
	Target string
	URL    string
}
