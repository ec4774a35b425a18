// Package media defines the encoded frame type that flows from a capture
// source into the relay buffer, and the timestamp corrector that rewrites
// presentation times at a constant nominal rate.
package media

import "time"

// NominalFrameRate is the fixed output frame rate. Encoders in the capture
// path are configured for this rate, and the corrector stamps every frame
// with exactly 1/NominalFrameRate of duration regardless of how irregularly
// the encoder actually delivers.
const NominalFrameRate = 30

// FrameDuration is the presentation duration assigned to every frame.
const FrameDuration = time.Second / NominalFrameRate

// NoTimestamp marks a frame whose producer did not supply a usable
// presentation time.
const NoTimestamp = time.Duration(-1)

// Frame is a single encoded buffer handed off by a capture source. Data is
// owned by the producer until the frame is pushed into the relay buffer,
// after which the bytes have no frame identity anymore.
type Frame struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
}

// Corrector assigns synthetic, strictly increasing presentation timestamps
// to the frames of one session. The first frame anchors the session's time
// origin at its observed timestamp (coerced to zero if invalid); every
// subsequent frame advances by exactly one FrameDuration.
//
// A Corrector is session-scoped and must be driven from the producer's
// goroutine only, once per frame, in production order.
type Corrector struct {
	anchored bool
	last     time.Duration
}

// NewCorrector returns a Corrector with no anchor set.
func NewCorrector() *Corrector {
	return &Corrector{}
}

// Correct rewrites the frame's PTS and Duration in place.
func (c *Corrector) Correct(f *Frame) {
	if !c.anchored {
		if f.PTS < 0 {
			f.PTS = 0
		}
		c.last = f.PTS
		c.anchored = true
	} else {
		c.last += FrameDuration
		f.PTS = c.last
	}
	f.Duration = FrameDuration
}
