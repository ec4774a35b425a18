// Package capture provides the encoded-media sources a relay session can
// ingest from: an RTP/H.264 network feed, a local camera encoded through
// ffmpeg, and an SRT listener. A source pushes opaque encoded chunks to
// the session through an emit callback; timestamping and buffering happen
// downstream.
package capture

import (
	"context"
	"fmt"
	"log/slog"
)

// SourceType selects the ingest mechanism for a session.
type SourceType string

const (
	// SourceCamera captures a local V4L2 device and encodes it with ffmpeg.
	SourceCamera SourceType = "camera"
	// SourceStreaming receives an RTP/H.264 feed on a UDP port.
	SourceStreaming SourceType = "streaming"
	// SourceSRT accepts one SRT publish connection.
	SourceSRT SourceType = "srt"
)

// ParseSourceType validates a source name from the control surface.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceCamera, SourceStreaming, SourceSRT:
		return SourceType(s), nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// Config describes one capture source.
type Config struct {
	Type SourceType

	// Port is the local listen port for network sources.
	Port int

	// Device, Width, Height and FrameRate configure the camera source.
	Device    string
	Width     int
	Height    int
	FrameRate int
}

// Source delivers encoded media chunks until its context is cancelled.
// Run blocks; emit is called from the source's own goroutine and must not
// block for long.
type Source interface {
	Run(ctx context.Context, emit func(p []byte)) error
}

// New builds the source described by cfg. If log is nil, slog.Default()
// is used.
func New(cfg Config, log *slog.Logger) (Source, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Type {
	case SourceCamera:
		return newCameraSource(cfg, log), nil
	case SourceStreaming:
		return newRTPSource(cfg, log), nil
	case SourceSRT:
		return newSRTSource(cfg, log), nil
	}
	return nil, fmt.Errorf("unknown source type %q", cfg.Type)
}
