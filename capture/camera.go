package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
)

// cameraChunkSize is the read granularity for the encoder's stdout pipe.
const cameraChunkSize = 32 * 1024

// cameraSource captures a local V4L2 device and encodes it to fragmented
// MP4 with an external ffmpeg child process. The fragmented muxing keeps
// the output playable from the first chunk, which live relay requires.
type cameraSource struct {
	log *slog.Logger
	cfg Config
}

func newCameraSource(cfg Config, log *slog.Logger) *cameraSource {
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.Width == 0 {
		cfg.Width = 320
	}
	if cfg.Height == 0 {
		cfg.Height = 240
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = 30
	}
	return &cameraSource{
		log: log.With("component", "camera-source"),
		cfg: cfg,
	}
}

func (s *cameraSource) Run(ctx context.Context, emit func(p []byte)) error {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("camera source needs ffmpeg on PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-f", "v4l2",
		"-framerate", strconv.Itoa(s.cfg.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"-i", s.cfg.Device,
		"-c:v", "libx264",
		"-profile:v", "baseline",
		"-tune", "zerolatency",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("camera pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	s.log.Info("encoder started", "device", s.cfg.Device,
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"framerate", s.cfg.FrameRate)

	buf := make([]byte, cameraChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(chunk)
		}
		if err != nil {
			waitErr := cmd.Wait()
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				err = waitErr
			}
			if err != nil {
				return fmt.Errorf("ffmpeg exited: %w", err)
			}
			return nil
		}
	}
}
