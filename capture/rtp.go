package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// rtpReadBufferSize comfortably holds one UDP datagram carrying an RTP
// packet; payloads beyond the path MTU arrive fragmented as FU-A units.
const rtpReadBufferSize = 2048

// rtpSource receives an RTP/H.264 feed on a UDP port and emits the
// depacketized Annex B access units.
type rtpSource struct {
	log  *slog.Logger
	port int
}

func newRTPSource(cfg Config, log *slog.Logger) *rtpSource {
	return &rtpSource{
		log:  log.With("component", "rtp-source"),
		port: cfg.Port,
	}
}

func (s *rtpSource) Run(ctx context.Context, emit func(p []byte)) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.port})
	if err != nil {
		return fmt.Errorf("rtp listen on :%d: %w", s.port, err)
	}
	s.log.Info("listening", "port", s.port)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, rtpReadBufferSize)
	depacketizer := &codecs.H264Packet{}
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rtp read: %w", err)
		}

		nal, err := depacketizeRTP(depacketizer, buf[:n])
		if err != nil {
			s.log.Debug("dropping packet", "error", err)
			continue
		}
		if len(nal) > 0 {
			emit(nal)
		}
	}
}

// depacketizeRTP unwraps one RTP datagram into H.264 payload bytes.
// Fragmented units yield nothing until the final fragment arrives.
func depacketizeRTP(d *codecs.H264Packet, datagram []byte) ([]byte, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(datagram); err != nil {
		return nil, fmt.Errorf("rtp unmarshal: %w", err)
	}
	nal, err := d.Unmarshal(pkt.Payload)
	if err != nil {
		return nil, fmt.Errorf("h264 depacketize: %w", err)
	}
	return nal, nil
}
