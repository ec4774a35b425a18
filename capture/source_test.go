package capture

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

func TestParseSourceType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    SourceType
		wantErr bool
	}{
		{"camera", SourceCamera, false},
		{"streaming", SourceStreaming, false},
		{"srt", SourceSRT, false},
		{"", "", true},
		{"webcam", "", true},
		{"Camera", "", true},
	}
	for _, tc := range cases {
		got, err := ParseSourceType(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseSourceType(%q): err = %v, wantErr = %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSourceType(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewBuildsEachSource(t *testing.T) {
	t.Parallel()

	for _, typ := range []SourceType{SourceCamera, SourceStreaming, SourceSRT} {
		src, err := New(Config{Type: typ, Port: 5004}, nil)
		if err != nil {
			t.Errorf("New(%q): %v", typ, err)
		}
		if src == nil {
			t.Errorf("New(%q): nil source", typ)
		}
	}
	if _, err := New(Config{Type: "bogus"}, nil); err == nil {
		t.Error("New with bogus type: expected error")
	}
}

func TestDepacketizeSingleNAL(t *testing.T) {
	t.Parallel()

	// A single-NAL RTP packet: the depacketizer prepends an Annex B start
	// code and passes the NAL through.
	nal := []byte{0x65, 0x88, 0x84, 0x21, 0xa0} // IDR slice header bytes
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1234,
			Timestamp:      90000,
			SSRC:           0xdeadbeef,
		},
		Payload: nal,
	}
	datagram, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal test packet: %v", err)
	}

	out, err := depacketizeRTP(&codecs.H264Packet{}, datagram)
	if err != nil {
		t.Fatalf("depacketize: %v", err)
	}
	if !bytes.HasSuffix(out, nal) {
		t.Errorf("output %x does not carry the NAL %x", out, nal)
	}
	if !bytes.HasPrefix(out, []byte{0, 0, 0, 1}) {
		t.Errorf("output %x is missing the Annex B start code", out)
	}
}

func TestDepacketizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := depacketizeRTP(&codecs.H264Packet{}, []byte{0x01}); err == nil {
		t.Error("expected error for truncated datagram")
	}
}
