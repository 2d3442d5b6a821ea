package stream

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/pion/rtp"
)

// Channel is the part of *webrtc.DataChannel a sink needs.
type Channel interface {
	Send([]byte) error
	SendText(string) error
}

// DefaultMTU keeps packets below typical SCTP message limits.
const DefaultMTU = 1200

// PreviewHeader announces the RTP packets that follow it on the channel.
type PreviewHeader struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seq    uint64 `json:"seq"`
}

// DataChannelSink sends each preview as a JSON header text message followed
// by binary RTP raw video packets.
type DataChannelSink struct {
	mu sync.Mutex
	ch Channel
	pl *RawPayloader
	pz rtp.Packetizer
}

// NewDataChannelSink creates a sink writing to ch. A zero mtu selects
// DefaultMTU.
func NewDataChannelSink(ch Channel, mtu uint16) *DataChannelSink {
	if mtu == 0 {
		mtu = DefaultMTU
	}
	pl := &RawPayloader{BytesPerPixel: 3}
	return &DataChannelSink{ch: ch, pl: pl, pz: NewRawPacketizer(mtu, rand.Uint32(), pl)}
}

// WritePreview implements Sink.
func (s *DataChannelSink) WritePreview(p Preview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pl.Width, s.pl.Height = p.Width, p.Height
	samples := uint32(p.Sample.Duration.Seconds() * VideoClockRate)
	pkts := s.pz.Packetize(p.Sample.Data, samples)
	if len(pkts) == 0 {
		return fmt.Errorf("%w: cannot packetize %dx%d preview of %d bytes", ErrBadPacket, p.Width, p.Height, len(p.Sample.Data))
	}

	hdr, err := json.Marshal(PreviewHeader{ID: p.ID, Width: p.Width, Height: p.Height, Seq: p.Seq})
	if err != nil {
		return err
	}
	if err := s.ch.SendText(string(hdr)); err != nil {
		return err
	}
	sent := 0
	defer func() { incPacketsSent(sent) }()
	for _, pkt := range pkts {
		raw, err := pkt.Marshal()
		if err != nil {
			return err
		}
		if err := s.ch.Send(raw); err != nil {
			return err
		}
		sent++
	}
	return nil
}
