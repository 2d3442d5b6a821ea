package stream

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// Uncompressed video payload, after RFC 4175: a two byte extended sequence
// number followed by one or more six byte line headers
//
//	length (16) | F (1) line (15) | C (1) offset (15)
//
// and then the pixel data of each segment in header order. Offsets count
// pixels, lengths count bytes.
const (
	rawExtSeqLen     = 2
	rawLineHeaderLen = 6
	rawMaxLine       = 1<<15 - 1
	rawContinuation  = 0x8000

	// MaxRawWidth and MaxRawHeight bound the frames RawPayloader accepts.
	MaxRawWidth  = rawMaxLine
	MaxRawHeight = rawMaxLine + 1

	// VideoClockRate is the RTP timestamp rate for video payloads.
	VideoClockRate = 90000
	// RawPayloadType is the dynamic payload type used for previews.
	RawPayloadType = 112
)

var (
	ErrBadPacket       = errors.New("stream: malformed raw video packet")
	ErrIncompleteFrame = errors.New("stream: frame ended with missing segments")
)

// RawPayloader splits a packed frame into raw video payloads, one line
// segment per packet. Width, Height and BytesPerPixel describe the frame
// passed to the next Payload call.
type RawPayloader struct {
	Width, Height int
	BytesPerPixel int
}

// Payload implements rtp.Payloader. It returns nil when the frame does not
// match the configured size or mtu cannot hold a single pixel.
func (p *RawPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	bpp := p.BytesPerPixel
	if bpp <= 0 || p.Width <= 0 || p.Height <= 0 || p.Width > MaxRawWidth || p.Height > MaxRawHeight {
		return nil
	}
	rowBytes := p.Width * bpp
	if len(payload) != rowBytes*p.Height {
		return nil
	}
	room := int(mtu) - rawExtSeqLen - rawLineHeaderLen
	room -= room % bpp
	if room <= 0 {
		return nil
	}

	var out [][]byte
	for line := 0; line < p.Height; line++ {
		row := payload[line*rowBytes : (line+1)*rowBytes]
		for off := 0; off < rowBytes; off += room {
			n := min(room, rowBytes-off)
			pkt := make([]byte, rawExtSeqLen+rawLineHeaderLen+n)
			hdr := pkt[rawExtSeqLen:]
			binary.BigEndian.PutUint16(hdr[0:], uint16(n))
			binary.BigEndian.PutUint16(hdr[2:], uint16(line))
			binary.BigEndian.PutUint16(hdr[4:], uint16(off/bpp))
			copy(pkt[rawExtSeqLen+rawLineHeaderLen:], row[off:off+n])
			out = append(out, pkt)
		}
	}
	return out
}

// NewRawPacketizer returns a packetizer for payloader p with a random
// starting sequence number.
func NewRawPacketizer(mtu uint16, ssrc uint32, p *RawPayloader) rtp.Packetizer {
	return rtp.NewPacketizer(mtu, RawPayloadType, ssrc, p, rtp.NewRandomSequencer(), VideoClockRate)
}

// RawDepacketizer reassembles frames produced by RawPayloader.
type RawDepacketizer struct {
	Width, Height int
	BytesPerPixel int

	frame  []byte
	filled int
}

// Push adds one packet. When pkt carries the marker bit the assembled frame
// is returned with done set, and the depacketizer starts a new frame.
func (d *RawDepacketizer) Push(pkt *rtp.Packet) (frame []byte, done bool, err error) {
	if d.Width <= 0 || d.Height <= 0 || d.BytesPerPixel <= 0 {
		return nil, false, fmt.Errorf("%w: depacketizer has no frame size", ErrBadPacket)
	}
	rowBytes := d.Width * d.BytesPerPixel
	size := rowBytes * d.Height
	if d.frame == nil || len(d.frame) != size {
		d.frame = make([]byte, size)
		d.filled = 0
	}

	if err := d.unpack(pkt.Payload, rowBytes); err != nil {
		d.reset()
		return nil, false, err
	}
	if !pkt.Marker {
		return nil, false, nil
	}
	frame, filled := d.frame, d.filled
	d.reset()
	if filled != size {
		return nil, false, fmt.Errorf("%w: %d of %d bytes", ErrIncompleteFrame, filled, size)
	}
	return frame, true, nil
}

func (d *RawDepacketizer) unpack(b []byte, rowBytes int) error {
	if len(b) < rawExtSeqLen+rawLineHeaderLen {
		return fmt.Errorf("%w: %d byte payload", ErrBadPacket, len(b))
	}
	type segment struct{ length, line, offset int }
	var segs []segment
	pos := rawExtSeqLen
	for {
		if pos+rawLineHeaderLen > len(b) {
			return fmt.Errorf("%w: truncated line header", ErrBadPacket)
		}
		length := int(binary.BigEndian.Uint16(b[pos:]))
		line := int(binary.BigEndian.Uint16(b[pos+2:]) &^ rawContinuation)
		offWord := binary.BigEndian.Uint16(b[pos+4:])
		segs = append(segs, segment{length, line, int(offWord &^ rawContinuation)})
		pos += rawLineHeaderLen
		if offWord&rawContinuation == 0 {
			break
		}
	}
	for _, s := range segs {
		start := s.offset * d.BytesPerPixel
		if s.line >= d.Height || s.length%d.BytesPerPixel != 0 || start+s.length > rowBytes {
			return fmt.Errorf("%w: segment line %d offset %d length %d", ErrBadPacket, s.line, s.offset, s.length)
		}
		if pos+s.length > len(b) {
			return fmt.Errorf("%w: segment data truncated", ErrBadPacket)
		}
		copy(d.frame[s.line*rowBytes+start:], b[pos:pos+s.length])
		d.filled += s.length
		pos += s.length
	}
	return nil
}

func (d *RawDepacketizer) reset() {
	d.frame = nil
	d.filled = 0
}
