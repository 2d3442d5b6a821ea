package stream

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pion/rtp"
)

func frame(w, h, bpp int, seed int64) []byte {
	b := make([]byte, w*h*bpp)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func TestRawPayloaderRoundTrip(t *testing.T) {
	for _, mtu := range []uint16{64, 200, 1200} {
		for _, dim := range [][2]int{{1, 1}, {37, 5}, {640, 2}} {
			w, h := dim[0], dim[1]
			src := frame(w, h, 3, int64(w*h))
			pl := &RawPayloader{Width: w, Height: h, BytesPerPixel: 3}
			pz := NewRawPacketizer(mtu, 1234, pl)
			pkts := pz.Packetize(src, 3000)
			if len(pkts) == 0 {
				t.Fatalf("mtu %d %dx%d: no packets", mtu, w, h)
			}

			d := &RawDepacketizer{Width: w, Height: h, BytesPerPixel: 3}
			var got []byte
			for i, pkt := range pkts {
				raw, err := pkt.Marshal()
				if err != nil {
					t.Fatal(err)
				}
				if len(raw) > int(mtu) {
					t.Fatalf("mtu %d: packet %d is %d bytes", mtu, i, len(raw))
				}
				var in rtp.Packet
				if err := in.Unmarshal(raw); err != nil {
					t.Fatal(err)
				}
				f, done, err := d.Push(&in)
				if err != nil {
					t.Fatalf("mtu %d %dx%d packet %d: %v", mtu, w, h, i, err)
				}
				if done != (i == len(pkts)-1) {
					t.Fatalf("packet %d of %d: done=%v", i, len(pkts), done)
				}
				if done {
					got = f
				}
			}
			if diff := cmp.Diff(src, got); diff != "" {
				t.Errorf("mtu %d %dx%d (-want +got):\n%s", mtu, w, h, diff)
			}
		}
	}
}

func TestRawPayloaderSegmentsAreWholePixels(t *testing.T) {
	pl := &RawPayloader{Width: 10, Height: 1, BytesPerPixel: 3}
	// 20 - 8 = 12 bytes of room: four pixels per packet.
	out := pl.Payload(20, frame(10, 1, 3, 1))
	if len(out) != 3 {
		t.Fatalf("got %d payloads, want 3", len(out))
	}
	for i, want := range []int{12, 12, 6} {
		if n := len(out[i]) - rawExtSeqLen - rawLineHeaderLen; n != want {
			t.Errorf("payload %d carries %d bytes, want %d", i, n, want)
		}
	}
}

func TestRawPayloaderRejects(t *testing.T) {
	pl := &RawPayloader{Width: 2, Height: 2, BytesPerPixel: 3}
	if out := pl.Payload(1200, make([]byte, 11)); out != nil {
		t.Errorf("wrong frame size accepted")
	}
	if out := pl.Payload(10, make([]byte, 12)); out != nil {
		t.Errorf("mtu below one pixel accepted")
	}
}

func TestRawDepacketizerErrors(t *testing.T) {
	d := &RawDepacketizer{Width: 2, Height: 2, BytesPerPixel: 3}
	if _, _, err := d.Push(&rtp.Packet{Payload: []byte{0, 0, 0}}); !errors.Is(err, ErrBadPacket) {
		t.Errorf("short payload: got %v", err)
	}
	outside := []byte{0, 0, 0, 3, 0, 5, 0, 0, 1, 2, 3}
	if _, _, err := d.Push(&rtp.Packet{Payload: outside}); !errors.Is(err, ErrBadPacket) {
		t.Errorf("line outside frame: got %v", err)
	}
	partial := []byte{0, 0, 0, 3, 0, 0, 0, 0, 1, 2, 3}
	pkt := &rtp.Packet{Header: rtp.Header{Marker: true}, Payload: partial}
	if _, _, err := d.Push(pkt); !errors.Is(err, ErrIncompleteFrame) {
		t.Errorf("missing segments: got %v", err)
	}
	var empty RawDepacketizer
	if _, _, err := empty.Push(pkt); !errors.Is(err, ErrBadPacket) {
		t.Errorf("unconfigured: got %v", err)
	}
}

func TestRawDepacketizerContinuationHeaders(t *testing.T) {
	// Two segments in one packet: line 0 and line 1 of a 1x2 frame.
	payload := []byte{
		0, 0,
		0, 3, 0, 0, 0x80, 0,
		0, 3, 0, 1, 0, 0,
		1, 2, 3, 4, 5, 6,
	}
	d := &RawDepacketizer{Width: 1, Height: 2, BytesPerPixel: 3}
	got, done, err := d.Push(&rtp.Packet{Header: rtp.Header{Marker: true}, Payload: payload})
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5, 6}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

type fakeChannel struct {
	mu    sync.Mutex
	texts []string
	bins  [][]byte
	got   chan struct{}
}

func (c *fakeChannel) Send(b []byte) error {
	c.mu.Lock()
	c.bins = append(c.bins, append([]byte(nil), b...))
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) SendText(s string) error {
	c.mu.Lock()
	c.texts = append(c.texts, s)
	c.mu.Unlock()
	if c.got != nil {
		c.got <- struct{}{}
	}
	return nil
}

func TestDataChannelSink(t *testing.T) {
	ResetCounters()
	ch := &fakeChannel{}
	s := NewDataChannelSink(ch, 300)
	src := frame(20, 3, 3, 9)
	if err := s.WritePreview(NewPreview("abc", 7, src, 20, 3)); err != nil {
		t.Fatal(err)
	}
	if len(ch.texts) != 1 {
		t.Fatalf("got %d text messages", len(ch.texts))
	}
	var hdr PreviewHeader
	if err := json.Unmarshal([]byte(ch.texts[0]), &hdr); err != nil {
		t.Fatal(err)
	}
	if hdr != (PreviewHeader{ID: "abc", Width: 20, Height: 3, Seq: 7}) {
		t.Errorf("header %+v", hdr)
	}

	d := &RawDepacketizer{Width: hdr.Width, Height: hdr.Height, BytesPerPixel: 3}
	var got []byte
	for _, raw := range ch.bins {
		var pkt rtp.Packet
		if err := pkt.Unmarshal(raw); err != nil {
			t.Fatal(err)
		}
		if pkt.PayloadType != RawPayloadType {
			t.Errorf("payload type %d", pkt.PayloadType)
		}
		f, done, err := d.Push(&pkt)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			got = f
		}
	}
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if n := GetCounters()["packets_sent"]; n != uint64(len(ch.bins)) {
		t.Errorf("packets_sent = %d, sent %d", n, len(ch.bins))
	}

	if err := s.WritePreview(NewPreview("bad", 8, src[:5], 20, 3)); !errors.Is(err, ErrBadPacket) {
		t.Errorf("mismatched preview: got %v", err)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) WritePreview(Preview) error {
	<-s.release
	return nil
}

func TestBroadcasterDropsForSlowSink(t *testing.T) {
	ResetCounters()
	b := NewBroadcaster()
	defer b.Close()
	slow := &blockingSink{release: make(chan struct{})}
	defer close(slow.release)
	b.Add(slow)
	for i := 0; i < 10; i++ {
		b.Publish(NewPreview("x", uint64(i), nil, 0, 0))
	}
	// At most one in flight plus a queue of four.
	if n := GetCounters()["previews_dropped"]; n < 5 {
		t.Errorf("dropped %d previews, want at least 5", n)
	}
	if n := GetCounters()["previews_published"]; n != 10 {
		t.Errorf("published %d", n)
	}
}

func TestBroadcasterDeliversAndRemoves(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()
	ch := &fakeChannel{got: make(chan struct{}, 1)}
	remove := b.Add(NewDataChannelSink(ch, 0))
	if b.Len() != 1 {
		t.Fatalf("Len = %d", b.Len())
	}
	b.Publish(NewPreview("id", 1, frame(2, 2, 3, 3), 2, 2))
	select {
	case <-ch.got:
	case <-time.After(2 * time.Second):
		t.Fatal("preview not delivered")
	}
	remove()
	remove()
	if b.Len() != 0 {
		t.Errorf("Len after remove = %d", b.Len())
	}
	if r := b.Add(nil); r == nil {
		t.Errorf("Add(nil) returned nil remove func")
	}
}
