package stream

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

// Preview is a reduced copy of a stored frame. Sample.Data holds the RGB
// bitmap, Width*Height*3 bytes.
type Preview struct {
	ID     string
	Width  int
	Height int
	Seq    uint64
	Sample media.Sample
}

// NewPreview wraps an RGB bitmap as a preview stamped with the current time.
func NewPreview(id string, seq uint64, bmp []byte, w, h int) Preview {
	return Preview{
		ID:     id,
		Width:  w,
		Height: h,
		Seq:    seq,
		Sample: media.Sample{Data: bmp, Timestamp: time.Now(), Duration: time.Second / 30},
	}
}

// Sink receives previews from a Broadcaster.
type Sink interface {
	WritePreview(Preview) error
}

// Broadcaster fans out previews to multiple sinks. Each sink gets its own
// small queue so a slow subscriber doesn't block the others.
type Broadcaster struct {
	mu    sync.RWMutex
	sinks map[*sink]struct{}
}

type sink struct {
	ch   chan Preview
	quit chan struct{}
	w    Sink
}

// NewBroadcaster creates a broadcaster. Call Close when done.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{sinks: make(map[*sink]struct{})}
}

// Add registers a sink and returns a function that removes it.
func (b *Broadcaster) Add(w Sink) (remove func()) {
	if w == nil {
		return func() {}
	}
	s := &sink{ch: make(chan Preview, 4), quit: make(chan struct{}), w: w}
	go func() {
		for {
			select {
			case p := <-s.ch:
				if err := s.w.WritePreview(p); err != nil {
					incSinkErrors()
				}
			case <-s.quit:
				return
			}
		}
	}()
	b.mu.Lock()
	if b.sinks == nil {
		b.sinks = make(map[*sink]struct{})
	}
	b.sinks[s] = struct{}{}
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		if _, ok := b.sinks[s]; ok {
			delete(b.sinks, s)
			close(s.quit)
		}
		b.mu.Unlock()
	}
}

// Publish queues p for every sink without blocking.
func (b *Broadcaster) Publish(p Preview) {
	incPublished()
	b.mu.RLock()
	for s := range b.sinks {
		select {
		case s.ch <- p:
		default:
			// Drop if the sink's queue is full
			incDropped()
		}
	}
	b.mu.RUnlock()
}

// Len returns the number of registered sinks.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Close stops all sink workers and clears the list.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for s := range b.sinks {
		select {
		case <-s.quit:
		default:
			close(s.quit)
		}
		delete(b.sinks, s)
	}
	b.mu.Unlock()
}
