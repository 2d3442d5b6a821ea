package native

import "fmt"

// Pixbuf is an in-process native buffer laid out like a GdkPixbuf created
// with COLORSPACE_RGB, no alpha and 8 bits per sample.
type Pixbuf struct {
	w, h   int
	stride int
	px     []byte
}

// NewPixbuf allocates a w x h buffer with rows aligned to four bytes.
func NewPixbuf(w, h int) (*Pixbuf, error) {
	return NewPixbufWithStride(w, h, AlignedStride(w))
}

// NewPixbufWithStride allocates a buffer with an explicit row stride.
func NewPixbufWithStride(w, h, stride int) (*Pixbuf, error) {
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadSize, w, h)
	}
	if stride < w*BytesPerPixel {
		return nil, fmt.Errorf("%w: stride %d for width %d", ErrBadStride, stride, w)
	}
	return &Pixbuf{w: w, h: h, stride: stride, px: make([]byte, stride*h)}, nil
}

// AllocPixbuf is an Allocator backed by NewPixbuf.
func AllocPixbuf(w, h int) (Buffer, error) {
	pb, err := NewPixbuf(w, h)
	if err != nil {
		return nil, err
	}
	return pb, nil
}

func (pb *Pixbuf) Width() int {
	if pb == nil {
		return 0
	}
	return pb.w
}

func (pb *Pixbuf) Height() int {
	if pb == nil {
		return 0
	}
	return pb.h
}

func (pb *Pixbuf) RowStride() int {
	if pb == nil {
		return 0
	}
	return pb.stride
}

func (pb *Pixbuf) Pixels() View {
	if pb == nil {
		return View{}
	}
	return NewView(pb.px)
}

func (pb *Pixbuf) valid() bool { return pb != nil && pb.px != nil }
