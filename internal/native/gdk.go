//go:build gtk

package native

import (
	"fmt"

	"github.com/gotk3/gotk3/gdk"
)

// GdkPixbuf adapts a *gdk.Pixbuf. Only 8-bit RGB pixbufs without alpha are
// accepted.
type GdkPixbuf struct {
	pb *gdk.Pixbuf
}

// GdkAvailable reports whether the binary was built with the gtk tag.
func GdkAvailable() bool { return true }

// NewGdkPixbuf creates a fresh GdkPixbuf of the given size.
func NewGdkPixbuf(w, h int) (*GdkPixbuf, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadSize, w, h)
	}
	pb, err := gdk.PixbufNew(gdk.COLORSPACE_RGB, false, 8, w, h)
	if err != nil {
		return nil, fmt.Errorf("gdk_pixbuf_new: %w", err)
	}
	return &GdkPixbuf{pb: pb}, nil
}

// WrapGdkPixbuf adapts an existing pixbuf, typically one owned by a Gtk.Image.
func WrapGdkPixbuf(pb *gdk.Pixbuf) (*GdkPixbuf, error) {
	if pb == nil {
		return nil, nil
	}
	if pb.GetHasAlpha() || pb.GetNChannels() != BytesPerPixel || pb.GetBitsPerSample() != 8 {
		return nil, fmt.Errorf("native: unsupported pixbuf layout (channels=%d alpha=%v bits=%d)",
			pb.GetNChannels(), pb.GetHasAlpha(), pb.GetBitsPerSample())
	}
	return &GdkPixbuf{pb: pb}, nil
}

// AllocGdkPixbuf is an Allocator backed by NewGdkPixbuf.
func AllocGdkPixbuf(w, h int) (Buffer, error) {
	g, err := NewGdkPixbuf(w, h)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GdkPixbuf) Width() int     { return g.pb.GetWidth() }
func (g *GdkPixbuf) Height() int    { return g.pb.GetHeight() }
func (g *GdkPixbuf) RowStride() int { return g.pb.GetRowstride() }
func (g *GdkPixbuf) Pixels() View   { return NewView(g.pb.GetPixels()) }

// Pixbuf returns the wrapped gdk object for display.
func (g *GdkPixbuf) Pixbuf() *gdk.Pixbuf { return g.pb }

func (g *GdkPixbuf) valid() bool { return g != nil && g.pb != nil }
