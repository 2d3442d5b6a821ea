// Package native adapts external image-buffer objects to a small capability
// interface so pixel transfer code never touches raw pointers or library
// specific layout details.
package native

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the channel depth of every native buffer handled here:
// 24-bit RGB, no alpha.
const BytesPerPixel = 3

// Buffer is a rectangular pixel store owned by an external library.
// Callers borrow it for the duration of a single call.
type Buffer interface {
	Width() int
	Height() int
	// RowStride is the number of bytes between the starts of two adjacent
	// rows. It may exceed Width()*BytesPerPixel.
	RowStride() int
	// Pixels returns a view over the raw pixel memory, starting at row 0.
	Pixels() View
}

// Allocator creates a fresh native buffer of the given size.
type Allocator func(w, h int) (Buffer, error)

var (
	ErrBadSize    = errors.New("native: invalid buffer dimensions")
	ErrBadStride  = errors.New("native: row stride smaller than row width")
	ErrBadPixdata = errors.New("native: malformed pixdata stream")
	ErrNoGdk      = errors.New("native: built without gtk support")
)

// Available reports whether b refers to initialised pixel memory.
// A nil interface and nil adapter pointers are both unavailable.
func Available(b Buffer) bool {
	if b == nil {
		return false
	}
	if a, ok := b.(interface{ valid() bool }); ok {
		return a.valid()
	}
	return true
}

// MinLen is the smallest pixel-memory length that can hold every logical row
// of b. Padding after the final row is not required.
func MinLen(b Buffer) int {
	w, h, stride := b.Width(), b.Height(), b.RowStride()
	if w <= 0 || h <= 0 {
		return 0
	}
	return stride*(h-1) + w*BytesPerPixel
}

// AlignedStride returns the GdkPixbuf row stride for w pixels: the row width
// rounded up to a multiple of four bytes.
func AlignedStride(w int) int {
	return (w*BytesPerPixel + 3) &^ 3
}

// View is a bounds-checked window over native pixel memory.
type View struct {
	b []byte
}

// NewView wraps p. The view aliases p; writes through it are visible to the
// owner of p.
func NewView(p []byte) View { return View{b: p} }

func (v View) Len() int { return len(v.b) }

// At returns the byte at off.
func (v View) At(off int) (byte, error) {
	if off < 0 || off >= len(v.b) {
		return 0, fmt.Errorf("native: offset %d outside view of %d bytes", off, len(v.b))
	}
	return v.b[off], nil
}

// Set stores c at off.
func (v View) Set(off int, c byte) error {
	if off < 0 || off >= len(v.b) {
		return fmt.Errorf("native: offset %d outside view of %d bytes", off, len(v.b))
	}
	v.b[off] = c
	return nil
}

// Slice returns the n bytes starting at off.
func (v View) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(v.b) {
		return nil, fmt.Errorf("native: range [%d,%d) outside view of %d bytes", off, off+n, len(v.b))
	}
	return v.b[off : off+n : off+n], nil
}

// Row returns the logical bytes of row y of a buffer with the given stride
// and row width, excluding any padding.
func (v View) Row(y, stride, rowBytes int) ([]byte, error) {
	if y < 0 {
		return nil, fmt.Errorf("native: negative row %d", y)
	}
	return v.Slice(y*stride, rowBytes)
}
