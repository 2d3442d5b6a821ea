package bitmap

import (
	"fmt"

	"pixbuf/internal/native"
)

// WriteToNative copies an RGB bitmap into dst, swapping red and blue. Row
// padding in dst is left untouched.
func WriteToNative(bmp []byte, dst native.Buffer) error {
	if !native.Available(dst) {
		return fmt.Errorf("write to native: %w", ErrUnavailable)
	}
	w, h, stride, err := checkLayout(dst)
	if err != nil {
		return fmt.Errorf("write to native: %w", err)
	}
	rowBytes := w * BytesPerPixel
	if len(bmp) != rowBytes*h {
		return fmt.Errorf("write to native: %w: bitmap has %d bytes, %dx%d buffer needs %d",
			ErrPrecondition, len(bmp), w, h, rowBytes*h)
	}
	px := dst.Pixels()
	if stride == rowBytes {
		out, err := px.Slice(0, len(bmp))
		if err != nil {
			return fmt.Errorf("write to native: %w: %v", ErrPrecondition, err)
		}
		swapCopy(out, bmp)
		return nil
	}
	for y := 0; y < h; y++ {
		row, err := px.Row(y, stride, rowBytes)
		if err != nil {
			return fmt.Errorf("write to native: %w: %v", ErrPrecondition, err)
		}
		swapCopy(row, bmp[y*rowBytes:(y+1)*rowBytes])
	}
	return nil
}

// ReadFromNative returns the content of src as an RGB bitmap of exactly
// Width*Height*3 bytes.
func ReadFromNative(src native.Buffer) ([]byte, error) {
	if !native.Available(src) {
		return nil, fmt.Errorf("read from native: %w", ErrUnavailable)
	}
	bmp := make([]byte, max(src.Width(), 0)*max(src.Height(), 0)*BytesPerPixel)
	if err := ReadFromNativeInto(src, bmp); err != nil {
		return nil, err
	}
	return bmp, nil
}

// ReadFromNativeInto fills dst with the content of src. dst must be exactly
// Width*Height*3 bytes long.
func ReadFromNativeInto(src native.Buffer, dst []byte) error {
	if !native.Available(src) || dst == nil {
		return fmt.Errorf("read from native: %w", ErrUnavailable)
	}
	w, h, stride, err := checkLayout(src)
	if err != nil {
		return fmt.Errorf("read from native: %w", err)
	}
	rowBytes := w * BytesPerPixel
	if len(dst) != rowBytes*h {
		return fmt.Errorf("read from native: %w: destination has %d bytes, %dx%d buffer needs %d",
			ErrPrecondition, len(dst), w, h, rowBytes*h)
	}
	px := src.Pixels()
	if stride == rowBytes {
		in, err := px.Slice(0, len(dst))
		if err != nil {
			return fmt.Errorf("read from native: %w: %v", ErrPrecondition, err)
		}
		swapCopy(dst, in)
		return nil
	}
	// Uneven stride: copy the logical part of each row and skip the padding.
	for y := 0; y < h; y++ {
		row, err := px.Row(y, stride, rowBytes)
		if err != nil {
			return fmt.Errorf("read from native: %w: %v", ErrPrecondition, err)
		}
		swapCopy(dst[y*rowBytes:(y+1)*rowBytes], row)
	}
	return nil
}

// ToNative writes bmp into dst when dst is available and already has the
// bitmap's size. Otherwise a new buffer is obtained from alloc, which
// defaults to native.AllocPixbuf.
func ToNative(bmp []byte, w, h int, dst native.Buffer, alloc native.Allocator) (native.Buffer, error) {
	if w < 0 || h < 0 || len(bmp) != w*h*BytesPerPixel {
		return nil, fmt.Errorf("to native: %w: bitmap has %d bytes, %dx%d needs %d",
			ErrPrecondition, len(bmp), w, h, w*h*BytesPerPixel)
	}
	if !native.Available(dst) || dst.Width() != w || dst.Height() != h {
		if alloc == nil {
			alloc = native.AllocPixbuf
		}
		nb, err := alloc(w, h)
		if err != nil {
			return nil, fmt.Errorf("to native: allocate %dx%d: %w", w, h, err)
		}
		dst = nb
	}
	if err := WriteToNative(bmp, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func checkLayout(b native.Buffer) (w, h, stride int, err error) {
	w, h, stride = b.Width(), b.Height(), b.RowStride()
	if w < 0 || h < 0 {
		return 0, 0, 0, fmt.Errorf("%w: negative dimensions %dx%d", ErrPrecondition, w, h)
	}
	if stride < w*BytesPerPixel {
		return 0, 0, 0, fmt.Errorf("%w: row stride %d below row width %d", ErrPrecondition, stride, w*BytesPerPixel)
	}
	if n, need := b.Pixels().Len(), native.MinLen(b); n < need {
		return 0, 0, 0, fmt.Errorf("%w: pixel memory has %d bytes, layout needs %d", ErrPrecondition, n, need)
	}
	return w, h, stride, nil
}
