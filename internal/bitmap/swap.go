// Package bitmap moves interleaved RGB bitmaps in and out of native pixel
// buffers and produces block-averaged reductions of them.
//
// Native memory holds pixels in B, G, R order. Both transfer directions swap
// red and blue, so a write followed by a read returns the original bitmap.
package bitmap

import "fmt"

// BytesPerPixel of the bitmaps exchanged with native buffers.
const BytesPerPixel = 3

// SwapRB exchanges the first and third byte of every pixel triplet in place.
func SwapRB(p []byte) error {
	if len(p)%BytesPerPixel != 0 {
		return fmt.Errorf("%w: length %d is not a multiple of %d", ErrPrecondition, len(p), BytesPerPixel)
	}
	for i := 0; i < len(p); i += BytesPerPixel {
		p[i+0], p[i+2] = p[i+2], p[i+0]
	}
	return nil
}

// swapCopy writes src into dst with red and blue exchanged. Both slices hold
// whole pixels and dst is at least as long as src.
func swapCopy(dst, src []byte) {
	dst = dst[:len(src):len(src)]
	for i := 0; i+2 < len(src); i += BytesPerPixel {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
	}
}
