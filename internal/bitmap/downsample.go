package bitmap

import "fmt"

// Downsample reduces bmp by averaging non-overlapping factor x factor blocks.
// The result is (width/factor) x (height/factor) pixels; source rows and
// columns that do not fill a whole block are dropped. Channel averages use
// truncating integer division.
func Downsample(bmp []byte, width, height, bpp, factor int) ([]byte, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("downsample: %w: factor %d", ErrPrecondition, factor)
	}
	if bpp <= 0 || width < 0 || height < 0 {
		return nil, fmt.Errorf("downsample: %w: %dx%d at %d bytes per pixel", ErrPrecondition, width, height, bpp)
	}
	if len(bmp) != width*height*bpp {
		return nil, fmt.Errorf("downsample: %w: bitmap has %d bytes, %dx%dx%d needs %d",
			ErrPrecondition, len(bmp), width, height, bpp, width*height*bpp)
	}

	dw, dh := width/factor, height/factor
	out := make([]byte, dw*dh*bpp)
	if len(out) == 0 {
		return out, nil
	}

	// One accumulator per channel; factor*factor*255 must fit in an int.
	sum := make([]int, bpp)
	hits := factor * factor
	n := 0
	for dy := 0; dy < dh; dy++ {
		for dx := 0; dx < dw; dx++ {
			clear(sum)
			for sy := dy * factor; sy < (dy+1)*factor; sy++ {
				row := sy * width
				for sx := dx * factor; sx < (dx+1)*factor; sx++ {
					off := (row + sx) * bpp
					for b := 0; b < bpp; b++ {
						sum[b] += int(bmp[off+b])
					}
				}
			}
			for b := 0; b < bpp; b++ {
				out[n+b] = byte(sum[b] / hits)
			}
			n += bpp
		}
	}
	return out, nil
}

// DownsampledSize returns the dimensions Downsample produces.
func DownsampledSize(width, height, factor int) (int, int) {
	if factor <= 0 {
		return 0, 0
	}
	return width / factor, height / factor
}
