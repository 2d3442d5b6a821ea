// Package codec turns compressed image files into raw RGB bitmaps and back.
// It is the file load/save collaborator of the bitmap package: callers get
// (bytes, width, height) and never see image.Image values.
package codec

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	xbmp "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// BytesPerPixel of every bitmap produced or consumed here.
const BytesPerPixel = 3

// DefaultJPEGQuality is used by Encode for jpeg output.
const DefaultJPEGQuality = 90

var (
	ErrUnknownFormat = errors.New("codec: unknown image format")
	ErrBadBitmap     = errors.New("codec: bitmap length does not match dimensions")
)

// Normalize maps a format tag or file extension to its canonical tag:
// png, jpeg, bmp or tiff. It returns "" for anything else.
func Normalize(format string) string {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "png":
		return "png"
	case "jpeg", "jpg":
		return "jpeg"
	case "bmp":
		return "bmp"
	case "tiff", "tif":
		return "tiff"
	}
	return ""
}

// Decode reads any registered image format and returns its pixels as an RGB
// bitmap. Alpha is dropped.
func Decode(r io.Reader) (bmp []byte, width, height int, format string, err error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, 0, 0, "", fmt.Errorf("codec: decode: %w", err)
	}
	bmp, width, height = FromImage(img)
	return bmp, width, height, format, nil
}

// FromImage flattens img into an RGB bitmap.
func FromImage(img image.Image) (bmp []byte, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	bmp = make([]byte, width*height*BytesPerPixel)
	n := 0
	switch src := img.(type) {
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := src.PixOffset(b.Min.X, y)
			for x := 0; x < width; x++ {
				copy(bmp[n:n+3], src.Pix[off+x*4:off+x*4+3])
				n += BytesPerPixel
			}
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := src.PixOffset(b.Min.X, y)
			for x := 0; x < width; x++ {
				copy(bmp[n:n+3], src.Pix[off+x*4:off+x*4+3])
				n += BytesPerPixel
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				bmp[n+0], bmp[n+1], bmp[n+2] = c.R, c.G, c.B
				n += BytesPerPixel
			}
		}
	}
	return bmp, width, height
}

// ToImage wraps an RGB bitmap in an opaque *image.RGBA.
func ToImage(bmp []byte, width, height int) (*image.RGBA, error) {
	if width < 0 || height < 0 || len(bmp) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrBadBitmap, len(bmp), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(bmp); i, j = i+BytesPerPixel, j+4 {
		img.Pix[j+0] = bmp[i+0]
		img.Pix[j+1] = bmp[i+1]
		img.Pix[j+2] = bmp[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Encode writes the bitmap in the given format. The tag is passed through
// Normalize first.
func Encode(w io.Writer, bmp []byte, width, height int, format string) error {
	tag := Normalize(format)
	if tag == "" {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	img, err := ToImage(bmp, width, height)
	if err != nil {
		return err
	}
	switch tag {
	case "png":
		err = png.Encode(w, img)
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality})
	case "bmp":
		err = xbmp.Encode(w, img)
	case "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return fmt.Errorf("codec: encode %s: %w", tag, err)
	}
	return nil
}

// ContentType returns the MIME type for a canonical format tag.
func ContentType(tag string) string {
	switch tag {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	}
	return "application/octet-stream"
}

// Load decodes the image file at path.
func Load(path string) (bmp []byte, width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	bmp, width, height, _, err = Decode(f)
	return bmp, width, height, err
}

// Save encodes the bitmap to path in the given format.
func Save(path string, bmp []byte, width, height int, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, bmp, width, height, format); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func SaveAsJPEG(path string, bmp []byte, width, height int) error {
	return Save(path, bmp, width, height, "jpeg")
}

func SaveAsPNG(path string, bmp []byte, width, height int) error {
	return Save(path, bmp, width, height, "png")
}
