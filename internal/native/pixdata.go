package native

import (
	"encoding/binary"
	"fmt"
)

// Pixdata stream layout: six big-endian uint32 fields followed by the raw
// rows of the pixbuf.
//
//	magic | total length | pixdata type | rowstride | width | height
const (
	PixdataMagic     = 0x47646b50 // "GdkP"
	PixdataHeaderLen = 24

	// RGB colour type, 8-bit samples, uncompressed rows.
	pixdataTypeRGB8Raw = 0x01 | 0x01<<16 | 0x01<<24
)

// Pixdata is a native buffer backed by a serialized pixdata stream. The
// stream header is metadata of the external library and is skipped when
// exposing pixel memory.
type Pixdata struct {
	// HeaderLen is the number of bytes preceding the pixel payload.
	HeaderLen int

	w, h, stride int
	data         []byte
}

// DecodePixdata parses a pixdata stream. The returned buffer aliases data.
func DecodePixdata(data []byte) (*Pixdata, error) {
	if len(data) < PixdataHeaderLen {
		return nil, fmt.Errorf("%w: %d byte stream shorter than header", ErrBadPixdata, len(data))
	}
	be := binary.BigEndian
	if m := be.Uint32(data[0:]); m != PixdataMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrBadPixdata, m)
	}
	if t := be.Uint32(data[8:]); t != pixdataTypeRGB8Raw {
		return nil, fmt.Errorf("%w: unsupported pixdata type %#x", ErrBadPixdata, t)
	}
	total := uint64(be.Uint32(data[4:]))
	stride := uint64(be.Uint32(data[12:]))
	w := uint64(be.Uint32(data[16:]))
	h := uint64(be.Uint32(data[20:]))
	if total != uint64(len(data)) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrBadPixdata, total, len(data))
	}
	if stride < w*BytesPerPixel {
		return nil, fmt.Errorf("%w: stride %d for width %d", ErrBadStride, stride, w)
	}
	// All fields are 32-bit, so these products cannot overflow uint64.
	if need := PixdataHeaderLen + stride*h; uint64(len(data)) < need {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrBadPixdata, need, len(data))
	}
	return &Pixdata{HeaderLen: PixdataHeaderLen, w: int(w), h: int(h), stride: int(stride), data: data}, nil
}

// EncodePixdata serializes b, padding rows included.
func EncodePixdata(b Buffer) ([]byte, error) {
	if !Available(b) {
		return nil, fmt.Errorf("%w: buffer unavailable", ErrBadPixdata)
	}
	w, h, stride := b.Width(), b.Height(), b.RowStride()
	view := b.Pixels()
	if view.Len() < MinLen(b) {
		return nil, fmt.Errorf("%w: pixel memory has %d bytes, layout needs %d", ErrBadPixdata, view.Len(), MinLen(b))
	}
	px, err := view.Slice(0, min(view.Len(), stride*h))
	if err != nil {
		return nil, err
	}
	out := make([]byte, PixdataHeaderLen+stride*h)
	be := binary.BigEndian
	be.PutUint32(out[0:], PixdataMagic)
	be.PutUint32(out[4:], uint32(len(out)))
	be.PutUint32(out[8:], pixdataTypeRGB8Raw)
	be.PutUint32(out[12:], uint32(stride))
	be.PutUint32(out[16:], uint32(w))
	be.PutUint32(out[20:], uint32(h))
	copy(out[PixdataHeaderLen:], px)
	return out, nil
}

func (pd *Pixdata) Width() int     { return pd.w }
func (pd *Pixdata) Height() int    { return pd.h }
func (pd *Pixdata) RowStride() int { return pd.stride }

func (pd *Pixdata) Pixels() View {
	if pd.HeaderLen < 0 || pd.HeaderLen > len(pd.data) {
		return View{}
	}
	return NewView(pd.data[pd.HeaderLen:])
}

// Bytes returns the full stream, header included.
func (pd *Pixdata) Bytes() []byte { return pd.data }

func (pd *Pixdata) valid() bool { return pd != nil && pd.data != nil }
