package bitmap

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDownsampleBlockAverages(t *testing.T) {
	src := []byte{
		0, 10, 20, 30,
		40, 50, 60, 70,
		80, 90, 100, 110,
		120, 130, 140, 150,
	}
	got, err := Downsample(src, 4, 4, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{25, 45, 105, 125}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDownsampleTruncates(t *testing.T) {
	// (1+2+2+2)/4 = 1.75
	got, err := Downsample([]byte{1, 2, 2, 2}, 2, 2, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 {
		t.Errorf("got %d, want 1", got[0])
	}
}

func TestDownsampleChannelsIndependent(t *testing.T) {
	src := []byte{
		255, 0, 10, 0, 255, 20,
		255, 0, 30, 0, 255, 40,
	}
	got, err := Downsample(src, 2, 2, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{127, 127, 25}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDownsampleFactorOneIsCopy(t *testing.T) {
	src := randomBitmap(rand.New(rand.NewSource(11)), 6, 4)
	got, err := Downsample(src, 6, 4, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	got[0]++
	if got[0] == src[0] {
		t.Errorf("output aliases input")
	}
}

func TestDownsampleDeterministic(t *testing.T) {
	src := randomBitmap(rand.New(rand.NewSource(12)), 33, 17)
	a, err := Downsample(src, 33, 17, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Downsample(src, 33, 17, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("(-first +second):\n%s", diff)
	}
}

func TestDownsampleUniform(t *testing.T) {
	for _, f := range []int{1, 2, 3, 5, 8} {
		for _, bpp := range []int{1, 3, 4} {
			w, h := 17, 11
			src := make([]byte, w*h*bpp)
			for i := range src {
				src[i] = byte(200 + i%bpp)
			}
			got, err := Downsample(src, w, h, bpp, f)
			if err != nil {
				t.Fatal(err)
			}
			for i, c := range got {
				if want := byte(200 + i%bpp); c != want {
					t.Fatalf("f=%d bpp=%d: byte %d = %d, want %d", f, bpp, i, c, want)
				}
			}
		}
	}
}

func TestDownsampleDimensions(t *testing.T) {
	cases := []struct{ w, h, f int }{
		{10, 10, 3}, {10, 10, 5}, {7, 3, 2}, {16, 16, 4}, {5, 9, 4}, {1, 1, 1}, {0, 4, 2},
	}
	for _, c := range cases {
		for _, bpp := range []int{1, 3} {
			got, err := Downsample(make([]byte, c.w*c.h*bpp), c.w, c.h, bpp, c.f)
			if err != nil {
				t.Fatalf("%+v: %v", c, err)
			}
			if want := (c.w / c.f) * (c.h / c.f) * bpp; len(got) != want {
				t.Errorf("%+v bpp=%d: len %d, want %d", c, bpp, len(got), want)
			}
		}
	}
	if dw, dh := DownsampledSize(10, 10, 3); dw != 3 || dh != 3 {
		t.Errorf("DownsampledSize(10,10,3) = %d,%d", dw, dh)
	}
}

func TestDownsampleCropsRemainder(t *testing.T) {
	// 3x3, factor 2: only the top-left 2x2 block counts.
	src := []byte{
		10, 10, 255,
		10, 10, 255,
		255, 255, 255,
	}
	got, err := Downsample(src, 3, 3, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{10}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDownsampleNonSquareIndexing(t *testing.T) {
	// Wide, short image: an index that multiplies the row by the height
	// reads the wrong pixels here.
	w, h := 8, 2
	src := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src[y*w+x] = byte(x*10 + y)
		}
	}
	got, err := Downsample(src, w, h, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Block dx sums to 80*dx + 22.
	want := []byte{5, 25, 45, 65}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDownsampleBoundaries(t *testing.T) {
	src := randomBitmap(rand.New(rand.NewSource(13)), 6, 4)

	row, err := Downsample(src, 6, 4, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(row) != 1*1*3 {
		t.Errorf("factor == height: len %d", len(row))
	}

	got, err := Downsample(src, 6, 4, 3, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("factor == width on shorter image: len %d, want 0", len(got))
	}

	got, err = Downsample(src, 6, 4, 3, 9)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("factor beyond both dimensions: got %v, want empty", got)
	}

	square := randomBitmap(rand.New(rand.NewSource(14)), 4, 4)
	one, err := Downsample(square, 4, 4, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 3 {
		t.Errorf("factor == width == height: len %d, want 3", len(one))
	}
}

func TestDownsampleRejectsBadArguments(t *testing.T) {
	cases := []struct {
		name                 string
		n, w, h, bpp, factor int
	}{
		{"zero factor", 12, 2, 2, 3, 0},
		{"negative factor", 12, 2, 2, 3, -2},
		{"zero bpp", 12, 2, 2, 0, 1},
		{"short bitmap", 11, 2, 2, 3, 1},
		{"long bitmap", 13, 2, 2, 3, 1},
		{"negative width", 0, -1, 2, 3, 1},
	}
	for _, c := range cases {
		out, err := Downsample(make([]byte, c.n), c.w, c.h, c.bpp, c.factor)
		if !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: got %v, want ErrPrecondition", c.name, err)
		}
		if out != nil {
			t.Errorf("%s: returned %d bytes alongside error", c.name, len(out))
		}
	}
}
