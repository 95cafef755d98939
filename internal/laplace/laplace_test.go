// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package laplace

import (
	"errors"
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

type dims struct {
	Width, Height int
}

var testDims = []dims{{1, 1}, {1, 5}, {5, 1}, {2, 2}, {3, 3}, {4, 7}, {13, 11}, {64, 37}}

// Returns a buffer with uniform random values in [lo,hi)
func randomBuffer(rng *fastrand.RNG, width, height int, lo, hi float32) *Buffer {
	b, _ := NewBuffer(width, height)
	for i := range b.Data {
		u := float32(rng.Uint32n(1<<24)) / (1 << 24)
		b.Data[i] = lo + u*(hi-lo)
	}
	return b
}

func TestPad(t *testing.T) {
	rng := fastrand.RNG{}
	for _, d := range testDims {
		src := randomBuffer(&rng, d.Width, d.Height, 0, 1)
		p, err := Pad(src)
		if err != nil {
			t.Fatalf("%dx%d: %s", d.Width, d.Height, err.Error())
		}
		w, h := d.Width, d.Height
		if p.Width != w+2 || p.Height != h+2 {
			t.Errorf("%dx%d: padded %dx%d; want %dx%d", w, h, p.Width, p.Height, w+2, h+2)
			continue
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if p.At(x+1, y+1) != src.At(x, y) {
					t.Errorf("%dx%d: p[%d,%d]=%f; want %f", w, h, x+1, y+1, p.At(x+1, y+1), src.At(x, y))
				}
			}
		}
		for x := 0; x < w; x++ {
			if p.At(x+1, 0) != src.At(x, 0) {
				t.Errorf("%dx%d: top p[%d,0]=%f; want %f", w, h, x+1, p.At(x+1, 0), src.At(x, 0))
			}
			if p.At(x+1, h+1) != src.At(x, h-1) {
				t.Errorf("%dx%d: bottom p[%d,%d]=%f; want %f", w, h, x+1, h+1, p.At(x+1, h+1), src.At(x, h-1))
			}
		}
		for y := 0; y < h; y++ {
			if p.At(0, y+1) != src.At(0, y) {
				t.Errorf("%dx%d: left p[0,%d]=%f; want %f", w, h, y+1, p.At(0, y+1), src.At(0, y))
			}
			if p.At(w+1, y+1) != src.At(w-1, y) {
				t.Errorf("%dx%d: right p[%d,%d]=%f; want %f", w, h, w+1, y+1, p.At(w+1, y+1), src.At(w-1, y))
			}
		}
		corners := []struct{ px, py, sx, sy int }{
			{0, 0, 0, 0}, {w + 1, 0, w - 1, 0}, {0, h + 1, 0, h - 1}, {w + 1, h + 1, w - 1, h - 1},
		}
		for _, c := range corners {
			if p.At(c.px, c.py) != src.At(c.sx, c.sy) {
				t.Errorf("%dx%d: corner p[%d,%d]=%f; want %f", w, h, c.px, c.py, p.At(c.px, c.py), src.At(c.sx, c.sy))
			}
		}
	}
}

func TestPadInvalid(t *testing.T) {
	bad := []*Buffer{nil, {Width: 0, Height: 3}, {Width: 2, Height: 2, Data: make([]float32, 3)}}
	for i, b := range bad {
		if _, err := Pad(b); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("case %d: err=%v; want ErrInvalidDimensions", i, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := []float32{0, 51, 255, 127.5}
	b, err := Normalize(raw, 2, 2, 255)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 0.2, 1, 0.5}
	for i, w := range want {
		if math.Abs(float64(b.Data[i]-w)) > 1e-7 {
			t.Errorf("b[%d]=%f; want %f", i, b.Data[i], w)
		}
	}
	if raw[2] != 255 {
		t.Errorf("raw modified: raw[2]=%f; want 255", raw[2])
	}

	if _, err := Normalize(raw, 3, 2, 255); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("length mismatch err=%v; want ErrInvalidDimensions", err)
	}
	if _, err := Normalize(nil, 0, 0, 255); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("0x0 err=%v; want ErrInvalidDimensions", err)
	}
	if _, err := Normalize(raw, 2, 2, 0); !errors.Is(err, ErrInvalidMaximum) {
		t.Errorf("max=0 err=%v; want ErrInvalidMaximum", err)
	}
}

func TestNormalizeRange(t *testing.T) {
	b, min, max, err := NormalizeRange([]float32{-2, 0, 2, 6}, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if min != -2 || max != 6 {
		t.Errorf("range [%f,%f]; want [-2,6]", min, max)
	}
	want := []float32{0, 0.25, 0.5, 1}
	for i, w := range want {
		if b.Data[i] != w {
			t.Errorf("b[%d]=%f; want %f", i, b.Data[i], w)
		}
	}

	b, _, _, err = NormalizeRange([]float32{3, 3, 3}, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range b.Data {
		if v != 1 {
			t.Errorf("uniform b[%d]=%f; want 1", i, v)
		}
	}
}

func TestKernelEquivalence(t *testing.T) {
	// responses span [-8,8], so the two summation orders differ by a few float32 ulps
	epsilon := 1e-5
	rng := fastrand.RNG{}
	for _, d := range testDims {
		src := randomBuffer(&rng, d.Width, d.Height, 0, 1)
		p, _ := Pad(src)
		lap, err := Laplacian(p)
		if err != nil {
			t.Fatal(err)
		}
		full, err := LaplacianKernel(p)
		if err != nil {
			t.Fatal(err)
		}
		for i := range lap.Data {
			if math.Abs(float64(lap.Data[i]-full.Data[i])) > epsilon {
				t.Errorf("%dx%d: neighbors[%d]=%f kernel[%d]=%f", d.Width, d.Height, i, lap.Data[i], i, full.Data[i])
			}
		}
	}
}

func TestReplicateMatchesPadded(t *testing.T) {
	rng := fastrand.RNG{}
	for _, d := range testDims {
		src := randomBuffer(&rng, d.Width, d.Height, 0, 1)
		p, _ := Pad(src)
		lap, _ := Laplacian(p)
		rep, err := LaplacianReplicate(src)
		if err != nil {
			t.Fatal(err)
		}
		for i := range lap.Data {
			if lap.Data[i] != rep.Data[i] {
				t.Errorf("%dx%d: padded[%d]=%f replicate[%d]=%f", d.Width, d.Height, i, lap.Data[i], i, rep.Data[i])
			}
		}
	}
}

func TestFlatRegion(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 0; i < 200; i++ {
		v := float32(rng.Uint32n(1<<24)) / (1 << 24)
		for _, form := range []Form{FormNeighbors, FormReplicate} {
			src, _ := NewBuffer(5, 4)
			for j := range src.Data {
				src.Data[j] = v
			}
			lap, err := Convolver{Form: form}.Apply(src)
			if err != nil {
				t.Fatal(err)
			}
			for j, l := range lap.Data {
				if l != 0 {
					t.Errorf("%s v=%f lap[%d]=%g; want 0", form, v, j, l)
				}
			}
		}
	}
}

func TestFlatNeighborhoodInsideEdges(t *testing.T) {
	// 3x3 block of 0.3 in a 5x5 image with bright border; the center pixel's
	// neighborhood is flat even though the image is not
	src, _ := NewBuffer(5, 5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			if x >= 1 && x <= 3 && y >= 1 && y <= 3 {
				src.Set(x, y, 0.3)
			} else {
				src.Set(x, y, 0.9)
			}
		}
	}
	p, _ := Pad(src)
	lap, _ := Laplacian(p)
	if lap.At(2, 2) != 0 {
		t.Errorf("lap[2,2]=%g; want 0", lap.At(2, 2))
	}
	if lap.At(1, 1) >= 0 {
		t.Errorf("lap[1,1]=%g; want <0 next to bright border", lap.At(1, 1))
	}
}

func TestClampIdempotent(t *testing.T) {
	rng := fastrand.RNG{}
	for _, d := range testDims {
		b := randomBuffer(&rng, d.Width, d.Height, -3, 3)
		b.Data[0] = float32(math.NaN())
		once, err := Clamp(b)
		if err != nil {
			t.Fatal(err)
		}
		twice, err := Clamp(once)
		if err != nil {
			t.Fatal(err)
		}
		for i := range once.Data {
			if once.Data[i] < 0 || once.Data[i] > 1 {
				t.Errorf("clamp[%d]=%f; want in [0,1]", i, once.Data[i])
			}
			if once.Data[i] != twice.Data[i] {
				t.Errorf("clamp[%d]=%f clamp(clamp)[%d]=%f", i, once.Data[i], i, twice.Data[i])
			}
		}
		if once.Data[0] != 0 {
			t.Errorf("clamp(NaN)=%f; want 0", once.Data[0])
		}
	}
}

func TestClampInvalid(t *testing.T) {
	for _, b := range []*Buffer{nil, {Width: 2, Height: 2, Data: make([]float32, 3)}} {
		if _, err := Clamp(b); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("err=%v; want ErrInvalidDimensions", err)
		}
	}
}

func TestDimensionPreservation(t *testing.T) {
	rng := fastrand.RNG{}
	for _, d := range testDims {
		src := randomBuffer(&rng, d.Width, d.Height, 0, 1)
		for _, form := range []Form{FormNeighbors, FormKernel, FormReplicate} {
			for _, threads := range []int{1, 3} {
				res, err := Convolver{Form: form, Threads: threads}.Sharpen(src)
				if err != nil {
					t.Fatal(err)
				}
				for name, b := range map[string]*Buffer{"response": res.Response, "laplacian": res.Laplacian, "sharpened": res.Sharpened} {
					if !b.SameSize(src) || len(b.Data) != len(src.Data) {
						t.Errorf("%s threads=%d %s: %s; want %s", form, threads, name, b.DimensionsToString(), src.DimensionsToString())
					}
				}
			}
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := fastrand.RNG{}
	src := randomBuffer(&rng, 97, 61, 0, 1)
	for _, form := range []Form{FormNeighbors, FormKernel, FormReplicate} {
		seq, _ := Convolver{Form: form}.Apply(src)
		par, err := Convolver{Form: form, Threads: 4}.Apply(src)
		if err != nil {
			t.Fatal(err)
		}
		for i := range seq.Data {
			if seq.Data[i] != par.Data[i] {
				t.Errorf("%s: seq[%d]=%f par[%d]=%f", form, i, seq.Data[i], i, par.Data[i])
			}
		}
	}
}

type sharpenTestCase struct {
	Name      string
	Width     int
	Height    int
	Raw       []float32
	Max       float32
	Laplacian []float32
	Sharpened []float32
}

func TestSharpen(t *testing.T) {
	tcs := []sharpenTestCase{
		{"uniform", 3, 3,
			[]float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, 1,
			[]float32{0, 0, 0, 0, 0, 0, 0, 0, 0},
			[]float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}},
		{"single pixel", 1, 1, []float32{0.8}, 1, []float32{0}, []float32{0.8}},
		{"bright center", 3, 3,
			[]float32{0, 0, 0, 0, 255, 0, 0, 0, 0}, 255,
			[]float32{0, 0, 0, 0, 1, 0, 0, 0, 0},
			[]float32{0, 0, 0, 0, 1, 0, 0, 0, 0}},
	}

	for _, tc := range tcs {
		res, err := Sharpen(tc.Raw, tc.Width, tc.Height, tc.Max)
		if err != nil {
			t.Fatalf("%s: %s", tc.Name, err.Error())
		}
		for i := range tc.Laplacian {
			if res.Laplacian.Data[i] != tc.Laplacian[i] {
				t.Errorf("%s: lap[%d]=%f; want %f", tc.Name, i, res.Laplacian.Data[i], tc.Laplacian[i])
			}
			if res.Sharpened.Data[i] != tc.Sharpened[i] {
				t.Errorf("%s: sharp[%d]=%f; want %f", tc.Name, i, res.Sharpened.Data[i], tc.Sharpened[i])
			}
		}
	}
}

func TestSharpenUsesUnclampedResponse(t *testing.T) {
	res, err := Sharpen([]float32{0, 0, 0, 0, 255, 0, 0, 0, 0}, 3, 3, 255)
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.At(1, 1) != 8 {
		t.Errorf("response center=%f; want 8", res.Response.At(1, 1))
	}
	// every neighbor sees the bright center exactly once
	for i, r := range res.Response.Data {
		if i != 4 && r != -1 {
			t.Errorf("response[%d]=%f; want -1", i, r)
		}
	}

	// a dim edge next to a mid-gray area darkens in the sharpened result even
	// though its clamped Laplacian is zero
	res, _ = Sharpen([]float32{0.2, 0.6, 0.6}, 3, 1, 1)
	if res.Laplacian.Data[0] != 0 {
		t.Errorf("lap[0]=%f; want 0", res.Laplacian.Data[0])
	}
	if res.Sharpened.Data[0] != 0 {
		t.Errorf("sharp[0]=%f; want 0", res.Sharpened.Data[0])
	}
}

func TestCompositeMismatch(t *testing.T) {
	a, _ := NewBuffer(2, 3)
	b, _ := NewBuffer(3, 2)
	if _, err := Composite(a, b); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err=%v; want ErrInvalidDimensions", err)
	}
}

func TestLaplacianNeedsPaddedInput(t *testing.T) {
	b, _ := NewBuffer(2, 5)
	if _, err := Laplacian(b); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err=%v; want ErrInvalidDimensions", err)
	}
	if _, err := LaplacianKernel(b); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err=%v; want ErrInvalidDimensions", err)
	}
}

func TestParseForm(t *testing.T) {
	for _, f := range []Form{FormNeighbors, FormKernel, FormReplicate} {
		got, err := ParseForm(f.String())
		if err != nil || got != f {
			t.Errorf("ParseForm(%s)=%v,%v; want %v", f.String(), got, err, f)
		}
	}
	if f, err := ParseForm(""); err != nil || f != FormNeighbors {
		t.Errorf("ParseForm(\"\")=%v,%v; want neighbors", f, err)
	}
	if _, err := ParseForm("sobel"); err == nil {
		t.Errorf("ParseForm(sobel) succeeded; want error")
	}
}

func TestKernel(t *testing.T) {
	k := Kernel()
	k[1][1] = 0
	if Kernel()[1][1] != 8 {
		t.Errorf("kernel center=%f after modifying a copy; want 8", Kernel()[1][1])
	}
	sum := float32(0)
	for _, row := range Kernel() {
		for _, v := range row {
			sum += v
		}
	}
	if sum != 0 {
		t.Errorf("kernel sum=%f; want 0", sum)
	}
}
