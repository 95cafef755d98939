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

package fits

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/mlnoga/lapsharp/internal/laplace"
)

func TestWriteRead(t *testing.T) {
	data := []float32{0, 0.25, 0.5, 1, -2, 3.5}
	img := NewImageFromNaxisn([]int32{3, 2}, append([]float32(nil), data...))
	img.Header.Strings["ORIGIN"] = "lapsharp"
	img.Header.History = append(img.Header.History, "laplace form=neighbors")
	img.Data[1] = float32(math.NaN())

	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("file length %d; want multiple of %d", buf.Len(), fitsBlockSize)
	}

	res, err := NewImageFromReader(&buf, "test.fits", 7, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != 7 || res.Bitpix != -32 || res.DimensionsToString() != "3x2" {
		t.Errorf("id=%d bitpix=%d dims=%s; want 7 -32 3x2", res.ID, res.Bitpix, res.DimensionsToString())
	}
	data[1] = 0
	for i, want := range data {
		if res.Data[i] != want {
			t.Errorf("data[%d]=%f; want %f", i, res.Data[i], want)
		}
	}
	if got := res.Header.Strings["ORIGIN"]; got != "lapsharp" {
		t.Errorf("ORIGIN='%s'; want 'lapsharp'", got)
	}
	if len(res.Header.History) != 1 || res.Header.History[0] != "laplace form=neighbors" {
		t.Errorf("history=%v", res.Header.History)
	}
	if _, ok := res.MaxValue(); ok {
		t.Errorf("float data must not have a max value")
	}
}

// Builds a FITS file with unsigned 16 bit data
func makeUint16FITS(width, height int, values []uint16) []byte {
	signed := make([]int16, len(values))
	for i, v := range values {
		signed[i] = int16(int32(v) - 32768)
	}
	return makeInt16FITS(width, height, 32768, signed)
}

// Builds a 16 bit FITS stream. BZERO is omitted if zero
func makeInt16FITS(width, height int, bzero int32, values []int16) []byte {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "")
	writeInt32(&sb, "BITPIX", 16, "")
	writeInt32(&sb, "NAXIS", 2, "")
	writeInt32(&sb, "NAXIS1", int32(width), "")
	writeInt32(&sb, "NAXIS2", int32(height), "")
	if bzero != 0 {
		writeInt32(&sb, "BZERO", bzero, "")
	}
	writeEnd(&sb)
	padBlock(&sb, sb.Len(), ' ')

	buf := bytes.NewBufferString(sb.String())
	for _, v := range values {
		binary.Write(buf, binary.BigEndian, v)
	}
	return buf.Bytes()
}

func TestReadUint16(t *testing.T) {
	values := []uint16{0, 1, 32768, 65535}
	raw := makeUint16FITS(2, 2, values)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(raw)
	zw.Close()

	for _, input := range [][]byte{raw, gz.Bytes()} {
		img, err := NewImageFromReader(bytes.NewReader(input), "", 0, io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range values {
			if img.Data[i] != float32(v) {
				t.Errorf("data[%d]=%f; want %d", i, img.Data[i], v)
			}
		}
		if max, ok := img.MaxValue(); !ok || max != 65535 {
			t.Errorf("max=%f,%v; want 65535,true", max, ok)
		}
	}
}

func TestReadInt16(t *testing.T) {
	tests := []struct {
		bzero  int32
		want   []float32
		bitpix int32
	}{
		{0, []float32{-32768, -100, 0, 32767}, -32},
		{1000, []float32{-31768, 900, 1000, 33767}, -32},
		{32768, []float32{0, 32668, 32768, 65535}, 16},
	}
	for _, tc := range tests {
		raw := makeInt16FITS(2, 2, tc.bzero, []int16{-32768, -100, 0, 32767})
		img, err := NewImageFromReader(bytes.NewReader(raw), "", 0, io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range tc.want {
			if img.Data[i] != want {
				t.Errorf("bzero=%d: data[%d]=%f; want %f", tc.bzero, i, img.Data[i], want)
			}
		}
		if img.Bitpix != tc.bitpix {
			t.Errorf("bzero=%d: bitpix=%d; want %d", tc.bzero, img.Bitpix, tc.bitpix)
		}
		_, ok := img.MaxValue()
		if ok != (tc.bitpix > 0) {
			t.Errorf("bzero=%d: MaxValue ok=%v; want %v", tc.bzero, ok, tc.bitpix > 0)
		}
	}
}

func TestReadTruncated(t *testing.T) {
	raw := makeUint16FITS(2, 2, []uint16{1, 2, 3, 4})
	if _, err := NewImageFromReader(bytes.NewReader(raw[:len(raw)-2]), "", 3, io.Discard); err == nil {
		t.Errorf("want error for truncated data")
	}
	if _, err := NewImageFromReader(strings.NewReader("not an image"), "", 3, io.Discard); err == nil {
		t.Errorf("want error for unknown format")
	}
}

func encodePNG(t *testing.T, img image.Image) io.Reader {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestDecode(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.Pix = []uint8{0, 10, 20, 30, 40, 255}
	gray16 := image.NewGray16(image.Rect(0, 0, 1, 1))
	gray16.SetGray16(0, 0, color.Gray16{Y: 1000})
	rgb := image.NewRGBA(image.Rect(0, 0, 2, 1))
	rgb.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	rgb.SetRGBA(1, 0, color.RGBA{10, 20, 30, 255})

	tests := []struct {
		img      image.Image
		dims     string
		bitpix   int32
		max      float32
		firstVal float32
	}{
		{gray, "3x2", 8, 255, 0},
		{gray16, "1x1", 16, 65535, 1000},
		{rgb, "2x1x3", 8, 255, 255},
	}
	for _, tc := range tests {
		img, err := NewImageFromReader(encodePNG(t, tc.img), "", 0, io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		if img.DimensionsToString() != tc.dims || img.Bitpix != tc.bitpix {
			t.Errorf("dims=%s bitpix=%d; want %s %d", img.DimensionsToString(), img.Bitpix, tc.dims, tc.bitpix)
		}
		if max, _ := img.MaxValue(); max != tc.max {
			t.Errorf("max=%f; want %f", max, tc.max)
		}
		if img.Data[0] != tc.firstVal {
			t.Errorf("data[0]=%f; want %f", img.Data[0], tc.firstVal)
		}
		if img.Header.Strings["FORMAT"] != "png" {
			t.Errorf("format=%s; want png", img.Header.Strings["FORMAT"])
		}
	}
}

func TestToGray(t *testing.T) {
	newRGB := func() *Image {
		img := NewImageFromNaxisn([]int32{2, 1, 3}, []float32{255, 0, 0, 0, 0, 255})
		img.Bitpix = 8
		return img
	}
	tests := []struct {
		mode GrayMode
		want []float32
	}{
		{GrayLuma, []float32{0.299 * 255, 0.114 * 255}},
		{GrayRec709, []float32{0.2126 * 255, 0.0722 * 255}},
		{GrayMean, []float32{85, 85}},
	}
	for _, tc := range tests {
		img := newRGB()
		if err := img.ToGray(tc.mode); err != nil {
			t.Fatal(err)
		}
		if img.DimensionsToString() != "2x1" || len(img.Data) != 2 {
			t.Errorf("%s: dims=%s; want 2x1", tc.mode, img.DimensionsToString())
		}
		for i, want := range tc.want {
			if math.Abs(float64(img.Data[i]-want)) > 1e-3 {
				t.Errorf("%s: data[%d]=%f; want %f", tc.mode, i, img.Data[i], want)
			}
		}
	}

	img := newRGB()
	if err := img.ToGray(GrayReject); !errors.Is(err, laplace.ErrUnsupportedChannelLayout) {
		t.Errorf("err=%v; want ErrUnsupportedChannelLayout", err)
	}

	bw := NewImageFromNaxisn([]int32{2, 1, 3}, []float32{255, 0, 255, 0, 255, 0})
	bw.Bitpix = 8
	if err := bw.ToGray(GrayLStar); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(bw.Data[0]-255)) > 0.1 || math.Abs(float64(bw.Data[1])) > 0.1 {
		t.Errorf("lstar=%v; want [255 0]", bw.Data)
	}

	bw = NewImageFromNaxisn([]int32{2, 1, 3}, []float32{65535, 0, 65535, 0, 65535, 0})
	bw.Bitpix = 16
	if err := bw.ToGray(GrayOkLab); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(bw.Data[0]-65535)) > 1 || math.Abs(float64(bw.Data[1])) > 0.1 {
		t.Errorf("oklab=%v; want [65535 0]", bw.Data)
	}

	mono := NewImageFromNaxisn([]int32{2, 2}, nil)
	if err := mono.ToGray(GrayReject); err != nil {
		t.Errorf("single channel: %v", err)
	}
}

func TestParseGrayMode(t *testing.T) {
	for i, name := range grayModeNames {
		if m, err := ParseGrayMode(name); err != nil || m != GrayMode(i) || m.String() != name {
			t.Errorf("ParseGrayMode(%s)=%v,%v", name, m, err)
		}
	}
	if _, err := ParseGrayMode("sepia"); err == nil {
		t.Errorf("want error for unknown mode")
	}
}

func TestWriteMono(t *testing.T) {
	img := NewImageFromNaxisn([]int32{2, 2}, []float32{0, 0.5, 1, float32(math.NaN())})

	var buf bytes.Buffer
	if err := img.WriteMonoPNG(&buf, 0, 1, 1, true); err != nil {
		t.Fatal(err)
	}
	res, err := NewImageFromReader(&buf, "", 0, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 32768, 65535, 0}
	for i := range want {
		if res.Data[i] != want[i] {
			t.Errorf("data[%d]=%f; want %f", i, res.Data[i], want[i])
		}
	}

	buf.Reset()
	if err := img.WriteMonoTIFF16(&buf, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := img.WriteMonoJPG(&buf, 0, 1, 1, 90); err != nil {
		t.Fatal(err)
	}

	rgb := NewImageFromNaxisn([]int32{2, 2, 3}, nil)
	if err := rgb.WriteMonoJPG(&buf, 0, 1, 1, 90); err == nil {
		t.Errorf("want error writing three channels as grayscale")
	}
}

func TestPanel(t *testing.T) {
	a := NewImageFromNaxisn([]int32{40, 20}, nil)
	b := NewImageFromNaxisn([]int32{40, 20}, nil)
	for i := range b.Data {
		b.Data[i] = 1
	}

	panel, err := NewPanel([]*Image{a, b}, []string{"Original Image", "Sharpened Image"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := panel.Bounds().Dx(), panel.Bounds().Dy(); w != 3*panelGap+80 || h != panelCaption+20+panelGap {
		t.Errorf("panel %dx%d; want %dx%d", w, h, 3*panelGap+80, panelCaption+20+panelGap)
	}
	if v := panel.GrayAt(panelGap+40+panelGap+5, panelCaption+5).Y; v != 255 {
		t.Errorf("second tile=%d; want 255", v)
	}
	if v := panel.GrayAt(panelGap+5, panelCaption+5).Y; v != 0 {
		t.Errorf("first tile=%d; want 0", v)
	}

	scaled, err := NewPanel([]*Image{a}, nil, 40)
	if err != nil {
		t.Fatal(err)
	}
	if w := scaled.Bounds().Dx(); w != 2*panelGap+80 {
		t.Errorf("scaled width %d; want %d", w, 2*panelGap+80)
	}

	var buf bytes.Buffer
	if err := WritePanel(&buf, "png", []*Image{a, b}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := WritePanel(&buf, "gif", []*Image{a}, nil, 0); err == nil {
		t.Errorf("want error for unsupported panel format")
	}
	if _, err := NewPanel(nil, nil, 0); err == nil {
		t.Errorf("want error for empty panel")
	}
}
