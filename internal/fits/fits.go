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
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/lapsharp/internal/stats"
)

// An image with FITS semantics, whatever the file format it was read from.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per sample of the source. Positive values are integral, negative floating
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i]
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i]
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first, i.e. X,Y[,C]
	Pixels int32   // Number of samples in the image. Product of Naxisn[]

	Data []float32 // The image data, channels stored as consecutive planes

	Stats *stats.Stats // Basic statistics of the first plane, computed on demand
}

// Creates an image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a floating point image with the given axes. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...),
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates a single-plane floating point image of width x height, carrying over ID and file name from src
func NewImageFromPlane(src *Image, data []float32, width, height int) *Image {
	res := NewImageFromNaxisn([]int32{int32(width), int32(height)}, data)
	if src != nil {
		res.ID, res.FileName = src.ID, src.FileName
	}
	return res
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

func (f *Image) Width() int {
	if len(f.Naxisn) == 0 {
		return 0
	}
	return int(f.Naxisn[0])
}

func (f *Image) Height() int {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return int(f.Naxisn[1])
}

// Number of planes. Axes beyond the third are not supported and count as 0
func (f *Image) Channels() int {
	switch len(f.Naxisn) {
	case 0:
		return 0
	case 1, 2:
		return 1
	case 3:
		return int(f.Naxisn[2])
	default:
		return 0
	}
}

// Returns the samples of the given channel
func (f *Image) Plane(ch int) []float32 {
	size := f.Width() * f.Height()
	return f.Data[ch*size : (ch+1)*size]
}

// Returns the largest sample value representable at the source bit depth, i.e. 2^Bitpix-1.
// Returns false for floating point data, which has no fixed range
func (f *Image) MaxValue() (max float32, ok bool) {
	if f.Bitpix <= 0 {
		return 0, false
	}
	return float32(math.Exp2(float64(f.Bitpix)) - 1), true
}

// Calculates statistics of the first plane, and caches them in f.Stats
func (f *Image) UpdateStats() *stats.Stats {
	f.Stats = stats.NewStats(f.Plane(0), int32(f.Width()))
	return f.Stats
}
