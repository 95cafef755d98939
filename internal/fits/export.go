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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
)

// Writes to a buffered file with the given name, creating or truncating it
func writeToFile(fileName string, write func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	if err = write(writer); err != nil {
		file.Close()
		return err
	}
	if err = writer.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Maps pixel values from [min,max] to [0,1] with gamma, replacing NaNs with zeros for export
type toneMap struct {
	min, scale float32
	gammaInv   float64
}

func newToneMap(min, max, gamma float32) toneMap {
	scale := float32(1)
	if max > min {
		scale = 1 / (max - min)
	}
	gammaInv := 1.0
	if gamma > 0 {
		gammaInv = float64(1 / gamma)
	}
	return toneMap{min, scale, gammaInv}
}

func (t toneMap) apply(v float32) float32 {
	v = (v - t.min) * t.scale
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	if t.gammaInv != 1.0 {
		v = float32(math.Pow(float64(v), t.gammaInv))
	}
	return v
}

func (f *Image) checkMono() error {
	if f.Channels() != 1 {
		return fmt.Errorf("%d: cannot write %s image as grayscale", f.ID, f.DimensionsToString())
	}
	return nil
}

// Converts a single channel image to an 8-bit Golang image, using the given min, max and gamma
func (f *Image) ToGray8(min, max, gamma float32) *image.Gray {
	width, height := f.Width(), f.Height()
	img := image.NewGray(image.Rect(0, 0, width, height))
	tm := newToneMap(min, max, gamma)
	for i, v := range f.Data[:width*height] {
		img.Pix[i] = uint8(tm.apply(v)*255 + 0.5)
	}
	return img
}

// Converts a single channel image to a 16-bit Golang image, using the given min, max and gamma
func (f *Image) ToGray16(min, max, gamma float32) *image.Gray16 {
	width, height := f.Width(), f.Height()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	tm := newToneMap(min, max, gamma)
	for y := 0; y < height; y++ {
		row := f.Data[y*width : (y+1)*width]
		for x, v := range row {
			img.SetGray16(x, y, color.Gray16{Y: uint16(tm.apply(v)*65535 + 0.5)})
		}
	}
	return img
}
