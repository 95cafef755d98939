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
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decodes an image in any registered format. Grayscale images become a single
// plane, anything else three planes R,G,B. Alpha is dropped
func (f *Image) Decode(r io.Reader) error {
	img, format, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("%d: decoding image: %w", f.ID, err)
	}
	f.Header.Strings["FORMAT"] = format

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%d: empty %s image", f.ID, format)
	}
	f.Bitpix = bitsPerSample(img.ColorModel())
	f.Bzero, f.Bscale = 0, 1

	switch img := img.(type) {
	case *image.Gray:
		f.setNaxisn(width, height, 1)
		for y := 0; y < height; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+width]
			dest := f.Data[y*width : (y+1)*width]
			for x, v := range row {
				dest[x] = float32(v)
			}
		}

	case *image.Gray16:
		f.setNaxisn(width, height, 1)
		for y := 0; y < height; y++ {
			dest := f.Data[y*width : (y+1)*width]
			for x := range dest {
				dest[x] = float32(img.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}

	default:
		f.setNaxisn(width, height, 3)
		shift := uint(8)
		if f.Bitpix == 16 {
			shift = 0
		}
		size := width * height
		rs, gs, bs := f.Data[:size], f.Data[size:2*size], f.Data[2*size:]
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				// non-premultiplied, so transparent pixels keep their color
				c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
				i := y*width + x
				rs[i] = float32(c.R >> shift)
				gs[i] = float32(c.G >> shift)
				bs[i] = float32(c.B >> shift)
			}
		}
	}
	return nil
}

func (f *Image) setNaxisn(width, height, channels int) {
	f.Naxisn = []int32{int32(width), int32(height)}
	if channels > 1 {
		f.Naxisn = append(f.Naxisn, int32(channels))
	}
	f.Pixels = int32(width * height * channels)
	f.Data = make([]float32, f.Pixels)
}

// Bits per sample of a color model. Everything but the 16 bit models is treated as 8 bit
func bitsPerSample(m color.Model) int32 {
	switch m {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model, color.Alpha16Model:
		return 16
	default:
		return 8
	}
}
