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
	"image"
	"image/png"
	"io"
)

// Write a grayscale image to PNG with 8 or 16 bits per sample, using the given min, max and gamma.
func (f *Image) WriteMonoPNGToFile(fileName string, min, max, gamma float32, sixteenBit bool) error {
	return writeToFile(fileName, func(w io.Writer) error { return f.WriteMonoPNG(w, min, max, gamma, sixteenBit) })
}

// Write a grayscale image to PNG with 8 or 16 bits per sample, using the given min, max and gamma.
func (f *Image) WriteMonoPNG(writer io.Writer, min, max, gamma float32, sixteenBit bool) error {
	if err := f.checkMono(); err != nil {
		return err
	}
	var img image.Image
	if sixteenBit {
		img = f.ToGray16(min, max, gamma)
	} else {
		img = f.ToGray8(min, max, gamma)
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(writer, img)
}
