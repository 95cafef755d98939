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

// Returns a new (height+2)x(width+2) buffer with src at offset (1,1) and a
// one pixel border replicating the nearest edge pixel of src, corners included.
// A single row or column serves as both first and last one.
func Pad(src *Buffer) (*Buffer, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	w, h := src.Width, src.Height
	pw := w + 2
	padded := &Buffer{Width: pw, Height: h + 2, Data: make([]float32, pw*(h+2))}

	for y := 0; y < h; y++ {
		row := src.Row(y)
		dest := padded.Data[(y+1)*pw : (y+2)*pw]
		dest[0] = row[0]       // first column
		copy(dest[1:w+1], row) // interior
		dest[w+1] = row[w-1]   // last column
	}

	// top and bottom border rows, corners included
	copy(padded.Data[:pw], padded.Data[pw:2*pw])
	copy(padded.Data[(h+1)*pw:], padded.Data[h*pw:(h+1)*pw])
	return padded, nil
}
