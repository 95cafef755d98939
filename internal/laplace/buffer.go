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

// Package laplace sharpens single-channel images by adding the response of the
// 3x3 8-neighborhood Laplacian back onto the normalized original.
package laplace

import (
	"errors"
	"fmt"
)

var (
	// Image height or width below one, sample count not matching the
	// dimensions, or two stages disagreeing on the image size.
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// Input with more than one channel per pixel.
	ErrUnsupportedChannelLayout = errors.New("unsupported channel layout, need single channel")

	// Normalization against a maximum sample value which is not positive.
	ErrInvalidMaximum = errors.New("invalid maximum sample value")
)

// A row-major 2D grid of samples. Values are unbounded until clamped.
type Buffer struct {
	Width  int
	Height int
	Data   []float32
}

// Creates a zero-initialized buffer of the given size
func NewBuffer(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}, nil
}

// Wraps existing sample data into a buffer. Data is not copied
func NewBufferFromData(data []float32, width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidDimensions, len(data), width, height)
	}
	return &Buffer{Width: width, Height: height, Data: data}, nil
}

// Allocates an empty buffer with the same dimensions as b
func (b *Buffer) newLike() *Buffer {
	return &Buffer{Width: b.Width, Height: b.Height, Data: make([]float32, len(b.Data))}
}

func (b *Buffer) At(x, y int) float32 {
	return b.Data[y*b.Width+x]
}

func (b *Buffer) Set(x, y int, v float32) {
	b.Data[y*b.Width+x] = v
}

// Returns the sample at (x,y), with out of bounds coordinates clamped to the
// nearest edge pixel. Equivalent to reading a replicate-padded copy.
func (b *Buffer) Replicate(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= b.Width {
		x = b.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= b.Height {
		y = b.Height - 1
	}
	return b.Data[y*b.Width+x]
}

// Returns one row of samples. Shares the underlying data
func (b *Buffer) Row(y int) []float32 {
	return b.Data[y*b.Width : (y+1)*b.Width]
}

func (b *Buffer) SameSize(o *Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height
}

func (b *Buffer) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}

// Checks the buffer for consistency of dimensions and data length
func (b *Buffer) validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidDimensions)
	}
	if b.Width <= 0 || b.Height <= 0 || len(b.Data) != b.Width*b.Height {
		return fmt.Errorf("%w: %dx%d with %d samples", ErrInvalidDimensions, b.Width, b.Height, len(b.Data))
	}
	return nil
}
