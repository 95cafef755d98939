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
	"fmt"
)

// Returns original+laplacian elementwise in a new buffer
func Composite(original, laplacian *Buffer) (*Buffer, error) {
	if err := original.validate(); err != nil {
		return nil, err
	}
	if err := laplacian.validate(); err != nil {
		return nil, err
	}
	if !original.SameSize(laplacian) {
		return nil, fmt.Errorf("%w: original %s, laplacian %s", ErrInvalidDimensions,
			original.DimensionsToString(), laplacian.DimensionsToString())
	}
	res := original.newLike()
	for i, o := range original.Data {
		res.Data[i] = o + laplacian.Data[i]
	}
	return res, nil
}

func clamp01(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v >= 0 {
		return v
	}
	return 0 // negative or NaN
}

// Returns a copy of b with every value saturated to [0,1]. NaNs become 0
func Clamp(b *Buffer) (*Buffer, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	res := b.newLike()
	for i, v := range b.Data {
		res.Data[i] = clamp01(v)
	}
	return res, nil
}

// Outputs of the sharpening pipeline. All buffers share the input dimensions
type Result struct {
	Original  *Buffer // normalized input
	Response  *Buffer // signed Laplacian, unclamped
	Laplacian *Buffer // Laplacian clamped to [0,1], for display only
	Sharpened *Buffer // original plus unclamped Laplacian, clamped to [0,1]
}

// Sharpens a normalized image. The sharpened image adds the unclamped
// Laplacian, the clamped one is never fed back into the composition.
func (c Convolver) Sharpen(original *Buffer) (*Result, error) {
	response, err := c.Apply(original)
	if err != nil {
		return nil, err
	}
	sum, err := Composite(original, response)
	if err != nil {
		return nil, err
	}
	laplacian, err := Clamp(response)
	if err != nil {
		return nil, err
	}
	sharpened, err := Clamp(sum)
	if err != nil {
		return nil, err
	}
	return &Result{
		Original:  original,
		Response:  response,
		Laplacian: laplacian,
		Sharpened: sharpened,
	}, nil
}

// Normalizes raw samples in [0,max] and sharpens them with the default,
// sequential convolver
func Sharpen(raw []float32, width, height int, max float32) (*Result, error) {
	original, err := Normalize(raw, width, height, max)
	if err != nil {
		return nil, err
	}
	return Convolver{}.Sharpen(original)
}
