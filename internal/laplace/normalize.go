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
	"math"
)

// Maps raw samples in [0,max] to intensities in [0,1] by dividing by max.
// Returns a newly allocated buffer, raw is left untouched.
func Normalize(raw []float32, width, height int, max float32) (*Buffer, error) {
	if width <= 0 || height <= 0 || len(raw) != width*height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidDimensions, len(raw), width, height)
	}
	if !(max > 0) || math.IsInf(float64(max), 1) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidMaximum, max)
	}
	b := &Buffer{Width: width, Height: height, Data: make([]float32, len(raw))}
	for i, r := range raw {
		b.Data[i] = r / max
	}
	return b, nil
}

// Maps raw samples linearly so that their minimum becomes 0 and their maximum 1.
// For data without a fixed sample range, e.g. floating point FITS. Images of
// uniform intensity are clamped into [0,1] instead. Returns the buffer and the
// observed input range.
func NormalizeRange(raw []float32, width, height int) (b *Buffer, min, max float32, err error) {
	if width <= 0 || height <= 0 || len(raw) != width*height {
		return nil, 0, 0, fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidDimensions, len(raw), width, height)
	}
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, r := range raw {
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}

	b = &Buffer{Width: width, Height: height, Data: make([]float32, len(raw))}
	if max-min < 1e-8 {
		for i, r := range raw {
			b.Data[i] = clamp01(r)
		}
		return b, min, max, nil
	}
	scale := 1 / (max - min)
	for i, r := range raw {
		b.Data[i] = (r - min) * scale
	}
	return b, min, max, nil
}
