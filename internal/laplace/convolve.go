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
	"strings"

	"golang.org/x/sync/errgroup"
)

// 8-neighborhood Laplacian. Symmetric, so correlation equals convolution
var kernel = [3][3]float32{
	{-1, -1, -1},
	{-1, 8, -1},
	{-1, -1, -1},
}

// Returns a copy of the Laplacian kernel, indexed [row][column]
func Kernel() [3][3]float32 {
	return kernel
}

// Sum of the eight neighbors as a balanced tree. Uniform inputs v sum to
// exactly 8v, so flat regions yield a Laplacian of exactly zero.
func neighborSum(a, b, c, d, e, f, g, h float32) float32 {
	return ((a + b) + (c + d)) + ((e + f) + (g + h))
}

// Computes the Laplacian for output rows [y0,y1) from a replicate-padded buffer,
// as 8*center minus the sum of the eight neighbors
func laplacianRows(dst, padded *Buffer, y0, y1 int) {
	pw := padded.Width
	for y := y0; y < y1; y++ {
		top := padded.Data[y*pw : (y+1)*pw]
		mid := padded.Data[(y+1)*pw : (y+2)*pw]
		bot := padded.Data[(y+2)*pw : (y+3)*pw]
		out := dst.Row(y)
		for x := range out {
			n := neighborSum(top[x], top[x+1], top[x+2], mid[x], mid[x+2], bot[x], bot[x+1], bot[x+2])
			out[x] = 8*mid[x+1] - n
		}
	}
}

// Computes the Laplacian for output rows [y0,y1) from a replicate-padded buffer,
// as the full weighted sum of the nine kernel taps in row-major order
func laplacianKernelRows(dst, padded *Buffer, y0, y1 int) {
	for y := y0; y < y1; y++ {
		out := dst.Row(y)
		for x := range out {
			sum := float32(0)
			for ky := 0; ky < 3; ky++ {
				row := padded.Data[(y+ky)*padded.Width:]
				for kx := 0; kx < 3; kx++ {
					sum += kernel[ky][kx] * row[x+kx]
				}
			}
			out[x] = sum
		}
	}
}

// Computes the Laplacian for output rows [y0,y1) directly from the unpadded
// source, clamping neighbor coordinates into the image. Bit-identical to
// laplacianRows on the padded source.
func laplacianReplicateRows(dst, src *Buffer, y0, y1 int) {
	for y := y0; y < y1; y++ {
		out := dst.Row(y)
		for x := range out {
			n := neighborSum(
				src.Replicate(x-1, y-1), src.Replicate(x, y-1), src.Replicate(x+1, y-1),
				src.Replicate(x-1, y), src.Replicate(x+1, y),
				src.Replicate(x-1, y+1), src.Replicate(x, y+1), src.Replicate(x+1, y+1),
			)
			out[x] = 8*src.At(x, y) - n
		}
	}
}

// Allocates the unpadded output buffer for a padded input
func newUnpadded(padded *Buffer) (*Buffer, error) {
	if err := padded.validate(); err != nil {
		return nil, err
	}
	if padded.Width < 3 || padded.Height < 3 {
		return nil, fmt.Errorf("%w: padded buffer %dx%d smaller than 3x3", ErrInvalidDimensions, padded.Width, padded.Height)
	}
	return NewBuffer(padded.Width-2, padded.Height-2)
}

// Returns the Laplacian of the image embedded in a replicate-padded buffer,
// using the neighbor sum formulation. Output is two pixels smaller in each
// dimension than the input, i.e. the size of the original image.
func Laplacian(padded *Buffer) (*Buffer, error) {
	dst, err := newUnpadded(padded)
	if err != nil {
		return nil, err
	}
	laplacianRows(dst, padded, 0, dst.Height)
	return dst, nil
}

// Returns the Laplacian of the image embedded in a replicate-padded buffer,
// using the full 3x3 kernel formulation
func LaplacianKernel(padded *Buffer) (*Buffer, error) {
	dst, err := newUnpadded(padded)
	if err != nil {
		return nil, err
	}
	laplacianKernelRows(dst, padded, 0, dst.Height)
	return dst, nil
}

// Returns the Laplacian of src without materializing a padded buffer
func LaplacianReplicate(src *Buffer) (*Buffer, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	dst := src.newLike()
	laplacianReplicateRows(dst, src, 0, dst.Height)
	return dst, nil
}

// Formulation used to evaluate the Laplacian
type Form int

const (
	FormNeighbors Form = iota // 8*center minus neighbor sum on a padded buffer
	FormKernel                // 9-tap weighted sum on a padded buffer
	FormReplicate             // neighbor sum with clamped coordinates, no padded buffer
)

var formNames = []string{"neighbors", "kernel", "replicate"}

func (f Form) String() string {
	if f < 0 || int(f) >= len(formNames) {
		return fmt.Sprintf("Form(%d)", int(f))
	}
	return formNames[f]
}

// Parses a formulation name. Empty string selects FormNeighbors
func ParseForm(s string) (Form, error) {
	if s == "" {
		return FormNeighbors, nil
	}
	for i, name := range formNames {
		if strings.EqualFold(s, name) {
			return Form(i), nil
		}
	}
	return 0, fmt.Errorf("unknown Laplacian form '%s', want one of %s", s, strings.Join(formNames, ", "))
}

// Applies the Laplacian to whole images, optionally splitting rows into bands
// processed by up to Threads goroutines. Each band writes disjoint output rows.
type Convolver struct {
	Form    Form
	Threads int
}

// Returns the Laplacian response of src, same size as src and unclamped
func (c Convolver) Apply(src *Buffer) (*Buffer, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	dst := src.newLike()

	switch c.Form {
	case FormNeighbors, FormKernel:
		padded, err := Pad(src)
		if err != nil {
			return nil, err
		}
		rows := laplacianRows
		if c.Form == FormKernel {
			rows = laplacianKernelRows
		}
		forEachBand(dst.Height, c.Threads, func(y0, y1 int) { rows(dst, padded, y0, y1) })
	case FormReplicate:
		forEachBand(dst.Height, c.Threads, func(y0, y1 int) { laplacianReplicateRows(dst, src, y0, y1) })
	default:
		return nil, fmt.Errorf("unknown Laplacian form %d", int(c.Form))
	}
	return dst, nil
}

// Calls fn for bands of rows covering [0,height). Splits into 8 bands per
// thread for load balancing, and runs at most threads bands concurrently.
func forEachBand(height, threads int, fn func(y0, y1 int)) {
	if threads <= 1 || height < 2 {
		fn(0, height)
		return
	}
	numBands := min(8*threads, height)
	bandSize := (height + numBands - 1) / numBands

	var g errgroup.Group
	g.SetLimit(threads)
	for lower := 0; lower < height; lower += bandSize {
		y0, y1 := lower, min(lower+bandSize, height)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	g.Wait()
}
