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

package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/lapsharp/internal/qsort"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Maximum number of pixels sampled for location and scale estimation
const MaxSamples = 64 * 1024

// Consistency factor turning the median absolute deviation into a standard deviation for normal data
const madToSigma = 1.4826

// Basic statistics on image data
type Stats struct {
	Width  int32   `json:"width"`  // Line width of the image, for noise estimation
	Pixels int     `json:"pixels"` // Number of values considered
	Min    float32 `json:"min"`
	Max    float32 `json:"max"`
	Mean   float32 `json:"mean"`
	StdDev float32 `json:"stdDev"`

	Location float32 `json:"location"` // Median, estimated from a random sample for large images
	Scale    float32 `json:"scale"`    // Median absolute deviation scaled to sigma, estimated likewise

	Noise float32 `json:"noise"` // Gaussian noise estimate, 0 for images smaller than 3x3
}

// Calculates statistics for a data array of the given line width
func NewStats(data []float32, width int32) *Stats {
	s := &Stats{Width: width, Pixels: len(data)}
	if len(data) == 0 {
		return s
	}

	xs := make([]float64, len(data))
	for i, d := range data {
		xs[i] = float64(d)
	}
	s.Min, s.Max = float32(floats.Min(xs)), float32(floats.Max(xs))
	mean, stdDev := stat.PopMeanStdDev(xs, nil)
	s.Mean, s.StdDev = float32(mean), float32(stdDev)
	xs = nil

	samples := sample(data, MaxSamples)
	if len(samples) == 0 {
		return s
	}
	s.Location = qsort.QSelectMedianFloat32(samples)
	for i, v := range samples {
		samples[i] = float32(math.Abs(float64(v - s.Location)))
	}
	s.Scale = madToSigma * qsort.QSelectMedianFloat32(samples)

	if width > 0 {
		s.Noise = EstimateNoise(data, width)
	}
	return s
}

// Returns a copy of data if it has at most n elements, else n elements drawn at random.
// NaNs are skipped
func sample(data []float32, n int) []float32 {
	samples := make([]float32, 0, min(n, len(data)))
	if len(data) <= n {
		for _, d := range data {
			if d == d {
				samples = append(samples, d)
			}
		}
		return samples
	}
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := 0; i < n; i++ {
		if d := data[rng.Uint32n(max)]; d == d {
			samples = append(samples, d)
		}
	}
	return samples
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g Noise %.4g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale, s.Noise)
}

// Returns the fractions of values at or below lo, and at or above hi
func Saturation(data []float32, lo, hi float32) (low, high float32) {
	if len(data) == 0 {
		return 0, 0
	}
	numLow, numHigh := 0, 0
	for _, d := range data {
		if d <= lo {
			numLow++
		} else if d >= hi {
			numHigh++
		}
	}
	n := float32(len(data))
	return float32(numLow) / n, float32(numHigh) / n
}
