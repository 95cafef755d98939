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
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var errEmptyHistogram = errors.New("histogram needs at least two bins and a positive range")

// Calculate histogram of data between min and max into given bins.
// Values outside [min,max] count towards the first or last bin
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if len(bins) == 0 || !(max > min) {
		return
	}
	last := len(bins) - 1
	scale := float32(last) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 || d != d {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Center of the given histogram bin
func binCenter(i int, numBins int, min, max float32) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins-1)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	if len(bins) < 2 {
		return min, 0
	}
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}

	x = binCenter(maxIndex, len(bins), min, max)
	next := maxIndex + 1
	if next >= len(bins) {
		next = maxIndex
	}
	y = 0.5 * float32(bins[maxIndex]+bins[next])
	return x, y
}

// Calculates the mode and the standard deviation of the given histogram,
// by least squares fitting of a normal distribution
func GetModeStdDevFromHistogram(bins []int32, min, max float32) (mode, stdDev float32, err error) {
	if len(bins) < 2 || !(max > min) {
		return 0, 0, errEmptyHistogram
	}

	// Take an educated initial guess: the maximum value of the histogram
	peak, peakVal := GetPeak(bins, min, max)
	sigma0 := 0.05 * float64(max-min)
	alpha0 := float64(peakVal) * sigma0 * math.Sqrt(2*math.Pi)

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{alpha0, float64(peak), sigma0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0

			for i, y := range bins {
				x := float64(binCenter(i, len(bins), min, max))
				xmusig := (x - mu) / sigma
				yPredict := scaler * math.Exp(-0.5*xmusig*xmusig)

				diff := float64(y) - yPredict
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}
