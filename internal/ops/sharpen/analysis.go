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

package sharpen

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/lapsharp/internal/laplace"
	"github.com/mlnoga/lapsharp/internal/stats"
)

var errFitDiverged = errors.New("histogram fit diverged")

// Number of histogram bins for the Laplacian response
const responseBins = 256

// Statistics of a sharpening run
type Analysis struct {
	Input    *stats.Stats `json:"input"`    // normalized original
	Response *stats.Stats `json:"response"` // signed, unclamped Laplacian

	ResponseMode   float32 `json:"responseMode"`   // mode of a normal distribution fitted to the response histogram
	ResponseSigma  float32 `json:"responseSigma"`  // standard deviation of that fit
	FitError       string  `json:"fitError,omitempty"`
	SaturationLow  float32 `json:"saturationLow"`  // fraction of sharpened pixels clipped to 0
	SaturationHigh float32 `json:"saturationHigh"` // fraction of sharpened pixels clipped to 1
}

// Analyzes the outputs of a sharpening run
func NewAnalysis(r *laplace.Result) *Analysis {
	width := int32(r.Original.Width)
	a := &Analysis{
		Input:    stats.NewStats(r.Original.Data, width),
		Response: stats.NewStats(r.Response.Data, width),
	}

	if a.Response.Max > a.Response.Min {
		bins := make([]int32, responseBins)
		stats.Histogram(r.Response.Data, a.Response.Min, a.Response.Max, bins)
		mode, sigma, err := stats.GetModeStdDevFromHistogram(bins, a.Response.Min, a.Response.Max)
		if err == nil && (!isFinite(mode) || !isFinite(sigma)) {
			err = errFitDiverged
		}
		if err != nil {
			a.FitError = err.Error()
		} else {
			a.ResponseMode, a.ResponseSigma = mode, sigma
		}
	} else {
		a.ResponseMode = a.Response.Min
	}

	// the unclamped sum tells which pixels the clamp saturated
	sum, err := laplace.Composite(r.Original, r.Response)
	if err == nil {
		a.SaturationLow, a.SaturationHigh = stats.Saturation(sum.Data, 0, 1)
	}
	return a
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func (a *Analysis) String() string {
	fit := fmt.Sprintf("mode %.4g sigma %.4g", a.ResponseMode, a.ResponseSigma)
	if a.FitError != "" {
		fit = "fit failed: " + a.FitError
	}
	return fmt.Sprintf("input %v\nresponse %v\nresponse histogram %s\nsaturated %.3f%% low %.3f%% high",
		a.Input, a.Response, fit, 100*a.SaturationLow, 100*a.SaturationHigh)
}
