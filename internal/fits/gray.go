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
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/lapsharp/internal/laplace"
)

// Reduction of a three channel image to gray
type GrayMode int

const (
	GrayReject GrayMode = iota // fail with laplace.ErrUnsupportedChannelLayout
	GrayLuma                   // ITU-R BT.601 luma, as most image libraries load grayscale
	GrayRec709                 // ITU-R BT.709 luma
	GrayMean                   // unweighted channel mean
	GrayLStar                  // CIE L* lightness of sRGB encoded samples
	GrayOkLab                  // OkLab lightness of linear samples, e.g. from FITS
)

var grayModeNames = []string{"reject", "luma", "rec709", "mean", "lstar", "oklab"}

func (m GrayMode) String() string {
	if m < 0 || int(m) >= len(grayModeNames) {
		return fmt.Sprintf("GrayMode(%d)", int(m))
	}
	return grayModeNames[m]
}

func ParseGrayMode(s string) (GrayMode, error) {
	for i, name := range grayModeNames {
		if strings.EqualFold(s, name) {
			return GrayMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gray mode '%s', want one of %s", s, strings.Join(grayModeNames, ", "))
}

// Reduces the image to a single channel in place. Single channel images are left untouched
func (f *Image) ToGray(mode GrayMode) error {
	channels := f.Channels()
	if channels == 1 {
		return nil
	}
	if channels != 3 || mode == GrayReject {
		return fmt.Errorf("%d: %w: %d channels of %s", f.ID, laplace.ErrUnsupportedChannelLayout, channels, f.DimensionsToString())
	}

	rs, gs, bs := f.Plane(0), f.Plane(1), f.Plane(2)
	gray := make([]float32, len(rs))
	switch mode {
	case GrayLuma:
		weightedSum(gray, rs, gs, bs, 0.299, 0.587, 0.114)
	case GrayRec709:
		weightedSum(gray, rs, gs, bs, 0.2126, 0.7152, 0.0722)
	case GrayMean:
		weightedSum(gray, rs, gs, bs, 1.0/3, 1.0/3, 1.0/3)
	case GrayLStar:
		f.lightness(gray, rs, gs, bs, lStar)
	case GrayOkLab:
		f.lightness(gray, rs, gs, bs, okLightness)
	default:
		return fmt.Errorf("%d: unknown gray mode %d", f.ID, int(mode))
	}

	f.Naxisn = f.Naxisn[:2]
	f.Pixels = int32(len(gray))
	f.Data = gray
	f.Stats = nil
	return nil
}

func weightedSum(dest, rs, gs, bs []float32, wr, wg, wb float32) {
	for i := range dest {
		dest[i] = wr*rs[i] + wg*gs[i] + wb*bs[i]
	}
}

// CIE L* in [0,1] of sRGB values in [0,1]
func lStar(r, g, b float32) float32 {
	l, _, _ := colorful.Color{R: float64(r), G: float64(g), B: float64(b)}.Lab()
	return float32(l)
}

// Applies a lightness function on [0,1] to all pixels, scaling back to the
// sample range so that depth normalization still applies
func (f *Image) lightness(dest, rs, gs, bs []float32, light func(r, g, b float32) float32) {
	scale, ok := f.MaxValue()
	if !ok {
		scale = 0
		for _, plane := range [][]float32{rs, gs, bs} {
			for _, v := range plane {
				if v > scale {
					scale = v
				}
			}
		}
		if scale <= 0 {
			scale = 1
		}
	}
	inv := 1 / scale
	for i := range dest {
		dest[i] = light(rs[i]*inv, gs[i]*inv, bs[i]*inv) * scale
	}
}
