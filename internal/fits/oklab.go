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
	"math"
)

// OkLab lightness, from https://bottosson.github.io/posts/oklab/ (MIT License / heavily adapted)

// Returns the OkLab lightness in [0,1] of linear RGB values, clamped into [0,1]
func okLightness(r, g, b float32) float32 {
	r, g, b = clampUnit(r), clampUnit(g), clampUnit(b)

	l := 0.4122214708*r + 0.5363325363*g + 0.0514459929*b
	m := 0.2119034982*r + 0.6806995451*g + 0.1073969566*b
	s := 0.0883024619*r + 0.2817188376*g + 0.6299787005*b

	return 0.2104542553*cbrtf(l) + 0.7936177850*cbrtf(m) - 0.0040720468*cbrtf(s)
}

func clampUnit(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x >= 0 {
		return x
	}
	return 0
}

// cube root function
func cbrtf(x float32) float32 {
	return float32(math.Cbrt(float64(x)))
}
