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
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
)

const panelGap = 8      // Pixels between and around panel tiles
const panelCaption = 20 // Height of the caption band above the tiles

// Lays out single channel images with values in [0,1] side by side, each
// with a caption above, and encodes the result as png, jpg or tif.
// If height is positive, tiles are rescaled to that height first.
func WritePanel(w io.Writer, format string, images []*Image, titles []string, height int) error {
	panel, err := NewPanel(images, titles, height)
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return png.Encode(w, panel)
	case "jpg", "jpeg":
		return jpeg.Encode(w, panel, &jpeg.Options{Quality: 95})
	case "tif", "tiff":
		return tiff.Encode(w, panel, &tiff.Options{Compression: tiff.Uncompressed})
	default:
		return fmt.Errorf("unknown panel format '%s'", format)
	}
}

// Writes a panel to the given file, choosing the format from the file name suffix
func WritePanelToFile(fileName string, images []*Image, titles []string, height int) error {
	dot := strings.LastIndexByte(fileName, '.')
	if dot < 0 {
		return fmt.Errorf("no suffix in panel file name '%s'", fileName)
	}
	return writeToFile(fileName, func(w io.Writer) error {
		return WritePanel(w, fileName[dot+1:], images, titles, height)
	})
}

// Renders the panel as an 8-bit grayscale image on white background
func NewPanel(images []*Image, titles []string, height int) (*image.Gray, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images for panel")
	}
	tiles := make([]image.Image, len(images))
	totalWidth, maxHeight := panelGap, 0
	for i, img := range images {
		if err := img.checkMono(); err != nil {
			return nil, err
		}
		tile := scaleToHeight(img.ToGray8(0, 1, 1), height)
		tiles[i] = tile
		totalWidth += tile.Bounds().Dx() + panelGap
		maxHeight = max(maxHeight, tile.Bounds().Dy())
	}

	panel := image.NewGray(image.Rect(0, 0, totalWidth, panelCaption+maxHeight+panelGap))
	draw.Draw(panel, panel.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	x := panelGap
	for i, tile := range tiles {
		b := tile.Bounds()
		draw.Draw(panel, image.Rect(x, panelCaption, x+b.Dx(), panelCaption+b.Dy()), tile, b.Min, draw.Src)
		if i < len(titles) {
			drawCenteredText(panel, face, titles[i], x+b.Dx()/2, panelCaption-5)
		}
		x += b.Dx() + panelGap
	}
	return panel, nil
}

// Rescales img with Catmull-Rom interpolation so that it has the given height, keeping the aspect ratio
func scaleToHeight(img *image.Gray, height int) image.Image {
	b := img.Bounds()
	if height <= 0 || height == b.Dy() {
		return img
	}
	width := max(1, (b.Dx()*height+b.Dy()/2)/b.Dy())
	dst := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Draws a string horizontally centered on cx, with the baseline at y
func drawCenteredText(dst draw.Image, face font.Face, s string, cx, y int) {
	advance := font.MeasureString(face, s)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(cx-advance.Round()/2, y),
	}
	d.DrawString(s)
}
