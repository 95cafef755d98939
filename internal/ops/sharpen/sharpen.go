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
	"fmt"
	"strings"

	"github.com/mlnoga/lapsharp/internal/fits"
	"github.com/mlnoga/lapsharp/internal/laplace"
	"github.com/mlnoga/lapsharp/internal/ops"
)

// Captions of the comparison panel
var PanelTitles = []string{"Original Image", "Laplacian (8-directional)", "Sharpened Image"}

// Reduces multi-channel images to gray, or rejects them
type OpGray struct {
	ops.OpUnaryBase
	Mode string `json:"mode"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpGrayDefault() }) }

func NewOpGrayDefault() *OpGray { return NewOpGray(fits.GrayLuma.String()) }

func NewOpGray(mode string) *OpGray {
	op := &OpGray{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "gray", Active: true}},
		Mode:        mode,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

func (op *OpGray) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	mode, err := fits.ParseGrayMode(op.Mode)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	channels := f.Channels()
	if err = f.ToGray(mode); err != nil {
		return nil, err
	}
	if channels != 1 {
		fmt.Fprintf(c.Log, "%d: Reduced %d channels to gray with mode %s\n", f.ID, channels, mode)
		f.Header.History = append(f.Header.History, "gray mode="+mode.String())
	}
	return f, nil
}

// Normalization of raw samples into [0,1]
const (
	NormDepth = "depth" // divide by the largest value of the source bit depth
	NormRange = "range" // map the observed minimum to 0 and maximum to 1
	NormAuto  = "auto"  // depth for integer sources, range for floating point
)

// Maps raw samples into [0,1]
type OpNormalize struct {
	ops.OpUnaryBase
	Mode string `json:"mode"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNormalizeDefault() }) }

func NewOpNormalizeDefault() *OpNormalize { return NewOpNormalize(NormAuto) }

func NewOpNormalize(mode string) *OpNormalize {
	op := &OpNormalize{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "normalize", Active: true}},
		Mode:        mode,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

func (op *OpNormalize) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if f.Channels() != 1 {
		return nil, fmt.Errorf("%d: %w: %s", f.ID, laplace.ErrUnsupportedChannelLayout, f.DimensionsToString())
	}
	width, height := f.Width(), f.Height()
	max, hasMax := f.MaxValue()

	inRange := hasMax && samplesWithin(f.Data, max)

	mode := strings.ToLower(op.Mode)
	if mode == NormAuto {
		mode = NormRange
		if inRange {
			mode = NormDepth
		}
	}

	var b *laplace.Buffer
	switch mode {
	case NormDepth:
		if !hasMax {
			return nil, fmt.Errorf("%d: %w: BITPIX=%d has no fixed sample range", f.ID, laplace.ErrInvalidMaximum, f.Bitpix)
		}
		if !inRange {
			return nil, fmt.Errorf("%d: %w: samples outside [0,%g]", f.ID, laplace.ErrInvalidMaximum, max)
		}
		if b, err = laplace.Normalize(f.Data, width, height, max); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
		fmt.Fprintf(c.Log, "%d: Normalized %d bit samples by %g\n", f.ID, f.Bitpix, max)
	case NormRange:
		var lo, hi float32
		if b, lo, hi, err = laplace.NormalizeRange(f.Data, width, height); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
		max = hi
		fmt.Fprintf(c.Log, "%d: Normalized sample range [%g,%g]\n", f.ID, lo, hi)
	default:
		return nil, fmt.Errorf("%d: unknown normalization mode '%s'", f.ID, op.Mode)
	}

	res := newImageFromBuffer(f, b)
	res.Header.History = append(res.Header.History, fmt.Sprintf("normalize mode=%s max=%g", mode, max))
	return res, nil
}

// Creates a floating point image holding the buffer, keeping ID, file name and text header entries of f
// Reports whether all samples lie in [0,max]
func samplesWithin(data []float32, max float32) bool {
	for _, v := range data {
		if !(v >= 0 && v <= max) {
			return false
		}
	}
	return true
}

func newImageFromBuffer(f *fits.Image, b *laplace.Buffer) *fits.Image {
	res := fits.NewImageFromPlane(f, b.Data, b.Width, b.Height)
	for k, v := range f.Header.Strings {
		res.Header.Strings[k] = v
	}
	res.Header.History = append(res.Header.History, f.Header.History...)
	return res
}

// Sharpens a normalized image by adding its Laplacian. Replaces the image by the
// clamped sharpened result, optionally saving the clamped Laplacian and a comparison panel
type OpLaplace struct {
	ops.OpUnaryBase
	Form        string `json:"form"`
	Threads     int    `json:"threads"`     // 0 uses all available threads
	Laplacian   string `json:"laplacian"`   // file pattern for the clamped Laplacian, blank to skip
	Panel       string `json:"panel"`       // file pattern for the comparison panel, blank to skip
	PanelHeight int    `json:"panelHeight"` // tile height of the panel, 0 keeps the image height
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpLaplaceDefault() }) }

func NewOpLaplaceDefault() *OpLaplace { return NewOpLaplace(laplace.FormNeighbors.String(), 0, "", "", 0) }

func NewOpLaplace(form string, threads int, laplacian, panel string, panelHeight int) *OpLaplace {
	op := &OpLaplace{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "laplace", Active: true}},
		Form:        form,
		Threads:     threads,
		Laplacian:   laplacian,
		Panel:       panel,
		PanelHeight: panelHeight,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Returns the convolver configured by this operator
func (op *OpLaplace) Convolver(c *ops.Context) (laplace.Convolver, error) {
	form, err := laplace.ParseForm(op.Form)
	if err != nil {
		return laplace.Convolver{}, err
	}
	threads := op.Threads
	if threads <= 0 {
		threads = c.MaxThreads
	}
	return laplace.Convolver{Form: form, Threads: threads}, nil
}

// Runs the sharpening pipeline on a normalized single channel image
func (op *OpLaplace) Sharpen(f *fits.Image, c *ops.Context) (*laplace.Result, error) {
	if f.Channels() != 1 {
		return nil, fmt.Errorf("%d: %w: %s", f.ID, laplace.ErrUnsupportedChannelLayout, f.DimensionsToString())
	}
	conv, err := op.Convolver(c)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	src, err := laplace.NewBufferFromData(f.Data, f.Width(), f.Height())
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}

	// padded copy, response, clamped Laplacian, sum and sharpened image
	workMB := int(int64(len(f.Data)) * 4 * 5 / 1024 / 1024)
	if c.WorkMemoryMB > 0 && workMB > c.WorkMemoryMB {
		fmt.Fprintf(c.Log, "%d: Warning: working set of %d MB exceeds %d MB, 70%% of physical memory\n", f.ID, workMB, c.WorkMemoryMB)
	}

	res, err := conv.Sharpen(src)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	return res, nil
}

func (op *OpLaplace) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	res, err := op.Sharpen(f, c)
	if err != nil {
		return nil, err
	}
	conv, _ := op.Convolver(c)
	fmt.Fprintf(c.Log, "%d: Sharpened %s image with %s Laplacian on %d threads\n", f.ID, f.DimensionsToString(), conv.Form, conv.Threads)
	fmt.Fprintf(c.Log, "%d: %s\n", f.ID, strings.ReplaceAll(NewAnalysis(res).String(), "\n", fmt.Sprintf("\n%d: ", f.ID)))

	sharpened := newImageFromBuffer(f, res.Sharpened)
	sharpened.Header.History = append(sharpened.Header.History, "laplace form="+conv.Form.String())

	if op.Laplacian != "" {
		lap := newImageFromBuffer(f, res.Laplacian)
		if _, err := ops.NewOpSave(op.Laplacian).Apply(lap, c); err != nil {
			return nil, err
		}
	}
	if op.Panel != "" {
		fileName := ops.NewOpSave(op.Panel).FileName(f.ID)
		if err := c.CheckPath(fileName); err != nil {
			return nil, err
		}
		fmt.Fprintf(c.Log, "%d: Writing comparison panel to %s\n", f.ID, fileName)
		images := []*fits.Image{f, newImageFromBuffer(f, res.Laplacian), sharpened}
		if err := fits.WritePanelToFile(fileName, images, PanelTitles, op.PanelHeight); err != nil {
			return nil, fmt.Errorf("%d: Error writing panel to %s: %w", f.ID, fileName, err)
		}
	}
	return sharpened, nil
}

// Creates the default sharpening pipeline: load, gray reduction, normalization,
// sharpening and saving. Nil steps are omitted
func NewOpSharpenSequence(load *ops.OpLoad, gray *OpGray, normalize *OpNormalize, saveNorm *ops.OpSave,
	lap *OpLaplace, save *ops.OpSave, saveJPG *ops.OpSave) *ops.OpSequence {
	seq := ops.NewOpSequence()
	for _, step := range []ops.Operator{load, gray, normalize, saveNorm, lap, save, saveJPG} {
		if !isNil(step) {
			seq.Append(step)
		}
	}
	return seq
}

// Detects typed nil pointers wrapped in the interface
func isNil(op ops.Operator) bool {
	switch o := op.(type) {
	case *ops.OpLoad:
		return o == nil
	case *OpGray:
		return o == nil
	case *OpNormalize:
		return o == nil
	case *ops.OpSave:
		return o == nil
	case *OpLaplace:
		return o == nil
	}
	return op == nil
}
