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

package ops

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/lapsharp/internal/fits"
)

var errPathNotAllowed = errors.New("file name outside current directory tree")

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false // relative paths only
	}
	if strings.Contains(p, "..") {
		return false // no going outside the tree
	}
	return true
}

func (c *Context) CheckPath(p string) error {
	if c.RestrictPaths && !isPathAllowed(p) {
		return fmt.Errorf("%w: '%s'", errPathNotAllowed, p)
	}
	return nil
}

// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Takes no inputs
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := c.CheckPath(op.FileName); err != nil {
		return nil, err
	}
	out := func() (f *fits.Image, err error) {
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Ignores any f argument provided
func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	f, err = fits.NewImageFromFile(op.FileName, op.ID, c.Log)
	if err != nil {
		return nil, err
	}
	s := f.UpdateStats()

	warning := ""
	if s.Max-s.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %d bits from %s%s\n%d: %v\n",
		f.ID, f.DimensionsToString(), f.Bitpix, f.FileName, warning, f.ID, s)
	return f, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Takes one input, produces one output (the materialized but unchanged input).
// The format is chosen by file name suffix. Non-FITS formats map [Min,Max] with Gamma
type OpSave struct {
	OpUnaryBase
	FilePattern string  `json:"filePattern"`
	Min         float32 `json:"min"`
	Max         float32 `json:"max"`
	Gamma       float32 `json:"gamma"`
	Quality     int     `json:"quality"`    // for JPEG
	SixteenBit  bool    `json:"sixteenBit"` // for PNG
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
		Min:         0,
		Max:         1,
		Gamma:       1,
		Quality:     95,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Expands %d in the file pattern with the image ID
func (op *OpSave) FileName(id int) string {
	if strings.Contains(op.FilePattern, "%d") {
		return fmt.Sprintf(op.FilePattern, id)
	}
	return op.FilePattern
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FileName(f.ID)
	if err := c.CheckPath(fileName); err != nil {
		return nil, err
	}
	if err := op.Save(f, fileName, c); err != nil {
		return nil, fmt.Errorf("%d: Error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Writes f to fileName, choosing the format by suffix
func (op *OpSave) Save(f *fits.Image, fileName string, c *Context) error {
	fnLower := strings.ToLower(fileName)
	gzipped := false
	for _, suffix := range []string{".gz", ".gzip"} {
		if strings.HasSuffix(fnLower, suffix) {
			fnLower, gzipped = strings.TrimSuffix(fnLower, suffix), true
		}
	}

	switch filepath.Ext(fnLower) {
	case ".fits", ".fit", ".fts":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		if !gzipped {
			return f.WriteFile(fileName)
		}
		return writeGzip(fileName, f.Write)
	case ".jpeg", ".jpg":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono JPEG to %s\n", f.ID, f.DimensionsToString(), fileName)
		return f.WriteMonoJPGToFile(fileName, op.Min, op.Max, op.Gamma, op.Quality)
	case ".tiff", ".tif":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono 16-bit TIFF to %s\n", f.ID, f.DimensionsToString(), fileName)
		return f.WriteMonoTIFF16ToFile(fileName, op.Min, op.Max, op.Gamma)
	case ".png":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono PNG to %s\n", f.ID, f.DimensionsToString(), fileName)
		return f.WriteMonoPNGToFile(fileName, op.Min, op.Max, op.Gamma, op.SixteenBit)
	default:
		return fmt.Errorf("unknown suffix in '%s'", fileName)
	}
}

func writeGzip(fileName string, write func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(file)
	if err = write(zw); err == nil {
		err = zw.Close()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}
