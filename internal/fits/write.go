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
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// Writes an in-memory image to a FITS file with given filename.
// Creates/overwrites the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	return writeToFile(fileName, fits.Write)
}

// Writes an in-memory image as 32-bit floating point FITS to an io.Writer.
// String and history entries of the header are carried over, numeric keys are not
func (fits *Image) Write(w io.Writer) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt32(&sb, "NAXIS", int32(len(fits.Naxisn)), "[1] Number of axis")
	for i, naxis := range fits.Naxisn {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), naxis, "[1] Axis size")
	}
	writeFloat32(&sb, "BZERO", 0, "[1] Zero offset")
	writeFloat32(&sb, "BSCALE", 1, "[1] Value scaler")

	keys := make([]string, 0, len(fits.Header.Strings))
	for k := range fits.Header.Strings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeString(&sb, k, fits.Header.Strings[k], "")
	}
	for _, h := range fits.Header.History {
		writeHistory(&sb, h)
	}
	writeEnd(&sb)
	padBlock(&sb, sb.Len(), ' ')

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(sb.String()); err != nil {
		return err
	}

	// Write payload data, replacing NaNs with zeros for compatibility
	if err := writeFloat32Array(bw, fits.Data, true); err != nil {
		return err
	}
	padding := strings.Builder{}
	padBlock(&padding, 4*len(fits.Data), 0)
	if _, err := bw.WriteString(padding.String()); err != nil {
		return err
	}
	return bw.Flush()
}

// Pads a unit of the given length to the FITS block size
func padBlock(sb *strings.Builder, length int, pad byte) {
	if rest := length % fitsBlockSize; rest > 0 {
		sb.WriteString(strings.Repeat(string(pad), fitsBlockSize-rest))
	}
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	writeRecord(w, key, fmt.Sprintf("%20s", v), comment)
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	writeRecord(w, key, fmt.Sprintf("%20d", value), comment)
}

// Writes a FITS header float32 value
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	s := fmt.Sprintf("%g", value)
	if !strings.ContainsAny(s, ".eE") {
		s += "." // keep floats distinguishable from ints
	}
	writeRecord(w, key, fmt.Sprintf("%20s", s), comment)
}

// Writes a FITS header string value, truncated to fit a single record
func writeString(w io.Writer, key, value, comment string) {
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
		for strings.HasSuffix(value, "'") && !strings.HasSuffix(value, "''") {
			value = value[:len(value)-1]
		}
	}
	writeRecord(w, key, fmt.Sprintf("'%-8s'", value), comment)
}

// Writes a fixed-width header record of 80 characters
func writeRecord(w io.Writer, key, value, comment string) {
	if len(key) > 8 {
		key = key[:8]
	}
	line := fmt.Sprintf("%-8s= %s", key, value)
	if comment != "" && len(line)+3 < HeaderLineSize {
		line += " / " + comment
	}
	if len(line) > HeaderLineSize {
		line = line[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a FITS history record
func writeHistory(w io.Writer, text string) {
	if len(text) > HeaderLineSize-8 {
		text = text[:HeaderLineSize-8]
	}
	fmt.Fprintf(w, "HISTORY %-72s", text)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "%-80s", "END")
}

// Writes FITS binary body data in network byte order.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := min(len(data)-block, bufLen>>2)
		for offset, d := range data[block : block+size] {
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		if _, err := w.Write(buf[:(size << 2)]); err != nil {
			return err
		}
	}
	return nil
}
