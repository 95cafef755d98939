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
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

var fitsMagic = []byte("SIMPLE  =")
var gzipMagic = []byte{0x1f, 0x8b}

// Reads an image from the file with the given name. The format is detected
// from the content: FITS, gzipped FITS, or any registered image format
func NewImageFromFile(fileName string, id int, logWriter io.Writer) (*Image, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewImageFromReader(f, fileName, id, logWriter)
}

// Reads an image from the given reader, detecting the format from the content
func NewImageFromReader(r io.Reader, fileName string, id int, logWriter io.Writer) (*Image, error) {
	i := NewImage()
	i.ID, i.FileName = id, fileName

	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(fitsMagic))
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%d: %w", id, err)
		}
		defer zr.Close()
		return NewImageFromReader(zr, fileName, id, logWriter)
	case bytes.Equal(magic, fitsMagic):
		return i, i.Read(br, logWriter)
	default:
		return i, i.Decode(br)
	}
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

// Reads a FITS primary header and data unit
func (fits *Image) Read(r io.Reader, logWriter io.Writer) (err error) {
	if err = fits.Header.read(r, fits.ID, logWriter); err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", fits.ID)
	}
	delete(fits.Header.Bools, "SIMPLE")

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 1 || naxis > 3 {
		return fmt.Errorf("%d: unsupported NAXIS=%d, want 1 to 3 axes", fits.ID, naxis)
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = 1
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = fits.PopHeaderInt32(name); err != nil {
			return err
		}
		if nai <= 0 {
			return fmt.Errorf("%d: invalid %s=%d", fits.ID, name, nai)
		}
		fits.Naxisn[i-1] = nai
		fits.Pixels *= nai
	}

	// optional scaling
	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}
	return fits.readData(r, logWriter)
}

// Decoder for a single big-endian sample of a given BITPIX
type sampleDecoder struct {
	size   int
	decode func(b []byte) float32
}

var sampleDecoders = map[int32]sampleDecoder{
	8:   {1, func(b []byte) float32 { return float32(b[0]) }},
	16:  {2, func(b []byte) float32 { return float32(int16(binary.BigEndian.Uint16(b))) }},
	32:  {4, func(b []byte) float32 { return float32(int32(binary.BigEndian.Uint32(b))) }},
	64:  {8, func(b []byte) float32 { return float32(int64(binary.BigEndian.Uint64(b))) }},
	-32: {4, func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) }},
	-64: {8, func(b []byte) float32 { return float32(math.Float64frombits(binary.BigEndian.Uint64(b))) }},
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Read image data, convert to float32 and apply Bzero and Bscale, which are reset afterwards.
// Unsigned 16 bit data stored with BZERO=32768 thus becomes [0,65535]
func (fits *Image) readData(r io.Reader, logWriter io.Writer) error {
	dec, ok := sampleDecoders[fits.Bitpix]
	if !ok {
		return fmt.Errorf("%d: Unknown BITPIX value %d", fits.ID, fits.Bitpix)
	}
	if fits.Bitpix == 32 || fits.Bitpix == 64 || fits.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX=%d to float32 values\n", fits.ID, fits.Bitpix)
	}

	fits.Data = make([]float32, int(fits.Pixels))
	buf := make([]byte, (bufLen/dec.size)*dec.size)
	for dataIndex := 0; dataIndex < len(fits.Data); {
		n := min((len(fits.Data)-dataIndex)*dec.size, len(buf))
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("%d: reading data: %w", fits.ID, err)
		}
		for i := 0; i < n; i += dec.size {
			fits.Data[dataIndex] = dec.decode(buf[i:i+dec.size])*fits.Bscale + fits.Bzero
			dataIndex++
		}
	}
	switch {
	case fits.Bitpix == 8 && fits.Bzero == 0 && fits.Bscale == 1:
		// unsigned bytes
	case fits.Bitpix > 8 && fits.Bscale == 1 && float64(fits.Bzero) == math.Exp2(float64(fits.Bitpix-1)):
		// unsigned by convention, e.g. BZERO=32768 keeps MaxValue at 65535
	case fits.Bitpix > 0:
		fits.Bitpix = -32 // signed or arbitrarily scaled data has no fixed [0,max] range
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	return nil
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("%d: reading header: %w", id, err)
		}
		h.Length += int32(fitsBlockSize)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning: Cannot parse '%s', ignoring\n", id, string(line))
			} else {
				h.readLine(reParser.SubexpNames(), subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		value := string(subValues[i])
		switch c := subNames[i][0]; c {
		case 'E':
			h.End = true
		case 'H':
			h.History = append(h.History, strings.TrimRight(value, " "))
		case 'C':
			h.Comments = append(h.Comments, strings.TrimRight(value, " "))
		case 'k':
			key = value
		case 'b':
			h.Bools[key] = value == "T"
		case 'i':
			if val, err := strconv.ParseInt(value, 10, 32); err == nil {
				h.Ints[key] = int32(val)
			}
		case 'f':
			if val, err := strconv.ParseFloat(value, 32); err == nil {
				h.Floats[key] = float32(val)
			}
		case 's':
			h.Strings[key] = strings.TrimRight(value, " ")
		case 'd':
			h.Dates[key] = value
		case 'c':
			// value comments are dropped
		default:
			fmt.Fprintf(logWriter, "%d:%d: Warning: Unknown token '%c'\n", id, lineNo, c)
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"

	histLine := "HISTORY" + white + "(?P<H>.*)"
	commLine := "COMMENT" + white + "(?P<C>.*)"
	endLine := "(?P<E>END)" + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>[^']*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"
	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + "=" + whiteOpt + val + whiteOpt + commOpt

	return regexp.MustCompile("^(?:" + white + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$")
}
