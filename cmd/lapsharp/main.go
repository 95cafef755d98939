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

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	ls "github.com/mlnoga/lapsharp/internal"
	"github.com/mlnoga/lapsharp/internal/ops"
	"github.com/mlnoga/lapsharp/internal/ops/sharpen"
	"github.com/mlnoga/lapsharp/internal/rest"
	"github.com/mlnoga/lapsharp/internal/stats"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.fits", "save sharpened output to `file`. Suffix selects FITS, JPEG, TIFF or PNG")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var lap = flag.String("lap", "", "save clamped Laplacian to `file`, e.g. `lap.png`")
var norm = flag.String("norm", "", "save normalized original to `file`, e.g. `norm.fits`")
var panel = flag.String("panel", "", "save side by side comparison of original, Laplacian and sharpened image to `file`, e.g. `panel.png`")
var panelHeight = flag.Int("panelHeight", 0, "rescale comparison panel tiles to this height in pixels, 0=keep")

var gray = flag.String("gray", "luma", "reduce color input to gray with mode luma, rec709, mean, lstar or oklab; reject=fail on color input")
var normMode = flag.String("normMode", sharpen.NormAuto, "normalize by bit depth (depth), by sample range (range), or auto")
var form = flag.String("form", "neighbors", "Laplacian formulation: neighbors, kernel or replicate")
var threads = flag.Int("threads", 0, "number of threads for the convolution, 0=all available")

var config = flag.String("config", "", "load operator sequence from JSON `file` instead of flags")
var dumpConfig = flag.Bool("dumpConfig", false, "print operator sequence as JSON and exit")

var addr = flag.String("addr", ":8080", "listen on this address when serving")
var chroot = flag.String("chroot", "", "chroot into this directory before serving (requires root)")
var setuid = flag.Int("setuid", -1, "change to this user id before serving, -1=keep")

func main() {
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Lapsharp Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (sharpen|stats|serve|legal|version|help) [img.fits]

Commands:
  sharpen Sharpen a single grayscale image with its 8-neighbor Laplacian
  stats   Show statistics of the image and its Laplacian response
  serve   Serve the REST API and an upload page
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	*log = autoSuffix(*log, ".log")
	if *log != "" {
		if err := ls.LogAlsoToFile(*log); err != nil {
			ls.LogFatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}
	defer ls.LogSync()

	// Also auto-select JPEG output target
	*jpg = autoSuffix(*jpg, ".jpg")

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			ls.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			ls.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	c := ops.NewContext(ls.LogWriter)
	var err error
	switch args[0] {
	case "sharpen":
		err = cmdSharpen(args[1:], c)

	case "stats":
		err = cmdStats(args[1:], c)

	case "serve":
		c.RestrictPaths = true
		if err = rest.MakeSandbox(*chroot, *setuid, c.Log); err == nil {
			err = rest.Serve(*addr, c)
		}

	case "legal":
		ls.LogPrint(legal)

	case "version":
		ls.LogPrintf("Version %s\n%s\n", version, c)

	case "help", "?":
		flag.Usage()

	default:
		ls.LogPrintf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	ls.LogPrintf("\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			ls.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			ls.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		ls.LogSync()
		ls.LogFatalf("Error: %s\n", err.Error())
	}
}

// Replaces %auto by the output file name with the given suffix
func autoSuffix(value, suffix string) string {
	if value != "%auto" {
		return value
	}
	if *out == "" {
		return ""
	}
	return strings.TrimSuffix(*out, filepath.Ext(*out)) + suffix
}

var errNoInput = errors.New("need exactly one input file")

// Returns the sharpening sequence given by -config, or built from the flags
func sharpenSequence(args []string) (*ops.OpSequence, error) {
	if *config != "" {
		b, err := os.ReadFile(*config)
		if err != nil {
			return nil, err
		}
		seq := ops.NewOpSequence()
		if err := json.Unmarshal(b, seq); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", *config, err)
		}
		if len(args) == 1 {
			load, ok := seq.Find("load").(*ops.OpLoad)
			if !ok {
				return nil, fmt.Errorf("no load step in %s", *config)
			}
			load.FileName = args[0]
		}
		return seq, nil
	}

	fileName := ""
	if len(args) == 1 {
		fileName = args[0]
	} else if !*dumpConfig {
		return nil, errNoInput
	}
	saveJPG := ops.NewOpSave(*jpg)
	saveNorm := ops.NewOpSave(*norm)
	return sharpen.NewOpSharpenSequence(
		ops.NewOpLoad(0, fileName),
		sharpen.NewOpGray(*gray),
		sharpen.NewOpNormalize(*normMode),
		saveNorm,
		sharpen.NewOpLaplace(*form, *threads, *lap, *panel, *panelHeight),
		ops.NewOpSave(*out),
		saveJPG,
	), nil
}

func cmdSharpen(args []string, c *ops.Context) error {
	if len(args) > 1 {
		return errNoInput
	}
	seq, err := sharpenSequence(args)
	if err != nil {
		return err
	}

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	if *dumpConfig {
		fmt.Println(string(m))
		os.Exit(0)
	}
	fmt.Fprintf(c.Log, "Running on %s\nSharpening with these settings:\n%s\n", c, string(m))

	_, err = seq.Run(nil, c)
	return err
}

// Number of histogram bins for the input peak
const inputBins = 256

func cmdStats(args []string, c *ops.Context) error {
	if len(args) != 1 {
		return errNoInput
	}
	f, err := ops.NewOpLoad(0, args[0]).Apply(nil, c)
	if err != nil {
		return err
	}
	if f, err = sharpen.NewOpGray(*gray).Apply(f, c); err != nil {
		return err
	}
	if f, err = sharpen.NewOpNormalize(*normMode).Apply(f, c); err != nil {
		return err
	}
	res, err := sharpen.NewOpLaplace(*form, *threads, "", "", 0).Sharpen(f, c)
	if err != nil {
		return err
	}

	bins := make([]int32, inputBins)
	stats.Histogram(res.Original.Data, 0, 1, bins)
	peak, count := stats.GetPeak(bins, 0, 1)
	fmt.Fprintf(c.Log, "%d: Input histogram peak at %.4g with %.0f pixels\n", f.ID, peak, count)
	fmt.Fprintf(c.Log, "%d: %s\n", f.ID, strings.ReplaceAll(sharpen.NewAnalysis(res).String(), "\n", fmt.Sprintf("\n%d: ", f.ID)))
	return nil
}
