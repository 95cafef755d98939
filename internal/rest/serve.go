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

package rest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/lapsharp/internal/fits"
	"github.com/mlnoga/lapsharp/internal/laplace"
	"github.com/mlnoga/lapsharp/internal/ops"
	"github.com/mlnoga/lapsharp/internal/ops/sharpen"
	"github.com/mlnoga/lapsharp/web"
)

// Largest accepted upload
const maxUploadBytes = 64 << 20

// Largest accepted panel tile height in pixels
const maxPanelHeight = 4096

// Outputs of the sharpen endpoint
var outputs = []string{"sharpened", "laplacian", "original", "panel"}

// Serves the REST API and the upload page on the given address, e.g. ":8080"
func Serve(addr string, c *ops.Context) error {
	fmt.Fprintf(c.Log, "Serving on %s\n", addr)
	return NewRouter(c).Run(addr)
}

// Creates the router with all endpoints. Logs requests to the context log
func NewRouter(ctx *ops.Context) *gin.Engine {
	s := &server{ctx: ctx}
	r := gin.New()
	r.Use(gin.LoggerWithWriter(ctx.Log), gin.Recovery())
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/", getIndex)
	r.StaticFS("/js", web.JavascriptFS())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/sharpen", s.postSharpen)
			v1.POST("/stats", s.postStats)
		}
	}
	return r
}

type server struct {
	ctx    *ops.Context
	nextID atomic.Int64 // image IDs for log output
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Maps errors caused by the image content to 422, everything else to 400
func abortWithError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, laplace.ErrUnsupportedChannelLayout) || errors.Is(err, laplace.ErrInvalidDimensions) {
		status = http.StatusUnprocessableEntity
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// Query arguments shared by the endpoints
type sharpenArgs struct {
	Gray        string `form:"gray"`
	Norm        string `form:"norm"`
	Form        string `form:"form"`
	Output      string `form:"output"`
	PanelHeight int    `form:"panelHeight"`
	Bits        int    `form:"bits"`
}

func (a *sharpenArgs) setDefaults() {
	if a.Gray == "" {
		a.Gray = fits.GrayLuma.String()
	}
	if a.Norm == "" {
		a.Norm = sharpen.NormAuto
	}
	if a.Output == "" {
		a.Output = outputs[0]
	}
	if a.Bits == 0 {
		a.Bits = 8
	}
}

// Reads the uploaded image and runs the sharpening pipeline on it
func (s *server) sharpenUpload(c *gin.Context) (*sharpenArgs, *laplace.Result, error) {
	var args sharpenArgs
	if err := c.ShouldBindQuery(&args); err != nil {
		return nil, nil, err
	}
	args.setDefaults()
	if args.PanelHeight < 0 || args.PanelHeight > maxPanelHeight {
		return nil, nil, fmt.Errorf("panelHeight %d outside [0,%d]", args.PanelHeight, maxPanelHeight)
	}

	header, err := c.FormFile("image")
	if err != nil {
		return nil, nil, fmt.Errorf("multipart field 'image': %w", err)
	}
	if header.Size > maxUploadBytes {
		return nil, nil, fmt.Errorf("upload of %d bytes exceeds %d", header.Size, maxUploadBytes)
	}
	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	id := int(s.nextID.Add(1))
	f, err := fits.NewImageFromReader(io.LimitReader(file, maxUploadBytes), header.Filename, id, s.ctx.Log)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(s.ctx.Log, "%d: Received %s image %s\n", id, f.DimensionsToString(), header.Filename)

	if f, err = sharpen.NewOpGray(args.Gray).Apply(f, s.ctx); err != nil {
		return nil, nil, err
	}
	if f, err = sharpen.NewOpNormalize(args.Norm).Apply(f, s.ctx); err != nil {
		return nil, nil, err
	}
	res, err := sharpen.NewOpLaplace(args.Form, 0, "", "", 0).Sharpen(f, s.ctx)
	if err != nil {
		return nil, nil, err
	}
	return &args, res, nil
}

// Returns one of the pipeline outputs, or the comparison panel, as PNG
func (s *server) postSharpen(c *gin.Context) {
	args, res, err := s.sharpenUpload(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var b *laplace.Buffer
	switch args.Output {
	case "sharpened":
		b = res.Sharpened
	case "laplacian":
		b = res.Laplacian
	case "original":
		b = res.Original
	case "panel":
	default:
		abortWithError(c, fmt.Errorf("unknown output '%s', want one of %v", args.Output, outputs))
		return
	}

	buf := bytes.Buffer{}
	if b == nil {
		images := []*fits.Image{toImage(res.Original), toImage(res.Laplacian), toImage(res.Sharpened)}
		err = fits.WritePanel(&buf, "png", images, sharpen.PanelTitles, args.PanelHeight)
	} else {
		err = toImage(b).WriteMonoPNG(&buf, 0, 1, 1, args.Bits == 16)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("X-Image-Dimensions", res.Original.DimensionsToString())
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Returns statistics of the normalized input and the Laplacian response as JSON
func (s *server) postStats(c *gin.Context) {
	_, res, err := s.sharpenUpload(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"width":    res.Original.Width,
		"height":   res.Original.Height,
		"analysis": sharpen.NewAnalysis(res),
	})
}

func toImage(b *laplace.Buffer) *fits.Image {
	return fits.NewImageFromNaxisn([]int32{int32(b.Width), int32(b.Height)}, b.Data)
}
