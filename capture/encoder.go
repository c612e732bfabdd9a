package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"go.aimuz.me/glance/live"
)

const (
	DefaultMaxDimension = 1024
	DefaultJPEGQuality  = 60
)

// FrameEncoder downscales and JPEG-encodes screen frames. The scaling
// canvas is reused between frames and reallocated only when the target
// size changes. Not safe for concurrent use.
type FrameEncoder struct {
	maxDim  int
	quality int
	canvas  *image.RGBA
	buf     bytes.Buffer
}

// NewFrameEncoder returns an encoder. Zero values select the defaults.
func NewFrameEncoder(maxDim, quality int) *FrameEncoder {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FrameEncoder{maxDim: maxDim, quality: quality}
}

// TargetSize scales w x h down so neither side exceeds maxDim, keeping the
// aspect ratio.
func TargetSize(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

// Encode scales img into the reusable canvas and encodes it.
func (e *FrameEncoder) Encode(img image.Image) (VideoFrame, error) {
	b := img.Bounds()
	if b.Empty() {
		return VideoFrame{}, fmt.Errorf("empty frame")
	}
	w, h := TargetSize(b.Dx(), b.Dy(), e.maxDim)

	if e.canvas == nil || e.canvas.Bounds().Dx() != w || e.canvas.Bounds().Dy() != h {
		e.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(e.canvas, e.canvas.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(e.canvas, e.canvas.Bounds(), img, b, draw.Src, nil)
	}

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, e.canvas, &jpeg.Options{Quality: e.quality}); err != nil {
		return VideoFrame{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return VideoFrame{
		Data:     bytes.Clone(e.buf.Bytes()),
		MIMEType: live.MIMEImageJPEG,
		Width:    w,
		Height:   h,
	}, nil
}
