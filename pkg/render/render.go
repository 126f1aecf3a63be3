// Package render draws a crop region of a source image onto a fixed-size
// square canvas and encodes the result as JPEG.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

const (
	// DefaultOutputSize is the edge length of the output canvas in pixels.
	DefaultOutputSize = 1024

	// DefaultJPEGQuality matches a browser-side 0.95 encoder setting.
	DefaultJPEGQuality = 95
)

// Config holds the output policy knobs
type Config struct {
	OutputSize  int
	JPEGQuality int
	Background  color.Color
}

// DefaultConfig returns the standard 1024px white-background policy
func DefaultConfig() Config {
	return Config{
		OutputSize:  DefaultOutputSize,
		JPEGQuality: DefaultJPEGQuality,
		Background:  color.White,
	}
}

// Renderer produces output images for crop rectangles
type Renderer struct {
	cfg Config
}

// New creates a renderer with the default configuration
func New() *Renderer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a renderer with a custom configuration. Zero-value
// fields fall back to the defaults.
func NewWithConfig(cfg Config) *Renderer {
	if cfg.OutputSize <= 0 {
		cfg.OutputSize = DefaultOutputSize
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	if cfg.Background == nil {
		cfg.Background = color.White
	}
	return &Renderer{cfg: cfg}
}

// Render draws the crop region of src onto a freshly allocated square canvas.
// The region may extend beyond the source bounds on any side; everything the
// source does not cover stays the background color, and transparent source
// pixels blend over it so alpha never shows through as black. The same source
// and rect always produce an identical canvas.
func (r *Renderer) Render(src image.Image, rect types.CropRect) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source image")
	}
	if !rect.Valid() {
		return nil, fmt.Errorf("crop size must be positive, got %v", rect.Size)
	}

	out := r.cfg.OutputSize
	canvas := imaging.New(out, out, r.cfg.Background)

	sb := src.Bounds()

	// Visible part of the crop square, in source pixels.
	vx0 := math.Max(rect.X, float64(sb.Min.X))
	vy0 := math.Max(rect.Y, float64(sb.Min.Y))
	vx1 := math.Min(rect.X+rect.Size, float64(sb.Max.X))
	vy1 := math.Min(rect.Y+rect.Size, float64(sb.Max.Y))
	if vx1 <= vx0 || vy1 <= vy0 {
		// Wholly outside the source: a plain background canvas.
		return canvas, nil
	}

	// Where the visible part lands on the canvas.
	scale := float64(out) / rect.Size
	dx0 := int(math.Round((vx0 - rect.X) * scale))
	dy0 := int(math.Round((vy0 - rect.Y) * scale))
	dx1 := int(math.Round((vx1 - rect.X) * scale))
	dy1 := int(math.Round((vy1 - rect.Y) * scale))
	if dx1 <= dx0 || dy1 <= dy0 {
		// Sliver too thin to land on a destination pixel.
		return canvas, nil
	}

	srcRect := image.Rect(
		int(math.Round(vx0)), int(math.Round(vy0)),
		int(math.Round(vx1)), int(math.Round(vy1)),
	).Intersect(sb)
	if srcRect.Empty() {
		return canvas, nil
	}

	region := imaging.Crop(src, srcRect)
	region = imaging.Resize(region, dx1-dx0, dy1-dy0, imaging.Lanczos)
	return imaging.Overlay(canvas, region, image.Pt(dx0, dy0), 1.0), nil
}

// EncodeJPEG serializes an image at the configured quality
func (r *Renderer) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderJPEG renders the crop and encodes it in one step
func (r *Renderer) RenderJPEG(src image.Image, rect types.CropRect) ([]byte, error) {
	img, err := r.Render(src, rect)
	if err != nil {
		return nil, err
	}
	return r.EncodeJPEG(img)
}

// RenderDataURL renders the crop as a self-contained data: URL
func (r *Renderer) RenderDataURL(src image.Image, rect types.CropRect) (string, error) {
	b, err := r.RenderJPEG(src, rect)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// OutputSize returns the configured canvas edge length
func (r *Renderer) OutputSize() int {
	return r.cfg.OutputSize
}
