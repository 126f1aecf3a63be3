// Package smartcrop turns garment photos into square, catalog-ready crops.
//
// A vision model locates the garment and a flat texture patch inside the
// photo, deterministic geometry derives a padded square crop around it, and
// the renderer produces a fixed-size JPEG on a white canvas. The derived
// crop can be adjusted by hand through pkg/editor before rendering.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/wemersonPa/smart-crop"
//	)
//
//	func main() {
//		detector, err := smartcrop.NewDetector(smartcrop.DetectorOptions{
//			Backend: "ollama",
//			URL:     "http://localhost:11434",
//			Model:   "openbmb/minicpm-v4.5",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		sc := smartcrop.New(detector)
//		result, err := sc.ProcessFile(context.Background(), "photo.jpg", "out")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("Saved %s (%s, %s)\n", result.OutputPath,
//			result.Details.Texture, result.Details.Color)
//	}
//
// The package consists of four main components:
//
// 1. Detection (pkg/detection): prompts a vision model and parses its reply
// 2. Geometry (pkg/geometry): derives the padded square crop from boxes
// 3. Render (pkg/render): draws the crop onto the white output canvas
// 4. Editor (pkg/editor): manual drag and resize with screen-scale mapping
//
// Backends:
//
//   - ollama: a local or remote Ollama server
//   - llamacpp: any OpenAI-compatible /v1/chat/completions endpoint
//   - local: a saliency heuristic needing no model server at all
//
// The web UI in cmd/smart-crop-web wires the same pipeline behind upload,
// session and WebSocket editor endpoints.
package smartcrop

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/wemersonPa/smart-crop/internal/utils"
	"github.com/wemersonPa/smart-crop/pkg/client"
	"github.com/wemersonPa/smart-crop/pkg/detection"
	"github.com/wemersonPa/smart-crop/pkg/geometry"
	"github.com/wemersonPa/smart-crop/pkg/llamacpp"
	"github.com/wemersonPa/smart-crop/pkg/ollama"
	"github.com/wemersonPa/smart-crop/pkg/processing"
	"github.com/wemersonPa/smart-crop/pkg/render"
	"github.com/wemersonPa/smart-crop/pkg/types"
	"github.com/wemersonPa/smart-crop/pkg/vision"
)

// Version of the smart-crop library
const Version = "1.0.0"

// Config tunes crop derivation and rendering
type Config struct {
	Padding       float64       // extra margin around the detected box
	PreferTexture bool          // crop around the texture patch when present
	Render        render.Config // output canvas settings
}

// DefaultConfig returns the standard pipeline settings
func DefaultConfig() Config {
	return Config{
		Padding:       geometry.DefaultPadding,
		PreferTexture: true,
	}
}

// SmartCropper ties together loading, detection, crop derivation and
// rendering behind one high-level interface.
type SmartCropper struct {
	proc          *processing.Processor
	detector      client.GarmentDetector
	renderer      *render.Renderer
	padding       float64
	preferTexture bool
}

// New creates a SmartCropper with default configuration
func New(detector client.GarmentDetector) *SmartCropper {
	return NewWithConfig(detector, DefaultConfig())
}

// NewWithConfig creates a SmartCropper with custom configuration
func NewWithConfig(detector client.GarmentDetector, cfg Config) *SmartCropper {
	if cfg.Padding <= 0 {
		cfg.Padding = geometry.DefaultPadding
	}
	return &SmartCropper{
		proc:          processing.NewProcessor(),
		detector:      detector,
		renderer:      render.NewWithConfig(cfg.Render),
		padding:       cfg.Padding,
		preferTexture: cfg.PreferTexture,
	}
}

// DetectorOptions selects and configures a detection backend
type DetectorOptions struct {
	Backend string // "ollama", "llamacpp" or "local"
	URL     string
	Model   string
	APIKey  string
	Send    detection.SendOptions
}

// NewDetector builds a garment detector for the chosen backend. An empty
// backend means ollama. The local backend runs entirely in-process.
func NewDetector(opts DetectorOptions) (client.GarmentDetector, error) {
	if opts.Send == (detection.SendOptions{}) {
		opts.Send = detection.DefaultSendOptions()
	}
	switch opts.Backend {
	case "", "ollama":
		if opts.URL == "" {
			opts.URL = "http://localhost:11434"
		}
		c, err := ollama.NewClient(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return detection.NewDetectorWithOptions(c, opts.Model, opts.Send), nil
	case "llamacpp":
		c, err := llamacpp.NewClientWithKey(opts.URL, opts.APIKey)
		if err != nil {
			return nil, fmt.Errorf("creating llama.cpp client: %w", err)
		}
		return detection.NewDetectorWithOptions(c, opts.Model, opts.Send), nil
	case "local":
		return vision.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want ollama, llamacpp or local)", opts.Backend)
	}
}

// Result bundles everything ProcessFile produced for one input
type Result struct {
	OutputPath string                `json:"outputPath"`
	Details    *types.GarmentDetails `json:"details"`
	Rect       types.CropRect        `json:"rect"`
}

// LoadImage loads an image from a file path
func (sc *SmartCropper) LoadImage(path string) (image.Image, error) {
	return sc.proc.LoadImage(path)
}

// LoadImageSmart loads an image from either a file path or an HTTP URL
func (sc *SmartCropper) LoadImageSmart(source string) (image.Image, error) {
	return sc.proc.LoadImageSmart(source)
}

// Detect asks the backend for the garment's boxes, texture and color
func (sc *SmartCropper) Detect(ctx context.Context, img image.Image) (*types.GarmentDetails, error) {
	return sc.detector.DetectGarment(ctx, img)
}

// DeriveCrop computes the padded square crop for a detection result
func (sc *SmartCropper) DeriveCrop(details types.GarmentDetails, img image.Image) (types.CropRect, error) {
	b := img.Bounds()
	return geometry.CropForDetails(details, b.Dx(), b.Dy(), sc.padding, sc.preferTexture)
}

// Render draws the crop onto the configured output canvas
func (sc *SmartCropper) Render(img image.Image, rect types.CropRect) (*image.NRGBA, error) {
	return sc.renderer.Render(img, rect)
}

// RenderJPEG renders the crop and encodes it as JPEG bytes
func (sc *SmartCropper) RenderJPEG(img image.Image, rect types.CropRect) ([]byte, error) {
	return sc.renderer.RenderJPEG(img, rect)
}

// RenderDataURL renders the crop as a base64 JPEG data URL
func (sc *SmartCropper) RenderDataURL(img image.Image, rect types.CropRect) (string, error) {
	return sc.renderer.RenderDataURL(img, rect)
}

// DrawOverlay annotates a copy of the image with the detection result
func (sc *SmartCropper) DrawOverlay(img image.Image, details types.GarmentDetails, rect types.CropRect) image.Image {
	return sc.proc.DrawDetectionOverlay(img, details, rect)
}

// ProcessFile runs the whole pipeline for one input: load, detect, derive
// the crop, render and save into outputDir. The output filename carries
// the detected color as a suffix.
func (sc *SmartCropper) ProcessFile(ctx context.Context, inputPath, outputDir string) (*Result, error) {
	img, err := sc.LoadImageSmart(inputPath)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}

	details, err := sc.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	rect, err := sc.DeriveCrop(*details, img)
	if err != nil {
		return nil, err
	}

	out, err := sc.Render(img, rect)
	if err != nil {
		return nil, err
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, processing.DownloadName(inputPath, details.Color))
	if err := sc.proc.SaveImage(out, outputPath, "jpg", render.DefaultJPEGQuality, false); err != nil {
		return nil, fmt.Errorf("saving output: %w", err)
	}

	return &Result{OutputPath: outputPath, Details: details, Rect: rect}, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
