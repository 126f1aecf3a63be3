package smartcrop

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wemersonPa/smart-crop/pkg/detection"
	"github.com/wemersonPa/smart-crop/pkg/render"
	"github.com/wemersonPa/smart-crop/pkg/types"
	"github.com/wemersonPa/smart-crop/pkg/vision"
)

// createTestImage creates a simple test image with a garment-like bright
// region in the center
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{200, 30, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

type stubDetector struct {
	details types.GarmentDetails
	err     error
}

func (d *stubDetector) DetectGarment(_ context.Context, _ image.Image) (*types.GarmentDetails, error) {
	if d.err != nil {
		return nil, d.err
	}
	det := d.details
	return &det, nil
}

func testDetector() *stubDetector {
	return &stubDetector{details: types.GarmentDetails{
		Box:     types.BoundingBox{Ymin: 100, Xmin: 200, Ymax: 500, Xmax: 600},
		Texture: "plain weave",
		Color:   "navy",
	}}
}

func TestNew(t *testing.T) {
	sc := New(testDetector())
	if sc == nil {
		t.Fatal("New() returned nil")
	}
	if sc.proc == nil {
		t.Error("processor component is nil")
	}
	if sc.detector == nil {
		t.Error("detector component is nil")
	}
	if sc.renderer == nil {
		t.Error("renderer component is nil")
	}
	if sc.padding != 0.10 {
		t.Errorf("default padding = %v, want 0.10", sc.padding)
	}
}

func TestNewWithConfig(t *testing.T) {
	sc := NewWithConfig(testDetector(), Config{
		Padding:       0.25,
		PreferTexture: true,
		Render:        render.Config{OutputSize: 64},
	})
	if sc.padding != 0.25 {
		t.Errorf("padding = %v, want 0.25", sc.padding)
	}
	if sc.renderer.OutputSize() != 64 {
		t.Errorf("output size = %d, want 64", sc.renderer.OutputSize())
	}

	// zero padding falls back to the default
	sc = NewWithConfig(testDetector(), Config{})
	if sc.padding != 0.10 {
		t.Errorf("padding = %v, want default 0.10", sc.padding)
	}
}

func TestNewDetectorBackends(t *testing.T) {
	det, err := NewDetector(DetectorOptions{Backend: "local"})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	if _, ok := det.(*vision.Detector); !ok {
		t.Errorf("local backend returned %T", det)
	}

	det, err = NewDetector(DetectorOptions{Backend: "ollama", URL: "http://localhost:11434", Model: "test"})
	if err != nil {
		t.Fatalf("ollama backend: %v", err)
	}
	if _, ok := det.(*detection.Detector); !ok {
		t.Errorf("ollama backend returned %T", det)
	}

	det, err = NewDetector(DetectorOptions{Backend: "llamacpp", URL: "http://localhost:8080", Model: "test"})
	if err != nil {
		t.Fatalf("llamacpp backend: %v", err)
	}
	if _, ok := det.(*detection.Detector); !ok {
		t.Errorf("llamacpp backend returned %T", det)
	}

	if _, err := NewDetector(DetectorOptions{Backend: "carrier-pigeon"}); err == nil {
		t.Error("unknown backend did not fail")
	}
}

func TestDetectAndDeriveCrop(t *testing.T) {
	sc := New(testDetector())
	img := createTestImage(1000, 1000)

	details, err := sc.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if details.Color != "navy" {
		t.Errorf("Color = %q, want navy", details.Color)
	}

	rect, err := sc.DeriveCrop(*details, img)
	if err != nil {
		t.Fatalf("DeriveCrop failed: %v", err)
	}
	want := types.CropRect{X: 180, Y: 80, Size: 440}
	if rect != want {
		t.Errorf("DeriveCrop = %+v, want %+v", rect, want)
	}
}

func TestRenderDataURL(t *testing.T) {
	sc := NewWithConfig(testDetector(), Config{Render: render.Config{OutputSize: 64}})
	img := createTestImage(400, 400)

	url, err := sc.RenderDataURL(img, types.CropRect{X: 100, Y: 100, Size: 200})
	if err != nil {
		t.Fatalf("RenderDataURL failed: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("data URL prefix wrong: %.40q", url)
	}
}

func TestDrawOverlay(t *testing.T) {
	sc := New(testDetector())
	img := createTestImage(400, 400)

	out := sc.DrawOverlay(img, testDetector().details, types.CropRect{X: 50, Y: 50, Size: 200})
	if out == nil {
		t.Fatal("DrawOverlay returned nil")
	}
	if out.Bounds() != img.Bounds() {
		t.Errorf("overlay bounds = %v, want %v", out.Bounds(), img.Bounds())
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "photo.png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(1000, 1000)); err != nil {
		t.Fatalf("encoding input: %v", err)
	}
	if err := os.WriteFile(inputPath, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}

	sc := NewWithConfig(testDetector(), Config{Render: render.Config{OutputSize: 64}})
	outDir := filepath.Join(dir, "out")

	result, err := sc.ProcessFile(context.Background(), inputPath, outDir)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.OutputPath != filepath.Join(outDir, "photo_navy.jpg") {
		t.Errorf("OutputPath = %q", result.OutputPath)
	}
	if result.Rect != (types.CropRect{X: 180, Y: 80, Size: 440}) {
		t.Errorf("Rect = %+v", result.Rect)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a decodable JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("output dimensions = %dx%d, want 64x64", cfg.Width, cfg.Height)
	}
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	if version == "" {
		t.Error("Version should not be empty")
	}

	if version != Version {
		t.Errorf("GetVersion() returned %s, expected %s", version, Version)
	}
}

func BenchmarkProcessPipeline(b *testing.B) {
	sc := NewWithConfig(testDetector(), Config{Render: render.Config{OutputSize: 256}})
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		details, err := sc.Detect(context.Background(), img)
		if err != nil {
			b.Fatal(err)
		}
		rect, err := sc.DeriveCrop(*details, img)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := sc.Render(img, rect); err != nil {
			b.Fatal(err)
		}
	}
}
