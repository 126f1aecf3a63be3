package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

// stubClient returns a canned reply and records what it was asked
type stubClient struct {
	reply      string
	err        error
	lastModel  string
	lastPrompt string
	lastImgB64 string
}

func (s *stubClient) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	s.lastModel = model
	s.lastPrompt = prompt
	s.lastImgB64 = imgB64
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// createTestImage creates a small solid test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{60, 90, 200, 255})
		}
	}
	return img
}

const validReply = `{
  "box": {"ymin": 100, "xmin": 200, "ymax": 500, "xmax": 600},
  "textureBox": {"ymin": 250, "xmin": 350, "ymax": 350, "xmax": 450},
  "texture": "ribbed knit",
  "color": "navy blue"
}`

func TestDetectGarmentParsesReply(t *testing.T) {
	stub := &stubClient{reply: validReply}
	d := NewDetector(stub, "test-model")

	details, err := d.DetectGarment(context.Background(), createTestImage(64, 64))
	if err != nil {
		t.Fatalf("DetectGarment failed: %v", err)
	}

	wantBox := types.BoundingBox{Ymin: 100, Xmin: 200, Ymax: 500, Xmax: 600}
	if details.Box != wantBox {
		t.Errorf("Expected box %+v, got %+v", wantBox, details.Box)
	}
	if details.Texture != "ribbed knit" {
		t.Errorf("Expected texture %q, got %q", "ribbed knit", details.Texture)
	}
	if details.Color != "navy blue" {
		t.Errorf("Expected color %q, got %q", "navy blue", details.Color)
	}
}

func TestDetectGarmentSendsGarmentPrompt(t *testing.T) {
	stub := &stubClient{reply: validReply}
	d := NewDetector(stub, "test-model")

	if _, err := d.DetectGarment(context.Background(), createTestImage(64, 64)); err != nil {
		t.Fatalf("DetectGarment failed: %v", err)
	}

	if stub.lastModel != "test-model" {
		t.Errorf("Expected model %q, got %q", "test-model", stub.lastModel)
	}
	if stub.lastPrompt != GarmentPrompt {
		t.Error("Expected the garment prompt to be sent")
	}
	if stub.lastImgB64 == "" {
		t.Error("Expected a base64 image payload")
	}
}

func TestDetectGarmentTransportError(t *testing.T) {
	stub := &stubClient{err: errors.New("connection refused")}
	d := NewDetector(stub, "test-model")

	_, err := d.DetectGarment(context.Background(), createTestImage(64, 64))
	if !errors.Is(err, ErrDetectionFailed) {
		t.Errorf("Expected ErrDetectionFailed, got %v", err)
	}
}

func TestParseGarmentDetailsSanitizesReplies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"clean", validReply},
		{"fenced", "```json\n" + validReply + "\n```"},
		{"prose around it", "Sure! Here is the JSON you asked for:\n" + validReply + "\nHope that helps."},
		{"trailing commas", `{"box": {"ymin": 100, "xmin": 200, "ymax": 500, "xmax": 600,}, "texture": "knit", "color": "red",}`},
		{"line comments", "{\n// the garment\n\"box\": {\"ymin\": 100, \"xmin\": 200, \"ymax\": 500, \"xmax\": 600},\n\"color\": \"red\"\n}"},
		{"block comments", `{"box": {"ymin": 100, "xmin": 200, "ymax": 500, "xmax": 600} /* tight */, "color": "red"}`},
	}

	for _, tt := range tests {
		details, err := ParseGarmentDetails(tt.raw)
		if err != nil {
			t.Errorf("%s: ParseGarmentDetails failed: %v", tt.name, err)
			continue
		}
		if details.Box.Ymin != 100 || details.Box.Xmax != 600 {
			t.Errorf("%s: unexpected box %+v", tt.name, details.Box)
		}
	}
}

func TestParseGarmentDetailsFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain prose", "I cannot see any garment in this image."},
		{"empty reply", ""},
		{"broken json", `{"box": {"ymin": }`},
		{"empty object", `{}`},
		{"point boxes only", `{"box": {"ymin": 300, "xmin": 300, "ymax": 300, "xmax": 300}}`},
	}

	for _, tt := range tests {
		_, err := ParseGarmentDetails(tt.raw)
		if !errors.Is(err, ErrDetectionFailed) {
			t.Errorf("%s: expected ErrDetectionFailed, got %v", tt.name, err)
		}
	}
}

func TestParseGarmentDetailsCanonicalizesBoxes(t *testing.T) {
	raw := `{"box": {"ymin": 500, "xmin": 600, "ymax": 100, "xmax": 200}, "color": "red"}`

	details, err := ParseGarmentDetails(raw)
	if err != nil {
		t.Fatalf("ParseGarmentDetails failed: %v", err)
	}

	want := types.BoundingBox{Ymin: 100, Xmin: 200, Ymax: 500, Xmax: 600}
	if details.Box != want {
		t.Errorf("Expected canonical box %+v, got %+v", want, details.Box)
	}
}

func TestParseGarmentDetailsTrimsText(t *testing.T) {
	raw := `{"box": {"ymin": 100, "xmin": 200, "ymax": 500, "xmax": 600}, "texture": "  smooth cotton ", "color": " red "}`

	details, err := ParseGarmentDetails(raw)
	if err != nil {
		t.Fatalf("ParseGarmentDetails failed: %v", err)
	}

	if details.Texture != "smooth cotton" {
		t.Errorf("Expected trimmed texture, got %q", details.Texture)
	}
	if details.Color != "red" {
		t.Errorf("Expected trimmed color, got %q", details.Color)
	}
}

func TestParseGarmentDetailsAcceptsTextureBoxOnly(t *testing.T) {
	raw := `{"textureBox": {"ymin": 400, "xmin": 400, "ymax": 600, "xmax": 600}, "color": "red"}`

	details, err := ParseGarmentDetails(raw)
	if err != nil {
		t.Fatalf("ParseGarmentDetails failed: %v", err)
	}

	if details.TextureBox.Degenerate() {
		t.Error("Expected a usable texture box")
	}
}

func TestTestVisionUsesSimplePrompt(t *testing.T) {
	stub := &stubClient{reply: "A blue square on a plain background."}
	d := NewDetector(stub, "test-model")

	reply, err := d.TestVision(context.Background(), createTestImage(64, 64))
	if err != nil {
		t.Fatalf("TestVision failed: %v", err)
	}

	if reply != "A blue square on a plain background." {
		t.Errorf("Expected the raw reply back, got %q", reply)
	}
	if stub.lastPrompt != SimpleTestPrompt {
		t.Error("Expected the simple test prompt to be sent")
	}
}
