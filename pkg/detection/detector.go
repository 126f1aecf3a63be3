// Package detection implements the garment detection boundary: the fixed
// instruction sent to the vision model and the strict parsing of its reply.
package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/wemersonPa/smart-crop/pkg/client"
	"github.com/wemersonPa/smart-crop/pkg/processing"
	"github.com/wemersonPa/smart-crop/pkg/types"
)

// SimpleTestPrompt for checking that the model can see images at all
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// GarmentPrompt is the fixed instruction for garment detection
const GarmentPrompt = `You are a garment analysis assistant.

Return JSON only:
{
  "box": {"ymin": 0, "xmin": 0, "ymax": 0, "xmax": 0},
  "textureBox": {"ymin": 0, "xmin": 0, "ymax": 0, "xmax": 0},
  "texture": "string",
  "color": "string"
}

HARD RULES
- All coordinates are integers normalized to 0-1000, where 0 is the top/left
  edge and 1000 is the bottom/right edge of the image (NOT pixels).
- "box" must tightly bound the entire garment.
- "textureBox" must be a small square patch over the flattest area of the
  chest, away from folds, shadows, seams, prints and logos, so it shows the
  plain fabric.
- "texture" names the fabric texture in 3 words or fewer (e.g. "ribbed knit").
- "color" names the garment's dominant color (e.g. "navy blue").
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ErrDetectionFailed is the single error surfaced for any garment detection
// failure: transport errors, non-JSON replies, malformed JSON and replies
// without a usable box all wrap it. Callers show one retryable message and
// never see the model's raw output.
var ErrDetectionFailed = errors.New("garment detection failed")

// SendOptions controls how the image is downscaled and encoded before it is
// sent to the model.
type SendOptions struct {
	Format  string // jpg or png
	MaxDim  int    // long-side cap in px, 0 keeps the original size
	Quality int    // JPEG quality of the model payload
}

// DefaultSendOptions returns the standard model payload encoding
func DefaultSendOptions() SendOptions {
	return SendOptions{Format: "jpg", MaxDim: 1536, Quality: 85}
}

// Detector runs garment detection through a vision model backend
type Detector struct {
	client    client.VisionClient
	model     string
	send      SendOptions
	processor *processing.Processor
}

// NewDetector creates a detector with the default payload encoding
func NewDetector(c client.VisionClient, model string) *Detector {
	return NewDetectorWithOptions(c, model, DefaultSendOptions())
}

// NewDetectorWithOptions creates a detector with custom payload encoding
func NewDetectorWithOptions(c client.VisionClient, model string, send SendOptions) *Detector {
	return &Detector{
		client:    c,
		model:     model,
		send:      send,
		processor: processing.NewProcessor(),
	}
}

// DetectGarment sends the image to the model and parses its reply.
// Implements client.GarmentDetector.
func (d *Detector) DetectGarment(ctx context.Context, img image.Image) (*types.GarmentDetails, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.send.Format, d.send.MaxDim, d.send.Quality)
	if err != nil {
		return nil, fmt.Errorf("preparing image for model: %w", err)
	}

	raw, err := d.client.Query(ctx, d.model, GarmentPrompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionFailed, err)
	}

	return ParseGarmentDetails(raw)
}

// TestVision asks the model to describe the image in free text, bypassing
// the JSON contract. Useful for checking backend connectivity.
func (d *Detector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.send.Format, d.send.MaxDim, d.send.Quality)
	if err != nil {
		return "", fmt.Errorf("preparing image for model: %w", err)
	}
	return d.client.Query(ctx, d.model, SimpleTestPrompt, imgB64)
}

// ParseGarmentDetails parses a raw model reply into GarmentDetails. The
// reply is sanitized first (code fences, comments, trailing commas), then
// must unmarshal strictly and contain at least one box with extent. Boxes
// come back canonicalized and the text fields trimmed.
func ParseGarmentDetails(raw string) (*types.GarmentDetails, error) {
	raw = sanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("%w: model returned non-JSON response", ErrDetectionFailed)
	}

	var details types.GarmentDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionFailed, err)
	}

	details.Box = details.Box.Canonical()
	details.TextureBox = details.TextureBox.Canonical()
	details.Texture = strings.TrimSpace(details.Texture)
	details.Color = strings.TrimSpace(details.Color)

	if details.Box.Degenerate() && details.TextureBox.Degenerate() {
		return nil, fmt.Errorf("%w: no usable bounding box in response", ErrDetectionFailed)
	}

	return &details, nil
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from
// a model reply, keeping only the outermost JSON object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments
	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")

	// Remove // line/inline comments
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")
	reInline := regexp.MustCompile(`(?m)//.*$`)
	raw = reInline.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
