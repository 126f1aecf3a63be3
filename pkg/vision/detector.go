// Package vision provides a local garment detector that runs without a
// model server. Subject placement comes from smartcrop's edge and saturation
// heuristics and the color descriptor from a dominant-color scan of the
// detected region. It cannot name fabric textures, so Texture stays empty.
package vision

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

// Detector implements client.GarmentDetector entirely in-process
type Detector struct{}

// New creates a local detector
func New() *Detector {
	return &Detector{}
}

// DetectGarment estimates the garment box with smartcrop and names the
// dominant color inside it. The texture patch is a centered sub-square of
// the detected box, standing in for the flattest-fabric patch a vision
// model would pick.
func (d *Detector) DetectGarment(ctx context.Context, img image.Image) (*types.GarmentDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty image")
	}

	side := w
	if h < side {
		side = h
	}

	// FindBestCrop has no context support; run it aside and watch ctx.
	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		analyzer := smartcrop.NewAnalyzer(nfnt.NewDefaultResizer())
		crop, err := analyzer.FindBestCrop(img, side, side)
		resultChan <- cropResult{crop: crop, err: err}
	}()

	var crop image.Rectangle
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return nil, fmt.Errorf("finding best crop: %w", result.err)
		}
		crop = result.crop
	}

	if crop.Empty() {
		crop = bounds
	}

	box := toNormalizedBox(crop, bounds)
	return &types.GarmentDetails{
		Box:        box,
		TextureBox: innerPatch(box),
		Color:      dominantColorName(img, crop),
	}, nil
}

// toNormalizedBox converts a pixel rectangle to 0-1000 coordinates
func toNormalizedBox(r image.Rectangle, bounds image.Rectangle) types.BoundingBox {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	return types.BoundingBox{
		Ymin: float64(r.Min.Y-bounds.Min.Y) / h * types.BoxScale,
		Xmin: float64(r.Min.X-bounds.Min.X) / w * types.BoxScale,
		Ymax: float64(r.Max.Y-bounds.Min.Y) / h * types.BoxScale,
		Xmax: float64(r.Max.X-bounds.Min.X) / w * types.BoxScale,
	}
}

// innerPatch returns a centered square one third the size of the box
func innerPatch(b types.BoundingBox) types.BoundingBox {
	w := b.Width()
	h := b.Height()
	side := math.Min(w, h) / 3
	cx, cy := b.Center()
	return types.BoundingBox{
		Ymin: cy - side/2,
		Xmin: cx - side/2,
		Ymax: cy + side/2,
		Xmax: cx + side/2,
	}
}

// namedColors is the palette the dominant color is snapped to
var namedColors = []struct {
	name    string
	r, g, b int
}{
	{"black", 10, 10, 10},
	{"white", 245, 245, 245},
	{"gray", 128, 128, 128},
	{"red", 200, 30, 40},
	{"orange", 240, 130, 30},
	{"yellow", 230, 210, 60},
	{"green", 40, 140, 70},
	{"teal", 40, 150, 150},
	{"blue", 50, 90, 200},
	{"navy", 25, 35, 80},
	{"purple", 120, 60, 160},
	{"pink", 235, 150, 180},
	{"brown", 120, 80, 50},
	{"beige", 220, 200, 170},
}

// dominantColorName buckets the pixels inside rect into a quantized
// histogram and maps the heaviest bucket to the nearest palette name.
func dominantColorName(img image.Image, rect image.Rectangle) string {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return ""
	}

	// Sample with a stride so large regions stay cheap.
	step := rect.Dx() / 64
	if s := rect.Dy() / 64; s > step {
		step = s
	}
	if step < 1 {
		step = 1
	}

	histogram := make(map[uint32]int)
	for y := rect.Min.Y; y < rect.Max.Y; y += step {
		for x := rect.Min.X; x < rect.Max.X; x += step {
			r, g, b, _ := img.At(x, y).RGBA()

			// Quantize colors to reduce noise
			r = (r >> 8) & 0xf0
			g = (g >> 8) & 0xf0
			b = (b >> 8) & 0xf0

			histogram[(r<<16)|(g<<8)|b]++
		}
	}

	var bestKey uint32
	bestCount := 0
	for key, count := range histogram {
		if count > bestCount {
			bestKey, bestCount = key, count
		}
	}
	if bestCount == 0 {
		return ""
	}

	r := int((bestKey >> 16) & 0xff)
	g := int((bestKey >> 8) & 0xff)
	b := int(bestKey & 0xff)
	return nearestColorName(r, g, b)
}

// nearestColorName returns the palette entry closest in RGB space
func nearestColorName(r, g, b int) string {
	bestName := ""
	bestDist := math.MaxFloat64
	for _, c := range namedColors {
		dr := float64(r - c.r)
		dg := float64(g - c.g)
		db := float64(b - c.b)
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestName, bestDist = c.name, dist
		}
	}
	return bestName
}
