// Package geometry derives square crop rectangles from detection boxes.
package geometry

import (
	"errors"
	"math"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

// DefaultPadding is the margin added around a detected box: 0.10 makes the
// crop square 10% larger than the box's longer side.
const DefaultPadding = 0.10

// ErrNoUsableBox is returned when every candidate box collapses to a point,
// so no crop size can be derived from it.
var ErrNoUsableBox = errors.New("detection returned no usable bounding box")

// SquareCrop maps a normalized 0-1000 box onto an imgW x imgH image and
// returns the padded square crop sharing the box's center. The result is not
// clamped to the image; the renderer backfills anything outside.
func SquareCrop(box types.BoundingBox, imgW, imgH int, padding float64) types.CropRect {
	b := box.Canonical()

	x0 := b.Xmin / types.BoxScale * float64(imgW)
	x1 := b.Xmax / types.BoxScale * float64(imgW)
	y0 := b.Ymin / types.BoxScale * float64(imgH)
	y1 := b.Ymax / types.BoxScale * float64(imgH)

	w := x1 - x0
	h := y1 - y0
	size := math.Max(w, h) * (1 + padding)

	cx := x0 + w/2
	cy := y0 + h/2
	return types.CropRect{X: cx - size/2, Y: cy - size/2, Size: size}
}

// ResizeCentered returns rect resized to newSize with its center unchanged.
func ResizeCentered(rect types.CropRect, newSize float64) types.CropRect {
	shift := (rect.Size - newSize) / 2
	return types.CropRect{X: rect.X + shift, Y: rect.Y + shift, Size: newSize}
}

// CropForDetails derives the automatic crop for a detection result. With
// preferTexture set it crops the flat texture patch when that box is usable,
// falling back to the whole-garment box; otherwise the garment box comes
// first. Returns ErrNoUsableBox when neither box has any extent.
func CropForDetails(d types.GarmentDetails, imgW, imgH int, padding float64, preferTexture bool) (types.CropRect, error) {
	candidates := []types.BoundingBox{d.Box, d.TextureBox}
	if preferTexture {
		candidates = []types.BoundingBox{d.TextureBox, d.Box}
	}

	for _, box := range candidates {
		rect := SquareCrop(box, imgW, imgH, padding)
		if rect.Valid() {
			return rect, nil
		}
	}
	return types.CropRect{}, ErrNoUsableBox
}
