package types

// BoxScale is the coordinate range vision models use for bounding boxes:
// 0 is the top/left edge and 1000 the bottom/right edge, regardless of
// the source image resolution.
const BoxScale = 1000

// BoundingBox is an axis-aligned rectangle in normalized 0-1000 coordinates
type BoundingBox struct {
	Ymin float64 `json:"ymin"`
	Xmin float64 `json:"xmin"`
	Ymax float64 `json:"ymax"`
	Xmax float64 `json:"xmax"`
}

// Canonical returns the box with inverted axes swapped. Models occasionally
// emit ymin > ymax or xmin > xmax; downstream math assumes min <= max.
func (b BoundingBox) Canonical() BoundingBox {
	if b.Ymin > b.Ymax {
		b.Ymin, b.Ymax = b.Ymax, b.Ymin
	}
	if b.Xmin > b.Xmax {
		b.Xmin, b.Xmax = b.Xmax, b.Xmin
	}
	return b
}

// Width returns the horizontal extent in normalized units
func (b BoundingBox) Width() float64 {
	return b.Xmax - b.Xmin
}

// Height returns the vertical extent in normalized units
func (b BoundingBox) Height() float64 {
	return b.Ymax - b.Ymin
}

// Center returns the box center in normalized units
func (b BoundingBox) Center() (x, y float64) {
	return (b.Xmin + b.Xmax) / 2, (b.Ymin + b.Ymax) / 2
}

// Degenerate reports whether the box collapses to a point: zero extent on
// both axes. A box with extent on one axis still yields a usable crop.
func (b BoundingBox) Degenerate() bool {
	c := b.Canonical()
	return c.Width() <= 0 && c.Height() <= 0
}

// GarmentDetails is the structured result of one garment detection call
type GarmentDetails struct {
	Box        BoundingBox `json:"box"`
	TextureBox BoundingBox `json:"textureBox"`
	Texture    string      `json:"texture"`
	Color      string      `json:"color"`
}

// CropRect is a square crop region in source-image pixel units. It is not
// clamped to the image: any part may extend beyond the bounds, and the
// renderer fills the uncovered area with the background color.
type CropRect struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// Center returns the crop center in source pixels
func (r CropRect) Center() (x, y float64) {
	return r.X + r.Size/2, r.Y + r.Size/2
}

// Valid reports whether the crop has positive size
func (r CropRect) Valid() bool {
	return r.Size > 0
}
