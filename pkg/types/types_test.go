package types

import "testing"

func TestBoundingBoxCanonical(t *testing.T) {
	box := BoundingBox{Ymin: 500, Xmin: 600, Ymax: 100, Xmax: 200}

	c := box.Canonical()

	if c.Ymin != 100 || c.Ymax != 500 {
		t.Errorf("Expected y range 100..500, got %v..%v", c.Ymin, c.Ymax)
	}
	if c.Xmin != 200 || c.Xmax != 600 {
		t.Errorf("Expected x range 200..600, got %v..%v", c.Xmin, c.Xmax)
	}

	// Already-canonical boxes pass through unchanged
	if got := c.Canonical(); got != c {
		t.Errorf("Canonical changed an already-canonical box: %+v", got)
	}
}

func TestBoundingBoxCenter(t *testing.T) {
	box := BoundingBox{Ymin: 100, Xmin: 200, Ymax: 500, Xmax: 600}

	cx, cy := box.Center()
	if cx != 400 {
		t.Errorf("Expected center x 400, got %v", cx)
	}
	if cy != 300 {
		t.Errorf("Expected center y 300, got %v", cy)
	}
}

func TestBoundingBoxDegenerate(t *testing.T) {
	tests := []struct {
		name string
		box  BoundingBox
		want bool
	}{
		{"zero value", BoundingBox{}, true},
		{"point", BoundingBox{Ymin: 300, Xmin: 300, Ymax: 300, Xmax: 300}, true},
		{"zero width only", BoundingBox{Ymin: 100, Xmin: 300, Ymax: 500, Xmax: 300}, false},
		{"zero height only", BoundingBox{Ymin: 300, Xmin: 100, Ymax: 300, Xmax: 500}, false},
		{"normal", BoundingBox{Ymin: 100, Xmin: 200, Ymax: 500, Xmax: 600}, false},
		{"inverted but real", BoundingBox{Ymin: 500, Xmin: 600, Ymax: 100, Xmax: 200}, false},
	}

	for _, tt := range tests {
		if got := tt.box.Degenerate(); got != tt.want {
			t.Errorf("%s: Degenerate() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCropRectCenter(t *testing.T) {
	rect := CropRect{X: 180, Y: 80, Size: 440}

	cx, cy := rect.Center()
	if cx != 400 {
		t.Errorf("Expected center x 400, got %v", cx)
	}
	if cy != 300 {
		t.Errorf("Expected center y 300, got %v", cy)
	}
}
