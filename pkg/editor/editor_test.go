package editor

import (
	"math"
	"testing"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestNewStartsIdle(t *testing.T) {
	rect := types.CropRect{X: 180, Y: 80, Size: 440}
	e := New(rect)

	if e.State() != Idle {
		t.Errorf("Expected Idle state, got %v", e.State())
	}
	if e.Draft() != rect {
		t.Errorf("Expected draft %+v, got %+v", rect, e.Draft())
	}
	if e.Committed() != rect {
		t.Errorf("Expected committed %+v, got %+v", rect, e.Committed())
	}
	if e.Scale() != 1 {
		t.Errorf("Expected initial scale 1, got %v", e.Scale())
	}
}

func TestDragScalesScreenDelta(t *testing.T) {
	// Image displayed at half size: scale = 1000 / 500 = 2, so a screen
	// delta of (+10, +10) moves the crop origin by (+20, +20).
	e := New(types.CropRect{X: 100, Y: 100, Size: 200})
	if err := e.SetViewport(1000, 500); err != nil {
		t.Fatalf("SetViewport failed: %v", err)
	}

	e.BeginDrag(Point{X: 50, Y: 50})
	e.MoveTo(Point{X: 60, Y: 60})

	d := e.Draft()
	if !almostEqual(d.X, 120) || !almostEqual(d.Y, 120) {
		t.Errorf("Expected origin (120, 120), got (%v, %v)", d.X, d.Y)
	}
	if d.Size != 200 {
		t.Errorf("Drag must not change size, got %v", d.Size)
	}
}

func TestDragRecomputesFromAnchorNotIncrementally(t *testing.T) {
	e := New(types.CropRect{X: 0, Y: 0, Size: 100})

	e.BeginDrag(Point{X: 0, Y: 0})
	e.MoveTo(Point{X: 5, Y: 5})
	e.MoveTo(Point{X: 30, Y: 10})

	// Position depends only on the latest pointer position, not on the
	// number of intermediate move events.
	d := e.Draft()
	if !almostEqual(d.X, 30) || !almostEqual(d.Y, 10) {
		t.Errorf("Expected origin (30, 10), got (%v, %v)", d.X, d.Y)
	}
}

func TestMoveIgnoredWhileIdle(t *testing.T) {
	rect := types.CropRect{X: 10, Y: 20, Size: 50}
	e := New(rect)

	e.MoveTo(Point{X: 100, Y: 100})

	if e.Draft() != rect {
		t.Errorf("Idle move changed the draft to %+v", e.Draft())
	}
}

func TestEndDragStopsTracking(t *testing.T) {
	e := New(types.CropRect{X: 0, Y: 0, Size: 100})

	e.BeginDrag(Point{X: 0, Y: 0})
	e.MoveTo(Point{X: 10, Y: 0})
	e.EndDrag()

	if e.State() != Idle {
		t.Errorf("Expected Idle after EndDrag, got %v", e.State())
	}

	// Moves after release are ignored.
	d := e.Draft()
	e.MoveTo(Point{X: 500, Y: 500})
	if e.Draft() != d {
		t.Errorf("Move after EndDrag changed the draft to %+v", e.Draft())
	}
}

func TestSecondBeginDragReanchors(t *testing.T) {
	e := New(types.CropRect{X: 0, Y: 0, Size: 100})

	e.BeginDrag(Point{X: 0, Y: 0})
	e.MoveTo(Point{X: 10, Y: 10})
	e.EndDrag()

	e.BeginDrag(Point{X: 100, Y: 100})
	e.MoveTo(Point{X: 105, Y: 100})

	d := e.Draft()
	if !almostEqual(d.X, 15) || !almostEqual(d.Y, 10) {
		t.Errorf("Expected origin (15, 10) after second drag, got (%v, %v)", d.X, d.Y)
	}
}

func TestSetSizeKeepsCenter(t *testing.T) {
	e := New(types.CropRect{X: 180, Y: 80, Size: 440})

	if err := e.SetSize(300); err != nil {
		t.Fatalf("SetSize failed: %v", err)
	}

	d := e.Draft()
	if !almostEqual(d.X, 250) || !almostEqual(d.Y, 150) {
		t.Errorf("Expected origin (250, 150), got (%v, %v)", d.X, d.Y)
	}
	if !almostEqual(d.Size, 300) {
		t.Errorf("Expected size 300, got %v", d.Size)
	}
}

func TestSetSizeRejectsNonPositive(t *testing.T) {
	e := New(types.CropRect{X: 0, Y: 0, Size: 100})

	if err := e.SetSize(0); err == nil {
		t.Error("Expected error for zero size")
	}
	if err := e.SetSize(-10); err == nil {
		t.Error("Expected error for negative size")
	}
	if e.Draft().Size != 100 {
		t.Errorf("Rejected resize changed the draft size to %v", e.Draft().Size)
	}
}

func TestSetSizeDuringDragKeepsMovesConsistent(t *testing.T) {
	e := New(types.CropRect{X: 100, Y: 100, Size: 200})

	e.BeginDrag(Point{X: 0, Y: 0})
	e.MoveTo(Point{X: 10, Y: 0})
	if err := e.SetSize(100); err != nil {
		t.Fatalf("SetSize failed: %v", err)
	}
	e.MoveTo(Point{X: 20, Y: 0})

	// Resize shifted the origin by +50 to keep the center; the drag has
	// moved +20 screen pixels at scale 1 on top of that.
	d := e.Draft()
	if !almostEqual(d.X, 170) || !almostEqual(d.Y, 150) {
		t.Errorf("Expected origin (170, 150), got (%v, %v)", d.X, d.Y)
	}
	if !almostEqual(d.Size, 100) {
		t.Errorf("Expected size 100, got %v", d.Size)
	}
}

func TestCommitPublishesDraft(t *testing.T) {
	e := New(types.CropRect{X: 0, Y: 0, Size: 100})

	e.BeginDrag(Point{X: 0, Y: 0})
	e.MoveTo(Point{X: 25, Y: 35})
	got := e.Commit()

	want := types.CropRect{X: 25, Y: 35, Size: 100}
	if got != want {
		t.Errorf("Commit returned %+v, want %+v", got, want)
	}
	if e.Committed() != want {
		t.Errorf("Committed rect is %+v, want %+v", e.Committed(), want)
	}
	if e.State() != Idle {
		t.Errorf("Expected Idle after Commit, got %v", e.State())
	}
}

func TestCancelRevertsToCommitted(t *testing.T) {
	rect := types.CropRect{X: 10, Y: 20, Size: 100}
	e := New(rect)

	e.BeginDrag(Point{X: 0, Y: 0})
	e.MoveTo(Point{X: 50, Y: 50})
	e.SetSize(40)
	e.Cancel()

	if e.Draft() != rect {
		t.Errorf("Expected draft reverted to %+v, got %+v", rect, e.Draft())
	}
	if e.State() != Idle {
		t.Errorf("Expected Idle after Cancel, got %v", e.State())
	}
}

func TestSetViewportValidation(t *testing.T) {
	e := New(types.CropRect{X: 0, Y: 0, Size: 100})

	if err := e.SetViewport(0, 500); err == nil {
		t.Error("Expected error for zero natural width")
	}
	if err := e.SetViewport(1000, 0); err == nil {
		t.Error("Expected error for zero rendered width")
	}
	if e.Scale() != 1 {
		t.Errorf("Failed SetViewport changed scale to %v", e.Scale())
	}
}

func TestProjectOverlayPercentages(t *testing.T) {
	e := New(types.CropRect{X: 180, Y: 80, Size: 440})

	o := e.Project(1000, 1000)

	if !almostEqual(o.Left, 18) || !almostEqual(o.Top, 8) {
		t.Errorf("Expected overlay at (18%%, 8%%), got (%v%%, %v%%)", o.Left, o.Top)
	}
	if !almostEqual(o.Width, 44) || !almostEqual(o.Height, 44) {
		t.Errorf("Expected overlay 44%% x 44%%, got %v%% x %v%%", o.Width, o.Height)
	}
}

func TestProjectNonSquareImage(t *testing.T) {
	e := New(types.CropRect{X: 200, Y: 100, Size: 400})

	// On a 2000x1000 image the same square covers different percentages
	// per axis.
	o := e.Project(2000, 1000)

	if !almostEqual(o.Width, 20) || !almostEqual(o.Height, 40) {
		t.Errorf("Expected overlay 20%% x 40%%, got %v%% x %v%%", o.Width, o.Height)
	}
}
