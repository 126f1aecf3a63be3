// Package editor implements the manual crop adjustment state machine: a
// draft rectangle dragged and resized in screen coordinates against the last
// committed crop.
package editor

import (
	"fmt"

	"github.com/wemersonPa/smart-crop/pkg/geometry"
	"github.com/wemersonPa/smart-crop/pkg/types"
)

// Point is a pointer position in screen pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State enumerates the pointer tracking states
type State int

const (
	// Idle means no drag is in progress; move events are ignored.
	Idle State = iota
	// Dragging means the pointer is held down on the crop overlay.
	Dragging
)

// Editor tracks one draft crop rectangle. The displayed image is usually
// smaller than the source, so pointer deltas are multiplied by the
// screen-to-image scale before they move the rectangle. Not safe for
// concurrent use; callers hold their own lock.
type Editor struct {
	committed types.CropRect
	draft     types.CropRect
	scale     float64
	state     State
	start     Point          // pointer position when the drag began
	anchor    types.CropRect // draft rect when the drag began
}

// New returns an idle editor whose draft and committed rects both equal rect.
// The scale starts at 1 until SetViewport reports the real display size.
func New(rect types.CropRect) *Editor {
	return &Editor{committed: rect, draft: rect, scale: 1}
}

// SetViewport updates the screen-to-image scale from the image's natural
// pixel width and its rendered on-screen width.
func (e *Editor) SetViewport(naturalWidth, renderedWidth float64) error {
	if naturalWidth <= 0 || renderedWidth <= 0 {
		return fmt.Errorf("viewport widths must be positive, got natural=%v rendered=%v", naturalWidth, renderedWidth)
	}
	e.scale = naturalWidth / renderedWidth
	return nil
}

// Scale returns the current screen-to-image scale factor
func (e *Editor) Scale() float64 {
	return e.scale
}

// State returns the current tracking state
func (e *Editor) State() State {
	return e.state
}

// Draft returns the in-progress crop rectangle
func (e *Editor) Draft() types.CropRect {
	return e.draft
}

// Committed returns the last committed crop rectangle
func (e *Editor) Committed() types.CropRect {
	return e.committed
}

// BeginDrag enters the dragging state, capturing the pointer position and
// the current draft rect as anchors. A second BeginDrag re-anchors.
func (e *Editor) BeginDrag(p Point) {
	e.state = Dragging
	e.start = p
	e.anchor = e.draft
}

// MoveTo recomputes the draft origin from the anchors: the screen delta
// since BeginDrag, scaled into image pixels, applied to the anchored origin.
// Ignored while idle, so stray move events cannot displace the rect.
func (e *Editor) MoveTo(p Point) {
	if e.state != Dragging {
		return
	}
	e.draft.X = e.anchor.X + (p.X-e.start.X)*e.scale
	e.draft.Y = e.anchor.Y + (p.Y-e.start.Y)*e.scale
}

// EndDrag leaves the dragging state. The pointer may be released anywhere on
// the page, not just over the overlay.
func (e *Editor) EndDrag() {
	e.state = Idle
}

// SetSize resizes the draft around its center, slider-style. During a drag
// the anchor shifts by the same amount so subsequent moves stay consistent.
func (e *Editor) SetSize(size float64) error {
	if size <= 0 {
		return fmt.Errorf("size must be positive, got %v", size)
	}
	shift := (e.draft.Size - size) / 2
	e.draft = geometry.ResizeCentered(e.draft, size)
	if e.state == Dragging {
		e.anchor.X += shift
		e.anchor.Y += shift
		e.anchor.Size = size
	}
	return nil
}

// Commit publishes the draft as the committed rect and returns it. Any drag
// in progress ends.
func (e *Editor) Commit() types.CropRect {
	e.state = Idle
	e.committed = e.draft
	return e.committed
}

// Cancel discards all edits, reverting the draft to the committed rect
func (e *Editor) Cancel() {
	e.state = Idle
	e.draft = e.committed
}

// Overlay is the draft rect projected into display space, as percentages of
// the rendered image box. Percentages survive viewport resizes, so the
// client never recomputes them on its own.
type Overlay struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Project derives the overlay placement for an image of natural size w x h
func (e *Editor) Project(naturalWidth, naturalHeight float64) Overlay {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return Overlay{}
	}
	d := e.draft
	return Overlay{
		Left:   d.X / naturalWidth * 100,
		Top:    d.Y / naturalHeight * 100,
		Width:  d.Size / naturalWidth * 100,
		Height: d.Size / naturalHeight * 100,
	}
}
