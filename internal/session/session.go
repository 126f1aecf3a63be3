// Package session owns per-upload state for the cropping UI: one source
// image, its detection result, the crop editor and the rendered output.
// Every upload or reset bumps a per-session attempt counter; work finishing
// under an older attempt is discarded, so a slow model reply can never
// overwrite the state of a newer upload.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/wemersonPa/smart-crop/pkg/editor"
	"github.com/wemersonPa/smart-crop/pkg/processing"
	"github.com/wemersonPa/smart-crop/pkg/types"
)

var (
	// ErrNotFound is returned for unknown or expired session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrStaleAttempt is returned when a detection finished after a newer
	// upload or reset superseded it. Its result has been discarded.
	ErrStaleAttempt = errors.New("attempt superseded by a newer upload or reset")

	// ErrNoImage is returned for operations that need an uploaded image.
	ErrNoImage = errors.New("no image uploaded")

	// ErrBadImage is returned when the uploaded payload cannot be decoded.
	ErrBadImage = errors.New("image could not be decoded")
)

// Session is the mutable state of one browser tab's workflow
type Session struct {
	ID string

	mu        sync.Mutex
	attempt   uint64
	cancel    context.CancelFunc // aborts the in-flight detection, if any
	img       image.Image
	width     int
	height    int
	filename  string
	details   *types.GarmentDetails
	editor    *editor.Editor
	jpeg      []byte
	dataURL   string
	lastTouch time.Time
}

// Snapshot is the JSON view of a session sent to clients
type Snapshot struct {
	SessionID    string                `json:"sessionId"`
	Filename     string                `json:"filename,omitempty"`
	Width        int                   `json:"width"`
	Height       int                   `json:"height"`
	Details      *types.GarmentDetails `json:"details,omitempty"`
	Rect         types.CropRect        `json:"rect"`
	Committed    types.CropRect        `json:"committed"`
	Overlay      editor.Overlay        `json:"overlay"`
	Dragging     bool                  `json:"dragging"`
	Output       string                `json:"output,omitempty"`
	DownloadName string                `json:"downloadName,omitempty"`
}

// beginAttempt starts a new attempt: it bumps the counter, cancels any
// in-flight detection and installs the new image, wiping derived state.
// The returned context carries the detection timeout.
func (s *Session) beginAttempt(parent context.Context, timeout time.Duration, img image.Image, filename string) (uint64, context.Context, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt++
	if s.cancel != nil {
		s.cancel()
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	s.cancel = cancel

	b := img.Bounds()
	s.img = img
	s.width = b.Dx()
	s.height = b.Dy()
	s.filename = filename
	s.details = nil
	s.editor = nil
	s.jpeg = nil
	s.dataURL = ""
	s.lastTouch = time.Now()

	return s.attempt, ctx, cancel
}

// completeAttempt publishes the attempt's results, unless a newer attempt
// has superseded it in the meantime.
func (s *Session) completeAttempt(attempt uint64, details *types.GarmentDetails, rect types.CropRect, jpegBytes []byte, dataURL string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt != attempt {
		return nil, ErrStaleAttempt
	}

	s.details = details
	s.editor = editor.New(rect)
	s.jpeg = jpegBytes
	s.dataURL = dataURL
	s.lastTouch = time.Now()
	return s.snapshotLocked(), nil
}

// isCurrent reports whether the attempt is still the latest one
func (s *Session) isCurrent(attempt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt == attempt
}

// snapshotLocked builds the client view; callers hold s.mu
func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		SessionID: s.ID,
		Filename:  s.filename,
		Width:     s.width,
		Height:    s.height,
		Details:   s.details,
		Output:    s.dataURL,
	}
	if s.editor != nil {
		snap.Rect = s.editor.Draft()
		snap.Committed = s.editor.Committed()
		snap.Overlay = s.editor.Project(float64(s.width), float64(s.height))
		snap.Dragging = s.editor.State() == editor.Dragging
	}
	if s.details != nil {
		snap.DownloadName = processing.DownloadName(s.filename, s.details.Color)
	}
	return snap
}
