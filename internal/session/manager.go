package session

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/wemersonPa/smart-crop/pkg/client"
	"github.com/wemersonPa/smart-crop/pkg/detection"
	"github.com/wemersonPa/smart-crop/pkg/editor"
	"github.com/wemersonPa/smart-crop/pkg/geometry"
	"github.com/wemersonPa/smart-crop/pkg/processing"
	"github.com/wemersonPa/smart-crop/pkg/render"
	"github.com/wemersonPa/smart-crop/pkg/types"
)

// Options controls pipeline behavior and resource limits
type Options struct {
	Padding        float64       // extra margin around the detected box, fraction of the longer side
	PreferTexture  bool          // crop around the texture patch when the model returns one
	Timeout        time.Duration // limit for one detection call
	MaxConcurrent  int64         // detections allowed in flight at once
	RequestsPerSec float64       // detection rate limit, 0 disables
	Burst          int           // rate limiter burst, minimum 1
	TTL            time.Duration // idle time before a session is evicted
}

// DefaultOptions returns limits suitable for a single local model instance
func DefaultOptions() Options {
	return Options{
		Padding:       geometry.DefaultPadding,
		PreferTexture: true,
		Timeout:       120 * time.Second,
		MaxConcurrent: 2,
		Burst:         1,
		TTL:           30 * time.Minute,
	}
}

// Manager owns all sessions and runs the detect-crop-render pipeline.
// Detection calls are gated by a semaphore and an optional rate limiter
// so a burst of uploads cannot overload the model server.
type Manager struct {
	detector client.GarmentDetector
	renderer *render.Renderer
	proc     *processing.Processor
	opts     Options
	sem      *semaphore.Weighted
	limiter  *rate.Limiter

	mu       sync.RWMutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager starts a manager and its idle-session janitor.
// Call Close to stop the janitor.
func NewManager(detector client.GarmentDetector, renderer *render.Renderer, opts Options) *Manager {
	if opts.Padding <= 0 {
		opts.Padding = geometry.DefaultPadding
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if renderer == nil {
		renderer = render.New()
	}

	m := &Manager{
		detector: detector,
		renderer: renderer,
		proc:     processing.NewProcessor(),
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	if opts.RequestsPerSec > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst)
	}
	go m.evictLoop()
	return m
}

// Close stops the janitor. Sessions stay usable until evicted by hand.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Upload runs the full pipeline for raw image bytes: decode, detect,
// derive the crop and render the first output. An empty id creates a new
// session; uploading into an existing one supersedes its prior attempt.
func (m *Manager) Upload(ctx context.Context, id, filename string, data []byte) (*Snapshot, error) {
	img, err := m.proc.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrBadImage)
	}

	sess, err := m.getOrCreate(id)
	if err != nil {
		return nil, err
	}

	attempt, detCtx, cancel := sess.beginAttempt(ctx, m.opts.Timeout, img, filename)
	defer cancel()

	if m.limiter != nil {
		if err := m.limiter.Wait(detCtx); err != nil {
			return nil, m.attemptErr(sess, attempt, fmt.Errorf("%w: %v", detection.ErrDetectionFailed, err))
		}
	}
	if err := m.sem.Acquire(detCtx, 1); err != nil {
		return nil, m.attemptErr(sess, attempt, fmt.Errorf("%w: %v", detection.ErrDetectionFailed, err))
	}
	details, err := m.detector.DetectGarment(detCtx, img)
	m.sem.Release(1)
	if err != nil {
		return nil, m.attemptErr(sess, attempt, err)
	}

	rect, err := geometry.CropForDetails(*details, b.Dx(), b.Dy(), m.opts.Padding, m.opts.PreferTexture)
	if err != nil {
		return nil, m.attemptErr(sess, attempt, fmt.Errorf("%w: %v", detection.ErrDetectionFailed, err))
	}

	jpegBytes, dataURL, err := m.renderOutput(img, rect)
	if err != nil {
		return nil, m.attemptErr(sess, attempt, err)
	}

	return sess.completeAttempt(attempt, details, rect, jpegBytes, dataURL)
}

// UploadDataURL accepts a base64 data URL instead of raw bytes
func (m *Manager) UploadDataURL(ctx context.Context, id, filename, dataURL string) (*Snapshot, error) {
	_, data, err := processing.ParseDataURL(dataURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return m.Upload(ctx, id, filename, data)
}

// attemptErr prefers ErrStaleAttempt when the attempt was superseded:
// the error then describes work nobody is waiting for.
func (m *Manager) attemptErr(sess *Session, attempt uint64, err error) error {
	if !sess.isCurrent(attempt) {
		return ErrStaleAttempt
	}
	return err
}

// Reset supersedes any in-flight attempt and clears the session back to
// its empty state.
func (m *Manager) Reset(id string) (*Snapshot, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.attempt++
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	sess.img = nil
	sess.width = 0
	sess.height = 0
	sess.filename = ""
	sess.details = nil
	sess.editor = nil
	sess.jpeg = nil
	sess.dataURL = ""
	sess.lastTouch = time.Now()
	return sess.snapshotLocked(), nil
}

// Get returns the current snapshot of a session
func (m *Manager) Get(id string) (*Snapshot, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastTouch = time.Now()
	return sess.snapshotLocked(), nil
}

// Result returns the latest rendered JPEG and its download filename
func (m *Manager) Result(id string) (string, []byte, error) {
	sess, err := m.get(id)
	if err != nil {
		return "", nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.jpeg == nil {
		return "", nil, ErrNoImage
	}
	color := ""
	if sess.details != nil {
		color = sess.details.Color
	}
	sess.lastTouch = time.Now()
	return processing.DownloadName(sess.filename, color), sess.jpeg, nil
}

// SetViewport records the on-screen size of the preview so pointer
// coordinates can be mapped back to source pixels.
func (m *Manager) SetViewport(id string, natural, rendered float64) (*Snapshot, error) {
	return m.withEditor(id, func(e *editor.Editor) error {
		return e.SetViewport(natural, rendered)
	})
}

// BeginDrag starts a drag at the given screen point
func (m *Manager) BeginDrag(id string, p editor.Point) (*Snapshot, error) {
	return m.withEditor(id, func(e *editor.Editor) error {
		e.BeginDrag(p)
		return nil
	})
}

// MoveTo updates the draft during a drag
func (m *Manager) MoveTo(id string, p editor.Point) (*Snapshot, error) {
	return m.withEditor(id, func(e *editor.Editor) error {
		e.MoveTo(p)
		return nil
	})
}

// EndDrag finishes a drag, keeping the draft
func (m *Manager) EndDrag(id string) (*Snapshot, error) {
	return m.withEditor(id, func(e *editor.Editor) error {
		e.EndDrag()
		return nil
	})
}

// SetSize resizes the draft around its center
func (m *Manager) SetSize(id string, size float64) (*Snapshot, error) {
	return m.withEditor(id, func(e *editor.Editor) error {
		return e.SetSize(size)
	})
}

// CancelEdit throws the draft away and restores the committed crop
func (m *Manager) CancelEdit(id string) (*Snapshot, error) {
	return m.withEditor(id, func(e *editor.Editor) error {
		e.Cancel()
		return nil
	})
}

// Commit renders the draft and, only if rendering succeeds, makes it the
// committed crop. On failure the previous output stays valid.
func (m *Manager) Commit(id string) (*Snapshot, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.editor == nil || sess.img == nil {
		return nil, ErrNoImage
	}

	jpegBytes, dataURL, err := m.renderOutput(sess.img, sess.editor.Draft())
	if err != nil {
		return nil, err
	}

	sess.editor.Commit()
	sess.jpeg = jpegBytes
	sess.dataURL = dataURL
	sess.lastTouch = time.Now()
	return sess.snapshotLocked(), nil
}

// Count reports how many sessions are alive
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) renderOutput(img image.Image, rect types.CropRect) ([]byte, string, error) {
	jpegBytes, err := m.renderer.RenderJPEG(img, rect)
	if err != nil {
		return nil, "", fmt.Errorf("rendering crop: %w", err)
	}
	return jpegBytes, processing.FormatDataURL("image/jpeg", jpegBytes), nil
}

func (m *Manager) withEditor(id string, fn func(*editor.Editor) error) (*Snapshot, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.editor == nil {
		return nil, ErrNoImage
	}
	if err := fn(sess.editor); err != nil {
		return nil, err
	}
	sess.lastTouch = time.Now()
	return sess.snapshotLocked(), nil
}

func (m *Manager) getOrCreate(id string) (*Session, error) {
	if id == "" {
		sess := &Session{ID: uuid.NewString(), lastTouch: time.Now()}
		m.mu.Lock()
		m.sessions[sess.ID] = sess
		m.mu.Unlock()
		return sess, nil
	}
	return m.get(id)
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (m *Manager) evictLoop() {
	interval := m.opts.TTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

// evictIdle drops sessions idle past the TTL, superseding any work still
// in flight for them.
func (m *Manager) evictIdle(now time.Time) {
	cutoff := now.Add(-m.opts.TTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.lastTouch.Before(cutoff)
		if idle {
			sess.attempt++
			if sess.cancel != nil {
				sess.cancel()
				sess.cancel = nil
			}
		}
		sess.mu.Unlock()
		if idle {
			delete(m.sessions, id)
		}
	}
}
