package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

// Processor handles image loading, encoding and annotation
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImageFromURL fetches an image over http(s) and decodes it
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "Smart-Crop/1.0 (+https://github.com/wemersonPa/smart-crop)")

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}
	return p.DecodeImage(data)
}

// LoadImage reads and decodes an image file
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// DecodeImage decodes raw image bytes. The registered decoders cover
// jpeg/png/gif/bmp/tiff and standard webp; the chai2010 fallback picks up
// webp variants the x/image decoder rejects.
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// PrepareImageForModel converts an image to base64 for sending to vision
// models, downscaling so the long side does not exceed maxDim (0 keeps the
// original size).
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage writes an image in the given format. Quality applies to jpg and
// webp; lossless only to webp.
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path)
	case "", "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported save format %q", format)
	}
}

// ParseDataURL splits a base64 data: URL into its MIME type and raw bytes
func ParseDataURL(s string) (mime string, data []byte, err error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	rest := s[len("data:"):]
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URL: missing comma")
	}
	meta := rest[:comma]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data URL is not base64-encoded")
	}
	mime = strings.TrimSuffix(meta, ";base64")
	data, err = base64.StdEncoding.DecodeString(rest[comma+1:])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %v", err)
	}
	return mime, data, nil
}

// FormatDataURL builds a base64 data: URL for raw bytes
func FormatDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var colorSuffixPattern = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// DownloadName derives the output filename for a crop: the upload's base
// name without its extension, an underscore plus the detected color reduced
// to letters, digits and hyphens, and a fixed .jpg extension. An empty or
// fully stripped color adds no suffix.
func DownloadName(original, garmentColor string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "garment"
	}
	if suffix := colorSuffixPattern.ReplaceAllString(garmentColor, ""); suffix != "" {
		base += "_" + suffix
	}
	return base + ".jpg"
}

// DrawDetectionOverlay returns a copy of img annotated with the detection
// result: garment box green, texture patch cyan, derived crop square gold
// with a red center crosshair, image center in blue.
func (p *Processor) DrawDetectionOverlay(img image.Image, details types.GarmentDetails, rect types.CropRect) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}                    // garment box
	cyan := color.NRGBA{0, 220, 220, 255}                   // texture patch
	gold := color.NRGBA{255, 204, 0, 255}                   // crop square
	red := color.NRGBA{255, 0, 0, 255}                      // crop center
	blue := color.NRGBA{0, 170, 255, 255}                   // image center
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))   // ~1% of min side

	if !details.Box.Degenerate() {
		drawNormalizedBox(nrgba, details.Box, w, h, green, stroke)
	}
	if !details.TextureBox.Degenerate() {
		drawNormalizedBox(nrgba, details.TextureBox, w, h, cyan, stroke)
	}

	if rect.Valid() {
		drawCropRect(nrgba, rect, gold, stroke)

		cx, cy := rect.Center()
		px := int(cx + 0.5)
		py := int(cy + 0.5)
		drawHLine(nrgba, py, px-cross, px+cross, red)
		drawVLine(nrgba, px, py-cross, py+cross, red)
	}

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func boxToPixels(box types.BoundingBox, w, h int) (int, int, int, int) {
	b := box.Canonical()
	x0 := int(clamp(b.Xmin/types.BoxScale, 0, 1)*float64(w) + 0.5)
	y0 := int(clamp(b.Ymin/types.BoxScale, 0, 1)*float64(h) + 0.5)
	x1 := int(clamp(b.Xmax/types.BoxScale, 0, 1)*float64(w) + 0.5)
	y1 := int(clamp(b.Ymax/types.BoxScale, 0, 1)*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawNormalizedBox(img *image.NRGBA, box types.BoundingBox, w, h int, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := boxToPixels(box, w, h)
	drawRect(img, x0, y0, x1, y1, c, stroke)
}

// drawCropRect draws a pixel-space rect; parts outside the image clip away
func drawCropRect(img *image.NRGBA, rect types.CropRect, c color.NRGBA, stroke int) {
	x0 := int(rect.X + 0.5)
	y0 := int(rect.Y + 0.5)
	x1 := int(rect.X + rect.Size + 0.5)
	y1 := int(rect.Y + rect.Size + 0.5)
	drawRect(img, x0, y0, x1, y1, c, stroke)
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
