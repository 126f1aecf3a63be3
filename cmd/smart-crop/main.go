package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	smartcrop "github.com/wemersonPa/smart-crop"
	"github.com/wemersonPa/smart-crop/internal/utils"
	"github.com/wemersonPa/smart-crop/pkg/client"
	"github.com/wemersonPa/smart-crop/pkg/detection"
	"github.com/wemersonPa/smart-crop/pkg/geometry"
	"github.com/wemersonPa/smart-crop/pkg/processing"
	"github.com/wemersonPa/smart-crop/pkg/render"
)

func main() {
	var in, outDir, model, url, apiKey, ext string
	var backend, prefer string
	var size, quality int
	var lossless bool
	var sendFmt string
	var sendSize int
	var sendQ int
	var padding float64
	var timeoutSec int
	var patch, debug, check bool

	// Debug overlay format (separate from crop ext)
	var dbgext string
	var dbgquality int
	var dbglossless bool

	flag.StringVar(&in, "in", "", "input image path, URL or directory (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&model, "model", "openbmb/minicpm-v4.5", "model name")
	flag.StringVar(&backend, "backend", "ollama", "backend to use: ollama, llamacpp or local")
	flag.StringVar(&url, "url", "", "server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&apiKey, "apikey", "", "API key for llamacpp-compatible servers")

	flag.StringVar(&ext, "ext", "jpg", "output format for crops: jpg|png|webp")
	flag.IntVar(&size, "size", render.DefaultOutputSize, "output canvas size in pixels")
	flag.IntVar(&quality, "quality", render.DefaultJPEGQuality, "JPEG/WebP output quality for crops (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode for crops")

	flag.StringVar(&dbgext, "dbgext", "png", "debug overlay format: png|jpg|webp")
	flag.IntVar(&dbgquality, "dbgquality", 92, "debug overlay quality (for jpg/webp)")
	flag.BoolVar(&dbglossless, "dbglossless", false, "debug overlay WebP lossless mode")

	flag.StringVar(&sendFmt, "sendfmt", "jpg", "format sent to the model: jpg|png")
	flag.IntVar(&sendSize, "sendsize", 1536, "max long side sent to the model (px), 0=original")
	flag.IntVar(&sendQ, "sendq", 85, "JPEG quality for image sent to the model (1-100)")

	flag.Float64Var(&padding, "padding", geometry.DefaultPadding, "margin around the detected box as a fraction of its longer side")
	flag.StringVar(&prefer, "prefer", "patch", "box used for cropping when both are present: patch|box")
	flag.IntVar(&timeoutSec, "timeout", 120, "detection timeout in seconds, 0=none")
	flag.BoolVar(&patch, "patch", false, "also save the texture patch as its own square image")
	flag.BoolVar(&debug, "debug", false, "create debug overlay images")
	flag.BoolVar(&check, "check", false, "run a quick vision sanity check on the input and exit")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in input.jpg|URL|dir [-backend ollama|llamacpp|local] [-url server_url] [-out outdir] [-ext jpg|png|webp] [-prefer patch|box]", filepath.Base(os.Args[0]))
	}
	if prefer != "patch" && prefer != "box" {
		log.Fatalf("unknown -prefer value %q (use patch or box)", prefer)
	}
	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	detector, err := smartcrop.NewDetector(smartcrop.DetectorOptions{
		Backend: backend,
		URL:     url,
		Model:   model,
		APIKey:  apiKey,
		Send:    detection.SendOptions{Format: sendFmt, MaxDim: sendSize, Quality: sendQ},
	})
	if err != nil {
		log.Fatalf("Failed to create %s detector: %v", backend, err)
	}

	processor := processing.NewProcessor()
	renderer := render.NewWithConfig(render.Config{OutputSize: size, JPEGQuality: quality})

	if check {
		runVisionCheck(detector, processor, in, timeoutSec)
		return
	}

	inputs := []string{in}
	if utils.DirExists(in) {
		inputs, err = utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		if len(inputs) == 0 {
			log.Fatalf("no image files found under %s", in)
		}
		log.Printf("processing %d images from %s", len(inputs), in)
	}

	opts := cropOptions{
		outDir:        outDir,
		ext:           ext,
		quality:       quality,
		lossless:      lossless,
		dbgext:        dbgext,
		dbgquality:    dbgquality,
		dbglossless:   dbglossless,
		padding:       padding,
		preferTexture: prefer == "patch",
		timeout:       time.Duration(timeoutSec) * time.Second,
		patch:         patch,
		debug:         debug,
	}

	failures := 0
	for _, src := range inputs {
		if err := processOne(detector, processor, renderer, src, opts); err != nil {
			log.Printf("%s: %v", src, err)
			failures++
		}
	}
	if failures > 0 {
		log.Fatalf("%d of %d inputs failed", failures, len(inputs))
	}
}

type cropOptions struct {
	outDir        string
	ext           string
	quality       int
	lossless      bool
	dbgext        string
	dbgquality    int
	dbglossless   bool
	padding       float64
	preferTexture bool
	timeout       time.Duration
	patch         bool
	debug         bool
}

func processOne(detector client.GarmentDetector, processor *processing.Processor, renderer *render.Renderer, src string, opts cropOptions) error {
	img, err := processor.LoadImageSmart(src)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()
	log.Printf("loaded %s (%dx%d)", src, imgW, imgH)

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	details, err := detector.DetectGarment(ctx, img)
	if err != nil {
		return err
	}
	log.Printf("garment box=%.0f,%.0f..%.0f,%.0f texture=%q color=%q",
		details.Box.Xmin, details.Box.Ymin, details.Box.Xmax, details.Box.Ymax,
		details.Texture, details.Color)

	rect, err := geometry.CropForDetails(*details, imgW, imgH, opts.padding, opts.preferTexture)
	if err != nil {
		return err
	}
	log.Printf("crop square %.0fpx at %.0f,%.0f", rect.Size, rect.X, rect.Y)

	out, err := renderer.Render(img, rect)
	if err != nil {
		return err
	}

	name := processing.DownloadName(src, details.Color)
	if opts.ext != "jpg" {
		name = strings.TrimSuffix(name, ".jpg") + "." + strings.ToLower(opts.ext)
	}
	cropPath := filepath.Join(opts.outDir, name)
	if err := processor.SaveImage(out, cropPath, opts.ext, opts.quality, opts.lossless); err != nil {
		return fmt.Errorf("save %s failed: %w", cropPath, err)
	}
	if info, err := os.Stat(cropPath); err == nil {
		log.Printf("wrote %s (%s)", cropPath, utils.FormatFileSize(info.Size()))
	} else {
		log.Printf("wrote %s", cropPath)
	}

	if opts.patch && !details.TextureBox.Degenerate() {
		// The patch box squared with no margin, a plain fabric swatch
		swatchRect := geometry.SquareCrop(details.TextureBox, imgW, imgH, 0)
		swatch, err := renderer.Render(img, swatchRect)
		if err != nil {
			return err
		}
		patchPath := strings.TrimSuffix(cropPath, filepath.Ext(cropPath)) + "_patch." + strings.ToLower(opts.ext)
		if err := processor.SaveImage(swatch, patchPath, opts.ext, opts.quality, opts.lossless); err != nil {
			return fmt.Errorf("save %s failed: %w", patchPath, err)
		}
		log.Printf("wrote %s", patchPath)
	}

	// Save the raw detection next to the crop
	js, _ := json.MarshalIndent(details, "", "  ")
	jsonPath := strings.TrimSuffix(cropPath, filepath.Ext(cropPath)) + ".json"
	_ = os.WriteFile(jsonPath, js, 0o644)

	if opts.debug {
		overlay := processor.DrawDetectionOverlay(img, *details, rect)
		dbgPath := strings.TrimSuffix(cropPath, filepath.Ext(cropPath)) + "_overlay." + strings.ToLower(opts.dbgext)
		if err := processor.SaveImage(overlay, dbgPath, opts.dbgext, opts.dbgquality, opts.dbglossless); err != nil {
			log.Printf("debug overlay save failed: %v", err)
		} else {
			log.Printf("wrote %s", dbgPath)
		}
	}
	return nil
}

// runVisionCheck asks the model to describe the image, bypassing garment
// parsing. Useful to verify the backend sees images at all.
func runVisionCheck(detector client.GarmentDetector, processor *processing.Processor, src string, timeoutSec int) {
	det, ok := detector.(*detection.Detector)
	if !ok {
		log.Fatal("-check needs a model backend (ollama or llamacpp)")
	}
	img, err := processor.LoadImageSmart(src)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()
	}

	reply, err := det.TestVision(ctx, img)
	if err != nil {
		log.Fatalf("vision check failed: %v", err)
	}
	fmt.Println(reply)
}
