package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	smartcrop "github.com/wemersonPa/smart-crop"
	"github.com/wemersonPa/smart-crop/internal/config"
	"github.com/wemersonPa/smart-crop/internal/server"
	"github.com/wemersonPa/smart-crop/internal/session"
	"github.com/wemersonPa/smart-crop/pkg/detection"
	"github.com/wemersonPa/smart-crop/pkg/render"
)

func main() {
	var cfgPath, addr, backend, url, model, logFile string
	var writeConfig bool

	flag.StringVar(&cfgPath, "config", "", "config file path (default "+config.GetConfigPath()+")")
	flag.StringVar(&addr, "addr", "", "listen address, overrides config")
	flag.StringVar(&backend, "backend", "", "detection backend, overrides config: ollama|llamacpp|local")
	flag.StringVar(&url, "url", "", "model server URL, overrides config")
	flag.StringVar(&model, "model", "", "model name, overrides config")
	flag.StringVar(&logFile, "logfile", "", "rotated log file, overrides config (empty logs to stderr)")
	flag.BoolVar(&writeConfig, "writeconfig", false, "write the default config file and exit")
	flag.Parse()

	if cfgPath == "" {
		cfgPath = config.GetConfigPath()
	}

	if writeConfig {
		if err := config.Default().SaveToFile(cfgPath); err != nil {
			log.Fatalf("writing config: %v", err)
		}
		log.Printf("wrote %s", cfgPath)
		return
	}

	cfg := config.Default()
	if loaded, err := config.LoadFromFile(cfgPath); err == nil {
		cfg = loaded
		log.Printf("loaded config from %s", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading config: %v", err)
	}

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if backend != "" {
		cfg.Detection.Backend = backend
	}
	if url != "" {
		cfg.Detection.URL = url
	}
	if model != "" {
		cfg.Detection.Model = model
	}
	if logFile != "" {
		cfg.Server.LogFile = logFile
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if cfg.Server.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Server.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 2,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	detector, err := smartcrop.NewDetector(smartcrop.DetectorOptions{
		Backend: cfg.Detection.Backend,
		URL:     cfg.Detection.URL,
		Model:   cfg.Detection.Model,
		APIKey:  cfg.Detection.APIKey,
		Send: detection.SendOptions{
			Format:  cfg.Detection.SendFormat,
			MaxDim:  cfg.Detection.SendMaxDim,
			Quality: cfg.Detection.SendQuality,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create %s detector: %v", cfg.Detection.Backend, err)
	}

	renderer := render.NewWithConfig(render.Config{
		OutputSize:  cfg.Render.OutputSize,
		JPEGQuality: cfg.Render.JPEGQuality,
	})

	sessions := session.NewManager(detector, renderer, session.Options{
		Padding:        cfg.Crop.Padding,
		PreferTexture:  cfg.Crop.PreferTexturePatch,
		Timeout:        time.Duration(cfg.Detection.TimeoutSec) * time.Second,
		MaxConcurrent:  cfg.Detection.MaxConcurrent,
		RequestsPerSec: cfg.Detection.RequestsPerSec,
		TTL:            time.Duration(cfg.Server.SessionTTLMin) * time.Minute,
	})
	defer sessions.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(sessions, cfg.Server.MaxUploadMB),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("smart-crop-web %s listening on %s (backend=%s model=%s)",
			smartcrop.Version, cfg.Server.Addr, cfg.Detection.Backend, cfg.Detection.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
