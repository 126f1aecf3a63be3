package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Detection DetectionConfig `json:"detection"`
	Crop      CropConfig      `json:"crop"`
	Render    RenderConfig    `json:"render"`
	Server    ServerConfig    `json:"server"`
}

// DetectionConfig holds configuration for the vision model backend
type DetectionConfig struct {
	Backend        string  `json:"backend"`          // ollama, llamacpp or local
	URL            string  `json:"url"`              // model server URL
	Model          string  `json:"model"`            // model name
	APIKey         string  `json:"api_key"`          // bearer token for hosted OpenAI-compatible servers
	TimeoutSec     int     `json:"timeout_sec"`      // limit for one detection call
	SendFormat     string  `json:"send_format"`      // jpg or png payload to the model
	SendMaxDim     int     `json:"send_max_dim"`     // long-side cap of the payload, 0=original
	SendQuality    int     `json:"send_quality"`     // JPEG quality of the payload
	MaxConcurrent  int64   `json:"max_concurrent"`   // detections in flight across all sessions
	RequestsPerSec float64 `json:"requests_per_sec"` // model call rate limit, 0=disabled
}

// CropConfig holds configuration for automatic crop derivation
type CropConfig struct {
	Padding            float64 `json:"padding"`              // margin around the detected box, 0.10 = 10%
	PreferTexturePatch bool    `json:"prefer_texture_patch"` // crop the flat fabric patch rather than the whole garment
}

// RenderConfig holds configuration for output rendering
type RenderConfig struct {
	OutputSize  int `json:"output_size"`  // square canvas edge in px
	JPEGQuality int `json:"jpeg_quality"` // output JPEG quality
}

// ServerConfig holds configuration for the web UI server
type ServerConfig struct {
	Addr          string `json:"addr"`
	MaxUploadMB   int64  `json:"max_upload_mb"`
	SessionTTLMin int    `json:"session_ttl_min"`
	LogFile       string `json:"log_file"` // rotated server log, empty logs to stderr
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			Backend:        "ollama",
			URL:            "http://localhost:11434",
			Model:          "openbmb/minicpm-v4.5",
			TimeoutSec:     120,
			SendFormat:     "jpg",
			SendMaxDim:     1536,
			SendQuality:    85,
			MaxConcurrent:  2,
			RequestsPerSec: 0,
		},
		Crop: CropConfig{
			Padding:            0.10,
			PreferTexturePatch: true,
		},
		Render: RenderConfig{
			OutputSize:  1024,
			JPEGQuality: 95,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   50,
			SessionTTLMin: 30,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Detection.Backend {
	case "ollama", "llamacpp", "local":
	default:
		return fmt.Errorf("detection.backend must be ollama, llamacpp or local")
	}

	if c.Detection.Backend != "local" && c.Detection.Model == "" {
		return fmt.Errorf("detection.model is required for remote backends")
	}

	if c.Detection.TimeoutSec < 1 {
		return fmt.Errorf("detection.timeout_sec must be positive")
	}

	if c.Detection.SendFormat != "jpg" && c.Detection.SendFormat != "png" {
		return fmt.Errorf("detection.send_format must be jpg or png")
	}

	if c.Detection.SendQuality < 1 || c.Detection.SendQuality > 100 {
		return fmt.Errorf("detection.send_quality must be between 1 and 100")
	}

	if c.Detection.SendMaxDim < 0 {
		return fmt.Errorf("detection.send_max_dim cannot be negative")
	}

	if c.Detection.MaxConcurrent < 1 {
		return fmt.Errorf("detection.max_concurrent must be positive")
	}

	if c.Detection.RequestsPerSec < 0 {
		return fmt.Errorf("detection.requests_per_sec cannot be negative")
	}

	if c.Crop.Padding < 0 || c.Crop.Padding > 1 {
		return fmt.Errorf("crop.padding must be between 0 and 1")
	}

	if c.Render.OutputSize < 16 {
		return fmt.Errorf("render.output_size must be at least 16")
	}

	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		return fmt.Errorf("render.jpeg_quality must be between 1 and 100")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	if c.Server.SessionTTLMin < 1 {
		return fmt.Errorf("server.session_ttl_min must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "smart-crop", "config.json")
}
