// Package config holds every tunable knob of the extraction and command
// pipelines in a single YAML-loadable struct.
//
// All fields have compiled-in defaults; a missing config file is not an
// error. A zero-value Config is never used directly: call Default() or Load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ImageConfig bounds accepted input images.
type ImageConfig struct {
	MaxBytes     int `yaml:"max_bytes"`
	MinDimension int `yaml:"min_dimension"`
	MaxDimension int `yaml:"max_dimension"`
}

// DetectConfig tunes region detection.
type DetectConfig struct {
	// Endpoint is the optional remote model-detector inference URL. Empty
	// means the classical contour fallback is the only strategy.
	Endpoint string `yaml:"endpoint"`

	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MinBoxArea     int     `yaml:"min_box_area"`
	Rectangularity float64 `yaml:"rectangularity"`
	IoUThreshold   float64 `yaml:"iou_threshold"`
	MinLineLength  int     `yaml:"min_line_length"`
	MaxLineGap     int     `yaml:"max_line_gap"`
}

// OCRConfig tunes text recognition.
type OCRConfig struct {
	Language string `yaml:"language"`

	// FastEngine / AccurateEngine can be disabled individually, e.g. to
	// force accurate-only recognition on noisy scans.
	FastEngine     bool `yaml:"fast_engine"`
	AccurateEngine bool `yaml:"accurate_engine"`
}

// LayoutConfig tunes position synthesis.
type LayoutConfig struct {
	NodeWidth  int `yaml:"node_width"`
	NodeHeight int `yaml:"node_height"`
	CellGapX   int `yaml:"cell_gap_x"`
	CellGapY   int `yaml:"cell_gap_y"`
	MinGap     int `yaml:"min_gap"`
}

// CacheConfig sets result TTLs. Recognition results live longer than command
// deltas because diagrams change quickly once a user starts editing.
type CacheConfig struct {
	ExtractionTTL time.Duration `yaml:"extraction_ttl"`
	CommandTTL    time.Duration `yaml:"command_ttl"`
}

// RateLimitConfig defines one sliding window.
type RateLimitConfig struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// GenerativeConfig configures the external generative-model fallback client.
type GenerativeConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Config is the root configuration for both pipelines.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Image      ImageConfig      `yaml:"image"`
	Detect     DetectConfig     `yaml:"detect"`
	OCR        OCRConfig        `yaml:"ocr"`
	Layout     LayoutConfig     `yaml:"layout"`
	Cache      CacheConfig      `yaml:"cache"`
	Extraction RateLimitConfig  `yaml:"extraction_limit"`
	Command    RateLimitConfig  `yaml:"command_limit"`
	Generative GenerativeConfig `yaml:"generative"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Image: ImageConfig{
			MaxBytes:     20 * 1024 * 1024,
			MinDimension: 100,
			MaxDimension: 4096,
		},
		Detect: DetectConfig{
			TimeoutSeconds: 30,
			MinBoxArea:     1000,
			Rectangularity: 0.5,
			IoUThreshold:   0.5,
			MinLineLength:  40,
			MaxLineGap:     5,
		},
		OCR: OCRConfig{
			Language:       "eng",
			FastEngine:     true,
			AccurateEngine: true,
		},
		Layout: LayoutConfig{
			NodeWidth:  200,
			NodeHeight: 120,
			CellGapX:   280,
			CellGapY:   200,
			MinGap:     40,
		},
		Cache: CacheConfig{
			ExtractionTTL: time.Hour,
			CommandTTL:    5 * time.Minute,
		},
		Extraction: RateLimitConfig{MaxRequests: 10, WindowSeconds: 60},
		Command:    RateLimitConfig{MaxRequests: 30, WindowSeconds: 60},
		Generative: GenerativeConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
			MaxRetries:     2,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
