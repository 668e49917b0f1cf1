package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// CaptureIntervalSec is the scheduler tick in seconds.
	CaptureIntervalSec int `json:"capture_interval_sec"`

	// CaptureMaxRetries bounds consecutive frame acquisition retries before
	// the scheduler stops.
	CaptureMaxRetries int `json:"capture_max_retries"`

	// CaptureRetryBackoffSec is the fixed sleep between retries.
	CaptureRetryBackoffSec int `json:"capture_retry_backoff_sec"`

	// BufferCapacity is the maximum number of frames held pending encoding.
	// On overflow the oldest frame is evicted.
	BufferCapacity int `json:"buffer_capacity"`

	// FlushThreshold is the queue depth at which a batch of frames is handed
	// to the encoder.
	FlushThreshold int `json:"flush_threshold"`

	// EncodeTimeoutSec is the watchdog for the video encoder subprocess.
	EncodeTimeoutSec int `json:"encode_timeout_sec"`

	// EncoderBinary is the video encoder executable. Defaults to ffmpeg on PATH.
	EncoderBinary string `json:"encoder_binary,omitempty"`

	// SessionTimeoutSec is the idle gap after which a new session starts.
	SessionTimeoutSec int `json:"session_timeout_sec"`

	// OCRConfidence is the minimum recognition confidence consumed.
	OCRConfidence float64 `json:"ocr_confidence"`

	// ActiveWindowOnly crops OCR input to the frontmost window when bounds
	// are available.
	ActiveWindowOnly bool `json:"active_window_only,omitempty"`

	// ArchiveDir is where capture documents, summaries, journals, and digests
	// are written. Defaults to <base>/archive.
	ArchiveDir string `json:"archive_dir,omitempty"`

	// ChunkDir is where encoded video chunks are written. Defaults to
	// <base>/chunks.
	ChunkDir string `json:"chunk_dir,omitempty"`

	// WebBind and WebPort configure the local viewer.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DBMaxOpenConns limits open database connections. If set to 1, all
	// database access is serialized. 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections. 0 means default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CaptureIntervalSec:     2,
		CaptureMaxRetries:      3,
		CaptureRetryBackoffSec: 2,
		BufferCapacity:         100,
		FlushThreshold:         30,
		EncodeTimeoutSec:       30,
		EncoderBinary:          "ffmpeg",
		SessionTimeoutSec:      300,
		OCRConfidence:          0.35,
		WebBind:                "127.0.0.1",
		WebPort:                7155,
	}
}

// CaptureInterval returns the scheduler tick as a duration.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalSec) * time.Second
}

// RetryBackoff returns the retry sleep as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.CaptureRetryBackoffSec) * time.Second
}

// EncodeTimeout returns the encoder watchdog as a duration.
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.EncodeTimeoutSec) * time.Second
}

// SessionTimeout returns the session idle gap as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist. Relative directory
// settings are resolved against baseDir.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.retrace.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg = Merge(DefaultConfig(), cfg)

	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(baseDir, "archive")
	}
	if cfg.ChunkDir == "" {
		cfg.ChunkDir = filepath.Join(baseDir, "chunks")
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.CaptureIntervalSec = pickInt(base.CaptureIntervalSec, overlay.CaptureIntervalSec)
	result.CaptureMaxRetries = pickInt(base.CaptureMaxRetries, overlay.CaptureMaxRetries)
	result.CaptureRetryBackoffSec = pickInt(base.CaptureRetryBackoffSec, overlay.CaptureRetryBackoffSec)
	result.BufferCapacity = pickInt(base.BufferCapacity, overlay.BufferCapacity)
	result.FlushThreshold = pickInt(base.FlushThreshold, overlay.FlushThreshold)
	result.EncodeTimeoutSec = pickInt(base.EncodeTimeoutSec, overlay.EncodeTimeoutSec)
	result.SessionTimeoutSec = pickInt(base.SessionTimeoutSec, overlay.SessionTimeoutSec)
	result.WebPort = pickInt(base.WebPort, overlay.WebPort)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.EncoderBinary = pickString(base.EncoderBinary, overlay.EncoderBinary)
	result.ArchiveDir = pickString(base.ArchiveDir, overlay.ArchiveDir)
	result.ChunkDir = pickString(base.ChunkDir, overlay.ChunkDir)
	result.WebBind = pickString(base.WebBind, overlay.WebBind)

	result.OCRConfidence = overlay.OCRConfidence
	if result.OCRConfidence == 0 {
		result.OCRConfidence = base.OCRConfidence
	}

	// Booleans: overlay wins if true, else base
	result.ActiveWindowOnly = base.ActiveWindowOnly || overlay.ActiveWindowOnly

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
