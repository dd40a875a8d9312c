// Package config loads the agent's operator configuration from
// ~/.exoskull/config.yaml. User-facing tunables (capture interval, mouse
// buttons, theme) live in the settings table instead.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all operator configuration
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Uploader  UploaderConfig  `yaml:"uploader"`
	Recall    RecallConfig    `yaml:"recall"`
	Dictation DictationConfig `yaml:"dictation"`
}

// APIConfig locates the remote service and its identity provider
type APIConfig struct {
	BaseURL     string   `yaml:"base_url"`
	IdentityURL string   `yaml:"identity_url"`
	AnonKey     string   `yaml:"anon_key"` // sent as the apikey header on token calls
	Timeout     Duration `yaml:"timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level        string `yaml:"level"`         // "debug", "info", "warn", "error"
	DebugEnabled bool   `yaml:"debug_enabled"` // write to File in addition to the console
	File         string `yaml:"file"`
	CrashFile    string `yaml:"crash_file"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
}

// ServerConfig controls the local control API used by the UI
type ServerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

// UploaderConfig tunes the folder watcher and upload worker
type UploaderConfig struct {
	Interval      Duration `yaml:"interval"`
	BatchSize     int      `yaml:"batch_size"`
	MaxRetries    int      `yaml:"max_retries"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb"` // 0 disables the limit
	Ignore        []string `yaml:"ignore"`
}

// RecallConfig tunes the capture pipeline and its cloud sync
type RecallConfig struct {
	SyncInterval    Duration `yaml:"sync_interval"`
	SyncBatchSize   int      `yaml:"sync_batch_size"`
	ThumbnailWidth  int      `yaml:"thumbnail_width"`
	ThumbnailHeight int      `yaml:"thumbnail_height"`
	OCR             string   `yaml:"ocr"` // "none" or "tesseract"
}

// DictationConfig tunes push-to-talk recording
type DictationConfig struct {
	SampleRate int      `yaml:"sample_rate"`
	Grace      Duration `yaml:"grace"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultDir returns ~/.exoskull.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".exoskull")
}

// DefaultPath returns ~/.exoskull/config.yaml.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		DataDir: DefaultDir(),
		API: APIConfig{
			BaseURL:     "https://exoskull.xyz",
			IdentityURL: "https://uvupnwvkzreikurymncs.supabase.co",
			Timeout:     Duration{30 * time.Second},
		},
		Logging: LoggingConfig{
			Level:        "info",
			DebugEnabled: true,
			File:         "exoskull.log",
			CrashFile:    "crash.log",
			MaxSizeMB:    10,
			MaxBackups:   3,
		},
		Server: ServerConfig{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        7474,
		},
		Uploader: UploaderConfig{
			Interval:      Duration{5 * time.Second},
			BatchSize:     5,
			MaxRetries:    3,
			MaxFileSizeMB: 100,
			Ignore:        []string{"~$*", "*.tmp", "*.swp", "*.part", "*.crdownload", ".DS_Store"},
		},
		Recall: RecallConfig{
			SyncInterval:    Duration{60 * time.Second},
			SyncBatchSize:   10,
			ThumbnailWidth:  320,
			ThumbnailHeight: 180,
			OCR:             "none",
		},
		Dictation: DictationConfig{
			SampleRate: 16000,
			Grace:      Duration{200 * time.Millisecond},
		},
	}
}

// Load reads path, expanding ${VAR} references, over the defaults. A missing
// file is created with the defaults. EXOSKULL_* environment variables are
// applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EXOSKULL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("EXOSKULL_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("EXOSKULL_IDENTITY_URL"); v != "" {
		c.API.IdentityURL = v
	}
	if v := os.Getenv("EXOSKULL_ANON_KEY"); v != "" {
		c.API.AnonKey = v
	}
	if v := os.Getenv("EXOSKULL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EXOSKULL_DEBUG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugEnabled = b
		}
	}
	if v := os.Getenv("EXOSKULL_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("EXOSKULL_SERVER_BIND_ADDRESS"); v != "" {
		c.Server.BindAddress = v
	}
}

// Validate returns the first invalid field it finds.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if !strings.HasPrefix(c.API.IdentityURL, "http://") && !strings.HasPrefix(c.API.IdentityURL, "https://") {
		return fmt.Errorf("api.identity_url must be an http(s) URL, got %q", c.API.IdentityURL)
	}
	if c.API.Timeout.Duration <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if c.Uploader.Interval.Duration <= 0 || c.Recall.SyncInterval.Duration <= 0 {
		return fmt.Errorf("uploader.interval and recall.sync_interval must be positive")
	}
	if c.Uploader.BatchSize < 1 || c.Recall.SyncBatchSize < 1 {
		return fmt.Errorf("batch sizes must be at least 1")
	}
	if c.Uploader.MaxRetries < 0 {
		return fmt.Errorf("uploader.max_retries must not be negative")
	}
	for _, pattern := range c.Uploader.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid uploader.ignore pattern %q: %w", pattern, err)
		}
	}

	if c.Recall.ThumbnailWidth < 1 || c.Recall.ThumbnailHeight < 1 {
		return fmt.Errorf("recall thumbnail size must be positive")
	}
	if c.Recall.OCR != "none" && c.Recall.OCR != "tesseract" {
		return fmt.Errorf("invalid recall.ocr: %s (must be none or tesseract)", c.Recall.OCR)
	}

	if c.Dictation.SampleRate < 8000 {
		return fmt.Errorf("dictation.sample_rate too low: %d", c.Dictation.SampleRate)
	}
	return nil
}

func (c *Config) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// DBPath is <data_dir>/exoskull.db.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "exoskull.db") }

// RecallDir is <data_dir>/recall.
func (c *Config) RecallDir() string { return filepath.Join(c.DataDir, "recall") }

// LogPath resolves logging.file against data_dir.
func (c *Config) LogPath() string { return c.resolve(c.Logging.File) }

// CrashPath resolves logging.crash_file against data_dir.
func (c *Config) CrashPath() string { return c.resolve(c.Logging.CrashFile) }

// MaxFileSize is uploader.max_file_size_mb in bytes, 0 for unlimited.
func (c *Config) MaxFileSize() int64 { return int64(c.Uploader.MaxFileSizeMB) * 1024 * 1024 }
