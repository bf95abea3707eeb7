package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/replay/internal/mode"
)

// ErrInvalidMode is returned by Validate for an unrecognized recording mode.
var ErrInvalidMode = errors.New("config: invalid mode")

// ErrInvalid is returned by Validate for any other out-of-range setting.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds all session replay configuration.
type Config struct {
	Recording RecordingConfig `yaml:"recording"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// RecordingConfig holds capture and mode settings.
type RecordingConfig struct {
	Mode        string        `yaml:"mode"` // "off", "error", "full"
	Href        string        `yaml:"href"`
	ErrorWindow time.Duration `yaml:"error_window"`
	QuietDelay  time.Duration `yaml:"quiet_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	QueueSize   int           `yaml:"queue_size"`
}

// StorageConfig holds event log settings.
type StorageConfig struct {
	Dir       string `yaml:"dir"`
	SessionID string `yaml:"session_id"` // empty: minted at startup
}

// LogConfig holds diagnostic logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
	JSON  bool   `yaml:"json"`  // JSON diagnostics instead of text
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Recording: RecordingConfig{
			Mode:        "error",
			Href:        "app://",
			ErrorWindow: mode.DefaultErrorWindow,
			QuietDelay:  64 * time.Millisecond,
			MaxDelay:    time.Second,
			QueueSize:   64,
		},
		Storage: StorageConfig{
			Dir: defaultDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// LoadFile reads a YAML file, fills unset fields with defaults, then
// applies environment overrides.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Validate checks that the configuration can start a session.
func (c Config) Validate() error {
	if _, err := c.Mode(); err != nil {
		return err
	}
	r := c.Recording
	switch {
	case r.ErrorWindow <= 0:
		return fmt.Errorf("%w: error_window must be positive, got %v", ErrInvalid, r.ErrorWindow)
	case r.QuietDelay <= 0:
		return fmt.Errorf("%w: quiet_delay must be positive, got %v", ErrInvalid, r.QuietDelay)
	case r.MaxDelay < r.QuietDelay:
		return fmt.Errorf("%w: max_delay %v is shorter than quiet_delay %v", ErrInvalid, r.MaxDelay, r.QuietDelay)
	case r.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be at least 1, got %d", ErrInvalid, r.QueueSize)
	case c.Storage.Dir == "":
		return fmt.Errorf("%w: storage dir is empty", ErrInvalid)
	}
	return nil
}

// Mode returns the parsed recording mode.
func (c Config) Mode() (mode.Mode, error) {
	m, err := mode.Parse(c.Recording.Mode)
	if err != nil {
		return mode.Off, fmt.Errorf("%w: %w", ErrInvalidMode, err)
	}
	return m, nil
}

// ApplyEnv overrides c with the REPLAY_* variables that are set. Unset or
// malformed variables leave the current value.
func (c *Config) ApplyEnv() {
	c.Recording.Mode = getenv("REPLAY_MODE", c.Recording.Mode)
	c.Recording.Href = getenv("REPLAY_HREF", c.Recording.Href)
	c.Recording.ErrorWindow = getenvDuration("REPLAY_ERROR_WINDOW", c.Recording.ErrorWindow)
	c.Recording.QuietDelay = getenvDuration("REPLAY_QUIET_DELAY", c.Recording.QuietDelay)
	c.Recording.MaxDelay = getenvDuration("REPLAY_MAX_DELAY", c.Recording.MaxDelay)
	c.Recording.QueueSize = getenvInt("REPLAY_QUEUE_SIZE", c.Recording.QueueSize)
	c.Storage.Dir = getenv("REPLAY_DIR", c.Storage.Dir)
	c.Storage.SessionID = getenv("REPLAY_SESSION_ID", c.Storage.SessionID)
	c.Log.Level = getenv("REPLAY_LOG_LEVEL", c.Log.Level)
	c.Log.JSON = getenvBool("REPLAY_LOG_JSON", c.Log.JSON)
}

// defaultDir is the per-user cache directory, falling back to the
// system temp directory.
func defaultDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "sessionreplay")
	}
	return filepath.Join(os.TempDir(), "sessionreplay")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
