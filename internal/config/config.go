package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Capture contains session timing.
type Capture struct {
	SnapshotIntervalMs int `toml:"snapshot_interval_ms"`
	TimesliceMs        int `toml:"timeslice_ms"`
}

// Video contains camera and screen encoder settings.
type Video struct {
	Codec       string `toml:"codec"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	FPS         int    `toml:"fps"`
	BitrateKbps int    `toml:"bitrate_kbps"`
}

// Audio contains microphone and encoder settings.
type Audio struct {
	SampleRate  int `toml:"sample_rate"`
	Channels    int `toml:"channels"`
	BitrateKbps int `toml:"bitrate_kbps"`
}

// Display contains screen-share settings.
type Display struct {
	Width  int  `toml:"width"`
	Height int  `toml:"height"`
	Audio  bool `toml:"audio"` // Also capture system audio when available
}

// Import contains URL import settings.
type Import struct {
	DelayMs int `toml:"delay_ms"`
}

// Storage contains where saved artifacts go.
type Storage struct {
	Dir string `toml:"dir"`
}

// Devices selects the device backend.
type Devices struct {
	Synthetic bool `toml:"synthetic"` // Generated media instead of hardware
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediacapture.
type Config struct {
	Capture Capture `toml:"capture"`
	Video   Video   `toml:"video"`
	Audio   Audio   `toml:"audio"`
	Display Display `toml:"display"`
	Import  Import  `toml:"import"`
	Storage Storage `toml:"storage"`
	Devices Devices `toml:"devices"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. When path is
// empty the default location is tried, then ./mediacapture.toml. A missing
// file yields the defaults with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediacapture.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// SnapshotInterval returns the sampler period.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Capture.SnapshotIntervalMs) * time.Millisecond
}

// Timeslice returns the recorder's segment period.
func (c *Config) Timeslice() time.Duration {
	return time.Duration(c.Capture.TimesliceMs) * time.Millisecond
}

// ImportDelay returns the simulated URL import processing time.
func (c *Config) ImportDelay() time.Duration {
	return time.Duration(c.Import.DelayMs) * time.Millisecond
}

// EnsureDirectories creates the storage directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory %q: %w", c.Storage.Dir, err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
