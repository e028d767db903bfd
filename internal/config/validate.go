package config

import (
	"errors"
	"fmt"

	"github.com/thesyncim/mediacapture"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateDisplay(); err != nil {
		return err
	}
	if c.Import.DelayMs < 0 {
		return errors.New("import.delay_ms must be >= 0")
	}
	if c.Storage.Dir == "" {
		return errors.New("storage.dir must be set")
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	if c.Capture.SnapshotIntervalMs < 100 {
		return errors.New("capture.snapshot_interval_ms must be at least 100")
	}
	if c.Capture.TimesliceMs < 10 {
		return errors.New("capture.timeslice_ms must be at least 10")
	}
	return nil
}

func (c *Config) validateVideo() error {
	if _, err := mediacapture.ParseVideoCodec(c.Video.Codec); err != nil {
		return fmt.Errorf("video.codec: %w", err)
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return errors.New("video.width and video.height must be positive")
	}
	if c.Video.Width%2 != 0 || c.Video.Height%2 != 0 {
		return errors.New("video.width and video.height must be even")
	}
	if c.Video.FPS <= 0 || c.Video.FPS > 120 {
		return errors.New("video.fps must be between 1 and 120")
	}
	if c.Video.BitrateKbps <= 0 {
		return errors.New("video.bitrate_kbps must be positive")
	}
	return nil
}

func (c *Config) validateAudio() error {
	switch c.Audio.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("audio.sample_rate %d is not an Opus rate (8000, 12000, 16000, 24000, 48000)", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	if c.Audio.BitrateKbps <= 0 {
		return errors.New("audio.bitrate_kbps must be positive")
	}
	return nil
}

func (c *Config) validateDisplay() error {
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return errors.New("display.width and display.height must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return nil
}
