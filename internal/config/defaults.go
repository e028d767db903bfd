package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigPath = "~/.config/mediacapture/config.toml"

	defaultSnapshotIntervalMs = 5000
	defaultTimesliceMs        = 1000

	defaultVideoCodec   = "vp8"
	defaultVideoWidth   = 1280
	defaultVideoHeight  = 720
	defaultVideoFPS     = 30
	defaultVideoBitrate = 1500

	defaultSampleRate   = 48000
	defaultChannels     = 2
	defaultAudioBitrate = 64

	defaultDisplayWidth  = 1920
	defaultDisplayHeight = 1080

	defaultImportDelayMs = 2000

	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Capture: Capture{
			SnapshotIntervalMs: defaultSnapshotIntervalMs,
			TimesliceMs:        defaultTimesliceMs,
		},
		Video: Video{
			Codec:       defaultVideoCodec,
			Width:       defaultVideoWidth,
			Height:      defaultVideoHeight,
			FPS:         defaultVideoFPS,
			BitrateKbps: defaultVideoBitrate,
		},
		Audio: Audio{
			SampleRate:  defaultSampleRate,
			Channels:    defaultChannels,
			BitrateKbps: defaultAudioBitrate,
		},
		Display: Display{
			Width:  defaultDisplayWidth,
			Height: defaultDisplayHeight,
			Audio:  true,
		},
		Import: Import{
			DelayMs: defaultImportDelayMs,
		},
		Storage: Storage{
			Dir: defaultStorageDir(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultStorageDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "mediacapture", "artifacts")
	}
	return "~/.local/share/mediacapture/artifacts"
}
