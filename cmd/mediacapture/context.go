package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/capture"
	"github.com/thesyncim/mediacapture/internal/config"
	"github.com/thesyncim/mediacapture/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// mediaDevices picks hardware or synthetic devices. The synthetic provider is
// returned so callers can simulate the user revoking a screen share.
func mediaDevices(cfg *config.Config, synthetic bool, deny mediacapture.Denial) (mediacapture.MediaDevices, *mediacapture.SyntheticProvider) {
	if !synthetic && !cfg.Devices.Synthetic {
		return mediacapture.GetMediaDevices(), nil
	}
	sc := mediacapture.DefaultSyntheticConfig()
	sc.Camera.Width, sc.Camera.Height = cfg.Video.Width, cfg.Video.Height
	sc.Camera.FPS = cfg.Video.FPS
	sc.Display.Width, sc.Display.Height = cfg.Display.Width, cfg.Display.Height
	sc.Mic.SampleRate, sc.Mic.Channels = cfg.Audio.SampleRate, cfg.Audio.Channels
	sc.DisplayAudio = cfg.Display.Audio
	sc.Deny = deny
	provider := mediacapture.NewSyntheticProvider(sc)
	return mediacapture.NewMediaDevices(provider), provider
}

func newAcquirer(cfg *config.Config, devices mediacapture.MediaDevices) *capture.DeviceAcquirer {
	acq := capture.NewDeviceAcquirer(devices)
	acq.Video = mediacapture.VideoConstraints{
		Width:     cfg.Video.Width,
		Height:    cfg.Video.Height,
		FrameRate: cfg.Video.FPS,
	}
	acq.Audio = mediacapture.AudioConstraints{
		SampleRate:   cfg.Audio.SampleRate,
		ChannelCount: cfg.Audio.Channels,
	}
	acq.Display = mediacapture.DisplayMediaOptions{
		Video: mediacapture.DisplayVideoOptions{
			Width:     cfg.Display.Width,
			Height:    cfg.Display.Height,
			FrameRate: cfg.Video.FPS,
		},
		Audio: cfg.Display.Audio,
	}
	return acq
}

func recorderOptions(cfg *config.Config, mode capture.Mode) capture.RecorderOptions {
	codec, _ := mediacapture.ParseVideoCodec(cfg.Video.Codec)
	return capture.RecorderOptions{
		Mode:      mode,
		Timeslice: cfg.Timeslice(),
		Video: mediacapture.VideoEncoderConfig{
			Codec:      codec,
			FPS:        cfg.Video.FPS,
			BitrateBps: cfg.Video.BitrateKbps * 1000,
		},
		Audio: mediacapture.AudioEncoderConfig{
			Codec:      mediacapture.AudioCodecOpus,
			BitrateBps: cfg.Audio.BitrateKbps * 1000,
		},
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
