package mediacapture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Denial selects which permission prompts a SyntheticProvider refuses.
type Denial uint8

const (
	DenyVideo Denial = 1 << iota
	DenyAudio
	DenyDisplay
)

// ParseDenial parses a comma separated list of "video", "audio", "display".
func ParseDenial(s string) (Denial, error) {
	var d Denial
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "video", "camera":
			d |= DenyVideo
		case "audio", "mic":
			d |= DenyAudio
		case "display", "screen":
			d |= DenyDisplay
		default:
			return 0, fmt.Errorf("unknown denial %q", part)
		}
	}
	return d, nil
}

// SyntheticConfig configures a SyntheticProvider.
type SyntheticConfig struct {
	Camera  TestPatternConfig
	Display TestPatternConfig
	Mic     ToneConfig

	// DisplayAudio enables a display audio track alongside screen capture.
	DisplayAudio bool

	// PromptDelay simulates the time a user spends on a permission prompt.
	PromptDelay time.Duration

	Deny Denial
}

// DefaultSyntheticConfig returns a provider with a color-bar camera, a
// moving-box display and a 440 Hz microphone.
func DefaultSyntheticConfig() SyntheticConfig {
	display := DefaultTestPatternConfig()
	display.Width, display.Height = 1920, 1080
	display.FPS = 15
	display.Pattern = PatternMovingBox
	return SyntheticConfig{
		Camera:       DefaultTestPatternConfig(),
		Display:      display,
		Mic:          DefaultToneConfig(),
		DisplayAudio: true,
	}
}

// SyntheticProvider is a DeviceProvider backed by generated media. It stands
// in for real hardware on headless hosts and in tests.
type SyntheticProvider struct {
	config SyntheticConfig

	mu       sync.Mutex
	displays []*sourceVideoTrack
}

// NewSyntheticProvider creates a synthetic device provider.
func NewSyntheticProvider(config SyntheticConfig) *SyntheticProvider {
	return &SyntheticProvider{config: config}
}

var syntheticDevices = []DeviceInfo{
	{DeviceID: "synthetic-camera", GroupID: "synthetic", Kind: DeviceKindVideoInput, Label: "Synthetic Camera"},
	{DeviceID: "synthetic-mic", GroupID: "synthetic", Kind: DeviceKindAudioInput, Label: "Synthetic Microphone"},
	{DeviceID: "synthetic-speaker", GroupID: "synthetic", Kind: DeviceKindAudioOutput, Label: "Synthetic Speaker"},
}

func (p *SyntheticProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	return syntheticDevices[0:1], nil
}

func (p *SyntheticProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return syntheticDevices[1:2], nil
}

func (p *SyntheticProvider) ListAudioOutputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return syntheticDevices[2:3], nil
}

// OpenVideoDevice opens the synthetic camera.
func (p *SyntheticProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	if err := p.prompt(ctx); err != nil {
		return nil, err
	}
	if p.config.Deny&DenyVideo != 0 {
		return nil, fmt.Errorf("%w: camera", ErrPermissionDenied)
	}
	if deviceID != syntheticDevices[0].DeviceID {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, deviceID)
	}

	cfg := p.config.Camera
	if constraints != nil {
		if constraints.Width > 0 && constraints.Height > 0 {
			cfg.Width, cfg.Height = constraints.Width, constraints.Height
		}
		if constraints.FrameRate > 0 {
			cfg.FPS = constraints.FrameRate
		}
	}
	return newSourceVideoTrack("Synthetic Camera", deviceID, NewTestPatternSource(cfg))
}

// OpenAudioDevice opens the synthetic microphone.
func (p *SyntheticProvider) OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error) {
	if err := p.prompt(ctx); err != nil {
		return nil, err
	}
	if p.config.Deny&DenyAudio != 0 {
		return nil, fmt.Errorf("%w: microphone", ErrPermissionDenied)
	}
	if deviceID != syntheticDevices[1].DeviceID {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, deviceID)
	}

	cfg := p.config.Mic
	if constraints != nil {
		if constraints.SampleRate > 0 {
			cfg.SampleRate = constraints.SampleRate
			cfg.FrameSize = 0
		}
		if constraints.ChannelCount > 0 {
			cfg.Channels = constraints.ChannelCount
		}
	}
	return newSourceAudioTrack("Synthetic Microphone", deviceID, NewToneSource(cfg))
}

// CaptureDisplay starts a synthetic screen share.
func (p *SyntheticProvider) CaptureDisplay(ctx context.Context, options DisplayVideoOptions) (VideoTrack, error) {
	if err := p.prompt(ctx); err != nil {
		return nil, err
	}
	if p.config.Deny&DenyDisplay != 0 {
		return nil, ErrDisplayCancelled
	}

	cfg := p.config.Display
	if options.Width > 0 && options.Height > 0 {
		cfg.Width, cfg.Height = options.Width, options.Height
	}
	if options.FrameRate > 0 {
		cfg.FPS = options.FrameRate
	}
	track, err := newSourceVideoTrack("Synthetic Display", "synthetic-display", NewTestPatternSource(cfg))
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	live := p.displays[:0]
	for _, d := range p.displays {
		if d.State() != TrackStateEnded {
			live = append(live, d)
		}
	}
	clear(p.displays[len(live):])
	p.displays = append(live, track)
	p.mu.Unlock()
	return track, nil
}

// CaptureDisplayAudio returns a low tone standing in for system audio.
func (p *SyntheticProvider) CaptureDisplayAudio(ctx context.Context) (AudioTrack, error) {
	if !p.config.DisplayAudio {
		return nil, fmt.Errorf("%w: display audio", ErrNotSupported)
	}
	cfg := p.config.Mic
	cfg.Frequency = 220
	return newSourceAudioTrack("Synthetic Display Audio", "synthetic-display-audio", NewToneSource(cfg))
}

// RevokeDisplay ends every live screen share as if the user pressed the
// platform's "stop sharing" control. It returns how many tracks ended.
func (p *SyntheticProvider) RevokeDisplay() int {
	p.mu.Lock()
	displays := p.displays
	p.displays = nil
	p.mu.Unlock()

	n := 0
	for _, t := range displays {
		if t.end() {
			n++
		}
	}
	return n
}

func (p *SyntheticProvider) prompt(ctx context.Context) error {
	if p.config.PromptDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.config.PromptDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sourceVideoTrack adapts a VideoSource to a VideoTrack.
type sourceVideoTrack struct {
	*BaseTrack
	src      VideoSource
	deviceID string

	// Zero until the first frame arrives.
	width, height atomic.Int32
}

func newSourceVideoTrack(label, deviceID string, src VideoSource) (*sourceVideoTrack, error) {
	if err := src.Start(context.Background()); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("start %s: %w", label, err)
	}
	return &sourceVideoTrack{
		BaseTrack: NewBaseTrack(uuid.NewString(), label, RTPCodecTypeVideo),
		src:       src,
		deviceID:  deviceID,
	}, nil
}

func (t *sourceVideoTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	if t.State() == TrackStateEnded {
		return nil, ErrTrackEnded
	}
	frame, err := t.src.ReadFrame(ctx)
	if errors.Is(err, ErrSourceClosed) {
		return nil, ErrTrackEnded
	}
	if err != nil {
		return nil, err
	}
	t.width.Store(int32(frame.Width))
	t.height.Store(int32(frame.Height))
	return frame, nil
}

func (t *sourceVideoTrack) Settings() VideoTrackSettings {
	return VideoTrackSettings{
		Width:     int(t.width.Load()),
		Height:    int(t.height.Load()),
		FrameRate: t.src.Config().FPS,
		DeviceID:  t.deviceID,
	}
}

func (t *sourceVideoTrack) Close() error {
	if !t.MarkStopped() {
		return nil
	}
	return t.src.Close()
}

func (t *sourceVideoTrack) end() bool {
	if !t.End() {
		return false
	}
	_ = t.src.Close()
	return true
}

// sourceAudioTrack adapts an AudioSource to an AudioTrack.
type sourceAudioTrack struct {
	*BaseTrack
	src      AudioSource
	deviceID string
}

func newSourceAudioTrack(label, deviceID string, src AudioSource) (*sourceAudioTrack, error) {
	if err := src.Start(context.Background()); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("start %s: %w", label, err)
	}
	return &sourceAudioTrack{
		BaseTrack: NewBaseTrack(uuid.NewString(), label, RTPCodecTypeAudio),
		src:       src,
		deviceID:  deviceID,
	}, nil
}

func (t *sourceAudioTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	if t.State() == TrackStateEnded {
		return nil, ErrTrackEnded
	}
	samples, err := t.src.ReadSamples(ctx)
	if errors.Is(err, ErrSourceClosed) {
		return nil, ErrTrackEnded
	}
	return samples, err
}

func (t *sourceAudioTrack) Settings() AudioTrackSettings {
	return AudioTrackSettings{
		SampleRate:   t.src.SampleRate(),
		ChannelCount: t.src.Channels(),
		DeviceID:     t.deviceID,
	}
}

func (t *sourceAudioTrack) Close() error {
	if !t.MarkStopped() {
		return nil
	}
	return t.src.Close()
}
