package mediacapture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/thesyncim/mediacapture/internal/logging"
)

var log = logging.L("devices")

// Device access errors. Providers wrap these so callers can classify failures.
var (
	ErrNoProvider       = errors.New("no device provider registered")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoDevice         = errors.New("no device available")
	ErrDisplayCancelled = errors.New("display selection cancelled")
	ErrNotSupported     = errors.New("operation not supported")
)

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput  DeviceKind = iota // Camera
	DeviceKindAudioInput                    // Microphone
	DeviceKindAudioOutput                   // Speaker/headphones
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	case DeviceKindAudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a media device.
type DeviceInfo struct {
	DeviceID string
	GroupID  string
	Kind     DeviceKind
	Label    string
}

// DisplayMediaOptions configures GetDisplayMedia.
type DisplayMediaOptions struct {
	Video DisplayVideoOptions
	Audio bool // Display audio is best effort
}

// DisplayVideoOptions configures display capture video. Sizes are ideals.
type DisplayVideoOptions struct {
	Width     int
	Height    int
	FrameRate int
}

// UserMediaOptions configures GetUserMedia.
type UserMediaOptions struct {
	Video *VideoConstraints // nil = no video
	Audio *AudioConstraints // nil = no audio
}

// VideoConstraints for GetUserMedia video.
type VideoConstraints struct {
	DeviceID  string
	Width     int
	Height    int
	FrameRate int
}

// AudioConstraints for GetUserMedia audio.
type AudioConstraints struct {
	DeviceID     string
	SampleRate   int
	ChannelCount int
}

// MediaDevices provides access to media input devices.
type MediaDevices interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)

	// GetUserMedia opens the requested camera and/or microphone tracks.
	// Either all requested tracks are returned or none are held.
	GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error)

	// GetDisplayMedia opens a screen capture track plus optional display audio.
	GetDisplayMedia(ctx context.Context, options DisplayMediaOptions) (MediaStream, error)
}

// DeviceProvider is implemented by platform and synthetic device backends.
type DeviceProvider interface {
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)
	ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error)
	ListAudioOutputDevices(ctx context.Context) ([]DeviceInfo, error)

	OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error)
	OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error)

	CaptureDisplay(ctx context.Context, options DisplayVideoOptions) (VideoTrack, error)
	CaptureDisplayAudio(ctx context.Context) (AudioTrack, error)
}

type deviceRegistry struct {
	provider DeviceProvider
	mu       sync.RWMutex
}

var globalDeviceRegistry = &deviceRegistry{}

// RegisterDeviceProvider registers the process-wide device provider.
func RegisterDeviceProvider(provider DeviceProvider) {
	globalDeviceRegistry.mu.Lock()
	defer globalDeviceRegistry.mu.Unlock()
	globalDeviceRegistry.provider = provider
}

// GetDeviceProvider returns the registered device provider, or nil.
func GetDeviceProvider() DeviceProvider {
	globalDeviceRegistry.mu.RLock()
	defer globalDeviceRegistry.mu.RUnlock()
	return globalDeviceRegistry.provider
}

// DefaultMediaDevices implements MediaDevices on top of a DeviceProvider.
type DefaultMediaDevices struct {
	provider DeviceProvider // nil = use the registered provider
}

// NewMediaDevices binds MediaDevices to a specific provider.
func NewMediaDevices(provider DeviceProvider) *DefaultMediaDevices {
	return &DefaultMediaDevices{provider: provider}
}

var globalMediaDevices = &DefaultMediaDevices{}

// GetMediaDevices returns MediaDevices backed by the registered provider.
func GetMediaDevices() MediaDevices {
	return globalMediaDevices
}

func (d *DefaultMediaDevices) resolve() (DeviceProvider, error) {
	if d.provider != nil {
		return d.provider, nil
	}
	if p := GetDeviceProvider(); p != nil {
		return p, nil
	}
	return nil, ErrNoProvider
}

// EnumerateDevices implements MediaDevices.
func (d *DefaultMediaDevices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	provider, err := d.resolve()
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, list := range []func(context.Context) ([]DeviceInfo, error){
		provider.ListVideoDevices,
		provider.ListAudioInputDevices,
		provider.ListAudioOutputDevices,
	} {
		found, err := list(ctx)
		if err != nil {
			log.Debug("device listing failed", logging.KeyError, err)
			continue
		}
		devices = append(devices, found...)
	}
	return devices, nil
}

func firstDevice(ctx context.Context, list func(context.Context) ([]DeviceInfo, error), kind DeviceKind) (string, error) {
	devices, err := list(ctx)
	if err != nil {
		return "", fmt.Errorf("list %s devices: %w", kind, err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoDevice, kind)
	}
	return devices[0].DeviceID, nil
}

// GetUserMedia implements MediaDevices.
func (d *DefaultMediaDevices) GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error) {
	provider, err := d.resolve()
	if err != nil {
		return nil, err
	}
	if options.Video == nil && options.Audio == nil {
		return nil, fmt.Errorf("%w: no tracks requested", ErrNotSupported)
	}

	stream := NewMediaStream(generateStreamID())

	if options.Video != nil {
		deviceID := options.Video.DeviceID
		if deviceID == "" {
			if deviceID, err = firstDevice(ctx, provider.ListVideoDevices, DeviceKindVideoInput); err != nil {
				return nil, err
			}
		}
		track, err := provider.OpenVideoDevice(ctx, deviceID, options.Video)
		if err != nil {
			return nil, fmt.Errorf("open video device: %w", err)
		}
		stream.AddTrack(track)
	}

	if options.Audio != nil {
		deviceID := options.Audio.DeviceID
		if deviceID == "" {
			if deviceID, err = firstDevice(ctx, provider.ListAudioInputDevices, DeviceKindAudioInput); err != nil {
				_ = stream.Close()
				return nil, err
			}
		}
		track, err := provider.OpenAudioDevice(ctx, deviceID, options.Audio)
		if err != nil {
			_ = stream.Close()
			return nil, fmt.Errorf("open audio device: %w", err)
		}
		stream.AddTrack(track)
	}

	return stream, nil
}

// GetDisplayMedia implements MediaDevices.
func (d *DefaultMediaDevices) GetDisplayMedia(ctx context.Context, options DisplayMediaOptions) (MediaStream, error) {
	provider, err := d.resolve()
	if err != nil {
		return nil, err
	}

	stream := NewMediaStream(generateStreamID())

	video, err := provider.CaptureDisplay(ctx, options.Video)
	if err != nil {
		return nil, fmt.Errorf("capture display: %w", err)
	}
	stream.AddTrack(video)

	if options.Audio {
		audio, err := provider.CaptureDisplayAudio(ctx)
		if err != nil {
			log.Debug("display audio unavailable", logging.KeyError, err)
		} else {
			stream.AddTrack(audio)
		}
	}

	return stream, nil
}

var streamCounter atomic.Uint64

func generateStreamID() string {
	return fmt.Sprintf("stream-%d", streamCounter.Add(1))
}
