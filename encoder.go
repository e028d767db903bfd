package mediacapture

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Common errors
var (
	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec    VideoCodec
	Provider Provider // ProviderAuto lets the registry choose

	Width      int
	Height     int
	FPS        int
	BitrateBps int
	Threads    int // 0 = auto
}

// DefaultVideoEncoderConfig returns a default encoder configuration.
func DefaultVideoEncoderConfig(codec VideoCodec, width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:      codec,
		Provider:   ProviderAuto,
		Width:      width,
		Height:     height,
		FPS:        30,
		BitrateBps: 1500000,
	}
}

// VideoEncoder encodes raw video frames to a compressed bitstream.
type VideoEncoder interface {
	io.Closer

	// Encode encodes a video frame. It returns nil when the encoder is
	// buffering and no output is ready.
	Encode(frame *VideoFrame) (*EncodedFrame, error)

	// RequestKeyframe forces the next frame to be a keyframe.
	RequestKeyframe()

	Codec() VideoCodec
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec    AudioCodec
	Provider Provider

	SampleRate  int
	Channels    int
	BitrateBps  int
	FrameSizeMs int
}

// DefaultAudioEncoderConfig returns a default audio encoder configuration.
func DefaultAudioEncoderConfig(codec AudioCodec) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:       codec,
		Provider:    ProviderAuto,
		SampleRate:  48000,
		Channels:    2,
		BitrateBps:  64000,
		FrameSizeMs: 20,
	}
}

// AudioEncoder encodes raw audio samples to a compressed bitstream.
type AudioEncoder interface {
	io.Closer
	Encode(samples *AudioSamples) (*EncodedAudio, error)
	Codec() AudioCodec
}

type videoEncoderFactory func(VideoEncoderConfig) (VideoEncoder, error)
type audioEncoderFactory func(AudioEncoderConfig) (AudioEncoder, error)

type encoderRegistry struct {
	mu sync.RWMutex

	videoProviders map[VideoCodec]map[Provider]videoEncoderFactory
	audioProviders map[AudioCodec]map[Provider]audioEncoderFactory

	videoDefaults map[VideoCodec]Provider
	audioDefaults map[AudioCodec]Provider
}

func newEncoderRegistry() *encoderRegistry {
	return &encoderRegistry{
		videoProviders: make(map[VideoCodec]map[Provider]videoEncoderFactory),
		audioProviders: make(map[AudioCodec]map[Provider]audioEncoderFactory),
		videoDefaults:  make(map[VideoCodec]Provider),
		audioDefaults:  make(map[AudioCodec]Provider),
	}
}

var globalEncoderRegistry = newEncoderRegistry()

func registerVideoEncoder(codec VideoCodec, provider Provider, factory videoEncoderFactory) {
	r := globalEncoderRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.videoProviders[codec] == nil {
		r.videoProviders[codec] = make(map[Provider]videoEncoderFactory)
	}
	r.videoProviders[codec][provider] = factory

	// Prefer permissive providers for the default.
	current, exists := r.videoDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.videoDefaults[codec] = provider
	}
}

func registerAudioEncoder(codec AudioCodec, provider Provider, factory audioEncoderFactory) {
	r := globalEncoderRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.audioProviders[codec] == nil {
		r.audioProviders[codec] = make(map[Provider]audioEncoderFactory)
	}
	r.audioProviders[codec][provider] = factory

	current, exists := r.audioDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.audioDefaults[codec] = provider
	}
}

// NewVideoEncoder creates a video encoder from the registered providers.
func NewVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	r := globalEncoderRegistry
	r.mu.RLock()
	providers := r.videoProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.videoDefaults[config.Codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}

// NewAudioEncoder creates an audio encoder from the registered providers.
func NewAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	r := globalEncoderRegistry
	r.mu.RLock()
	providers := r.audioProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.audioDefaults[config.Codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}

// CodecAvailability describes whether a codec can be encoded right now.
type CodecAvailability struct {
	Codec     string
	Kind      RTPCodecType
	Provider  Provider
	Available bool
}

// nativeProviders names the library each codec loads from, reported when no
// provider registered because the library is missing.
var nativeProviders = map[string]Provider{
	VideoCodecVP8.String():  ProviderLibvpx,
	VideoCodecVP9.String():  ProviderLibvpx,
	AudioCodecOpus.String(): ProviderLibopus,
}

// EncoderAvailability reports every known codec with its default provider.
func EncoderAvailability() []CodecAvailability {
	r := globalEncoderRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := func(codec string, kind RTPCodecType, p Provider, ok bool) CodecAvailability {
		if !ok {
			p = nativeProviders[codec]
		}
		return CodecAvailability{
			Codec:     codec,
			Kind:      kind,
			Provider:  p,
			Available: ok && p.Available(),
		}
	}

	var out []CodecAvailability
	for _, c := range []VideoCodec{VideoCodecVP8, VideoCodecVP9} {
		p, ok := r.videoDefaults[c]
		out = append(out, entry(c.String(), RTPCodecTypeVideo, p, ok))
	}
	p, ok := r.audioDefaults[AudioCodecOpus]
	out = append(out, entry(AudioCodecOpus.String(), RTPCodecTypeAudio, p, ok))
	return out
}
