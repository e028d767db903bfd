//go:build (darwin || linux) && !noopus

// Opus encoding via libstream_opus, a primitive-only wrapper around libopus
// loaded at runtime with purego. STREAM_OPUS_LIB_PATH overrides the search.

package mediacapture

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	streamOpusOnce    sync.Once
	streamOpusHandle  uintptr
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusEncoderCreate     func(sampleRate, channels, application int32) uint64
	streamOpusEncoderEncode     func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamOpusEncoderSetBitrate func(encoder uint64, bitrate int32) int32
	streamOpusEncoderDestroy    func(encoder uint64)

	streamOpusGetError   func() uintptr
	streamOpusGetVersion func() uintptr
)

const (
	streamOpusApplicationVOIP = 2048

	// Largest packet libopus will produce.
	opusMaxPacket = 4000
)

func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		streamOpusHandle, streamOpusInitErr = openLibrary("libstream_opus", libraryPaths("libstream_opus", "STREAM_OPUS_LIB_PATH"))
		if streamOpusInitErr != nil {
			return
		}
		streamOpusInitErr = bindSymbols(streamOpusHandle, map[string]any{
			"stream_opus_encoder_create":      &streamOpusEncoderCreate,
			"stream_opus_encoder_encode":      &streamOpusEncoderEncode,
			"stream_opus_encoder_set_bitrate": &streamOpusEncoderSetBitrate,
			"stream_opus_encoder_destroy":     &streamOpusEncoderDestroy,
			"stream_opus_get_error":           &streamOpusGetError,
			"stream_opus_get_version":         &streamOpusGetVersion,
		})
		if streamOpusInitErr != nil {
			purego.Dlclose(streamOpusHandle)
		}
	})
	return streamOpusInitErr
}

// OpusVersion returns the libopus version string, or "" when not loaded.
func OpusVersion() string {
	if loadStreamOpus() != nil {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func getOpusError() string {
	if ptr := streamOpusGetError(); ptr != 0 {
		return goStringFromPtr(ptr)
	}
	return "unknown error"
}

// OpusEncoder implements AudioEncoder for Opus.
type OpusEncoder struct {
	config AudioEncoderConfig

	handle    uint64
	outputBuf []byte
	pcmBuf    []int16
	mu        sync.Mutex
}

func newOpusEncoder(config AudioEncoderConfig) (*OpusEncoder, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("Opus encoder not available: %w", err)
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	if config.Channels > 2 {
		return nil, fmt.Errorf("Opus supports max 2 channels, got %d", config.Channels)
	}

	handle := streamOpusEncoderCreate(int32(config.SampleRate), int32(config.Channels), streamOpusApplicationVOIP)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create Opus encoder: %s", getOpusError())
	}
	if config.BitrateBps > 0 {
		streamOpusEncoderSetBitrate(handle, int32(config.BitrateBps))
	}

	return &OpusEncoder{
		config:    config,
		handle:    handle,
		outputBuf: make([]byte, opusMaxPacket),
	}, nil
}

// Encode encodes one frame of S16LE samples. The frame must be a valid Opus
// duration (2.5 to 60 ms).
func (e *OpusEncoder) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, fmt.Errorf("encoder closed")
	}
	if samples.Format != AudioFormatS16 {
		return nil, fmt.Errorf("Opus encoder needs S16 input, got %s", samples.Format)
	}
	numSamples := len(samples.Data) / 2
	if numSamples == 0 {
		return nil, fmt.Errorf("empty audio samples")
	}

	if cap(e.pcmBuf) < numSamples {
		e.pcmBuf = make([]int16, numSamples)
	}
	e.pcmBuf = e.pcmBuf[:numSamples]
	for i := range e.pcmBuf {
		e.pcmBuf[i] = int16(binary.LittleEndian.Uint16(samples.Data[i*2:]))
	}

	frameSize := numSamples / e.config.Channels
	n := streamOpusEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&e.pcmBuf[0])),
		int32(frameSize),
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
	)
	if n < 0 {
		return nil, fmt.Errorf("encode failed: %s", getOpusError())
	}

	return &EncodedAudio{
		Data:      append([]byte(nil), e.outputBuf[:n]...),
		Timestamp: uint32(samples.Timestamp * 48 / 1e6),
		Duration:  uint32(frameSize),
	}, nil
}

// Codec implements AudioEncoder.
func (e *OpusEncoder) Codec() AudioCodec {
	return AudioCodecOpus
}

// Close implements AudioEncoder.
func (e *OpusEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		streamOpusEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

func init() {
	if err := loadStreamOpus(); err != nil {
		return
	}
	setProviderAvailable(ProviderLibopus, true)
	registerAudioEncoder(AudioCodecOpus, ProviderLibopus, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return newOpusEncoder(config)
	})
}
