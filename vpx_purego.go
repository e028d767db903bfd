//go:build (darwin || linux) && !novpx

// VP8/VP9 encoding via libmedia_vpx, a primitive-only wrapper around libvpx
// loaded at runtime with purego.
//
// Library locations checked (in order):
//   - MEDIA_VPX_LIB_PATH environment variable
//   - STREAM_SDK_LIB_PATH environment variable
//   - next to the executable and build/ffi under the module root
//   - system library paths

package mediacapture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaVPXOnce    sync.Once
	mediaVPXHandle  uintptr
	mediaVPXInitErr error
)

// libmedia_vpx function pointers
var (
	mediaVPXEncoderCreate        func(codec, width, height, fps, bitrateKbps, threads int32) uint64
	mediaVPXEncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts uintptr) int32
	mediaVPXEncoderMaxOutputSize func(encoder uint64) int32
	mediaVPXEncoderRequestKF     func(encoder uint64)
	mediaVPXEncoderDestroy       func(encoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1

	mediaVPXFrameKey = 0
)

func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		mediaVPXHandle, mediaVPXInitErr = openLibrary("libmedia_vpx", libraryPaths("libmedia_vpx", "MEDIA_VPX_LIB_PATH"))
		if mediaVPXInitErr != nil {
			return
		}
		mediaVPXInitErr = bindSymbols(mediaVPXHandle, map[string]any{
			"media_vpx_encoder_create":           &mediaVPXEncoderCreate,
			"media_vpx_encoder_encode":           &mediaVPXEncoderEncode,
			"media_vpx_encoder_max_output_size":  &mediaVPXEncoderMaxOutputSize,
			"media_vpx_encoder_request_keyframe": &mediaVPXEncoderRequestKF,
			"media_vpx_encoder_destroy":          &mediaVPXEncoderDestroy,
			"media_vpx_get_error":                &mediaVPXGetError,
			"media_vpx_codec_available":          &mediaVPXCodecAvailable,
		})
		if mediaVPXInitErr != nil {
			purego.Dlclose(mediaVPXHandle)
		}
	})
	return mediaVPXInitErr
}

// bindSymbols registers every symbol, turning purego's missing-symbol panic
// into an error.
func bindSymbols(handle uintptr, symbols map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bind symbols: %v", r)
		}
	}()
	for name, fptr := range symbols {
		purego.RegisterLibFunc(fptr, handle, name)
	}
	return nil
}

func getVPXError() string {
	if ptr := mediaVPXGetError(); ptr != 0 {
		return goStringFromPtr(ptr)
	}
	return "unknown error"
}

// VPXEncoder implements VideoEncoder using libmedia_vpx.
type VPXEncoder struct {
	config VideoEncoderConfig
	codec  VideoCodec

	handle    uint64
	outputBuf []byte

	keyframeReq atomic.Bool
	mu          sync.Mutex
}

func newVPXEncoder(config VideoEncoderConfig) (*VPXEncoder, error) {
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%s encoder not available: %w", config.Codec, err)
	}

	var codecType int32
	switch config.Codec {
	case VideoCodecVP8:
		codecType = mediaVPXCodecVP8
	case VideoCodecVP9:
		codecType = mediaVPXCodecVP9
	default:
		return nil, fmt.Errorf("%w: %s", ErrCodecNotSupported, config.Codec)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid %s dimensions %dx%d", config.Codec, config.Width, config.Height)
	}

	threads := config.Threads
	if threads <= 0 {
		threads = 4
	}
	bitrateKbps := config.BitrateBps / 1000
	if bitrateKbps <= 0 {
		bitrateKbps = 1000
	}
	fps := config.FPS
	if fps <= 0 {
		fps = 30
	}

	handle := mediaVPXEncoderCreate(codecType, int32(config.Width), int32(config.Height), int32(fps), int32(bitrateKbps), int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s encoder: %s", config.Codec, getVPXError())
	}

	maxOutput := mediaVPXEncoderMaxOutputSize(handle)
	if maxOutput <= 0 {
		maxOutput = int32(config.Width * config.Height * 3 / 2)
	}

	enc := &VPXEncoder{
		config:    config,
		codec:     config.Codec,
		handle:    handle,
		outputBuf: make([]byte, maxOutput),
	}
	enc.keyframeReq.Store(true)
	return enc, nil
}

// Encode implements VideoEncoder. Frames must be I420 at the configured size.
func (e *VPXEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, fmt.Errorf("encoder closed")
	}
	if frame.Format != PixelFormatI420 || len(frame.Data) < 3 {
		return nil, fmt.Errorf("%s encoder needs I420 input, got %s", e.codec, frame.Format)
	}
	if frame.Width != e.config.Width || frame.Height != e.config.Height {
		return nil, fmt.Errorf("frame %dx%d does not match encoder %dx%d", frame.Width, frame.Height, e.config.Width, e.config.Height)
	}

	forceKeyframe := int32(0)
	if e.keyframeReq.Swap(false) {
		forceKeyframe = 1
	}

	var frameType int32
	var pts int64
	n := mediaVPXEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&frame.Data[0][0])),
		uintptr(unsafe.Pointer(&frame.Data[1][0])),
		uintptr(unsafe.Pointer(&frame.Data[2][0])),
		int32(frame.Stride[0]),
		int32(frame.Stride[1]),
		forceKeyframe,
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
		uintptr(unsafe.Pointer(&frameType)),
		uintptr(unsafe.Pointer(&pts)),
	)
	if n < 0 {
		return nil, fmt.Errorf("encode failed: %s", getVPXError())
	}
	if n == 0 {
		return nil, nil
	}

	ft := FrameTypeDelta
	if frameType == mediaVPXFrameKey {
		ft = FrameTypeKey
	}
	return &EncodedFrame{
		Data:      append([]byte(nil), e.outputBuf[:n]...),
		FrameType: ft,
		Timestamp: uint32(frame.Timestamp * 90 / 1e6),
		Duration:  uint32(frame.Duration * 90 / 1e6),
	}, nil
}

// RequestKeyframe implements VideoEncoder.
func (e *VPXEncoder) RequestKeyframe() {
	e.keyframeReq.Store(true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		mediaVPXEncoderRequestKF(e.handle)
	}
}

// Codec implements VideoEncoder.
func (e *VPXEncoder) Codec() VideoCodec {
	return e.codec
}

// Close implements VideoEncoder.
func (e *VPXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		mediaVPXEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

func init() {
	if err := loadMediaVPX(); err != nil {
		return
	}
	for codec, id := range map[VideoCodec]int32{VideoCodecVP8: mediaVPXCodecVP8, VideoCodecVP9: mediaVPXCodecVP9} {
		if mediaVPXCodecAvailable(id) == 0 {
			continue
		}
		setProviderAvailable(ProviderLibvpx, true)
		registerVideoEncoder(codec, ProviderLibvpx, func(config VideoEncoderConfig) (VideoEncoder, error) {
			return newVPXEncoder(config)
		})
	}
}
