// Raw and encoded frame types shared by tracks, encoders and the capture core.
package mediacapture

import (
	"fmt"
	"image"
)

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 1
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit little-endian PCM
	AudioFormatF32                    // 32-bit float
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame represents a raw video frame.
// Data may alias a source's internal buffer; Clone before keeping it.
type VideoFrame struct {
	Data      [][]byte    // Plane data
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Capture timestamp in nanoseconds
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    append([]int(nil), f.Stride...),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = append([]byte(nil), plane...)
		}
	}
	return clone
}

// HasDimensions reports whether the frame carries usable pixel dimensions.
func (f *VideoFrame) HasDimensions() bool {
	return f != nil && f.Width > 0 && f.Height > 0
}

// ToRGBA converts the frame to an RGBA image at its native resolution.
// I420 uses the BT.601 studio-swing matrix.
func (f *VideoFrame) ToRGBA() (*image.RGBA, error) {
	if !f.HasDimensions() {
		return nil, fmt.Errorf("frame has no dimensions")
	}
	if len(f.Data) < f.Format.PlaneCount() || len(f.Stride) < f.Format.PlaneCount() {
		return nil, fmt.Errorf("frame is missing planes for %s", f.Format)
	}

	w, h := f.Width, f.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	switch f.Format {
	case PixelFormatI420:
		y, u, v := f.Data[0], f.Data[1], f.Data[2]
		sy, su, sv := f.Stride[0], f.Stride[1], f.Stride[2]
		if len(y) < sy*(h-1)+w || len(u) < su*((h-1)/2)+(w+1)/2 || len(v) < sv*((h-1)/2)+(w+1)/2 {
			return nil, fmt.Errorf("I420 planes too small for %dx%d", w, h)
		}
		for row := 0; row < h; row++ {
			out := img.Pix[row*img.Stride:]
			yRow := y[row*sy:]
			uRow := u[(row/2)*su:]
			vRow := v[(row/2)*sv:]
			for col := 0; col < w; col++ {
				c := int(yRow[col]) - 16
				d := int(uRow[col/2]) - 128
				e := int(vRow[col/2]) - 128
				pi := col * 4
				out[pi] = clip8((298*c + 409*e + 128) >> 8)
				out[pi+1] = clip8((298*c - 100*d - 208*e + 128) >> 8)
				out[pi+2] = clip8((298*c + 516*d + 128) >> 8)
				out[pi+3] = 0xff
			}
		}
	case PixelFormatRGBA32, PixelFormatBGRA32:
		src, stride := f.Data[0], f.Stride[0]
		if len(src) < stride*(h-1)+w*4 {
			return nil, fmt.Errorf("%s plane too small for %dx%d", f.Format, w, h)
		}
		for row := 0; row < h; row++ {
			in := src[row*stride : row*stride+w*4]
			out := img.Pix[row*img.Stride : row*img.Stride+w*4]
			copy(out, in)
			if f.Format == PixelFormatBGRA32 {
				for pi := 0; pi < len(out); pi += 4 {
					out[pi], out[pi+2] = out[pi+2], out[pi]
				}
			}
		}
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", f.Format)
	}
	return img, nil
}

func clip8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	uvSize := ((width + 1) / 2) * ((height + 1) / 2)
	return width*height + uvSize*2
}

// AudioSamples represents raw audio samples.
type AudioSamples struct {
	Data        []byte      // Interleaved sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples per channel
	Format      AudioFormat // Sample format
	Timestamp   int64       // Capture timestamp in nanoseconds
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := *s
	if s.Data != nil {
		clone.Data = append([]byte(nil), s.Data...)
	}
	return &clone
}

// FrameType indicates whether a frame is a keyframe or delta frame.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey               // Decodable on its own
	FrameTypeDelta             // Requires previous frames
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeKey:
		return "Key"
	case FrameTypeDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// EncodedFrame holds encoded video data.
type EncodedFrame struct {
	Data      []byte    // Encoded bitstream
	FrameType FrameType // Key or delta frame
	Timestamp uint32    // 90kHz clock
	Duration  uint32    // Duration in clock units
}

// IsKeyframe returns true if this is a keyframe.
func (f *EncodedFrame) IsKeyframe() bool {
	return f.FrameType == FrameTypeKey
}

// EncodedAudio holds encoded audio data.
type EncodedAudio struct {
	Data      []byte // Encoded packet (e.g., one Opus packet)
	Timestamp uint32 // 48kHz clock for Opus
	Duration  uint32 // Duration in samples
}
