package mediacapture

import (
	"context"
	"errors"
	"io"
)

// ErrSourceClosed is returned by reads on a closed source.
var ErrSourceClosed = errors.New("source closed")

// SourceType identifies the type of media source.
type SourceType int

const (
	SourceTypeUnknown SourceType = iota
	SourceTypeCamera
	SourceTypeScreen
	SourceTypeTestPattern
	SourceTypeTone
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeCamera:
		return "Camera"
	case SourceTypeScreen:
		return "Screen"
	case SourceTypeTestPattern:
		return "TestPattern"
	case SourceTypeTone:
		return "Tone"
	default:
		return "Unknown"
	}
}

// SourceConfig describes a video source's configuration.
type SourceConfig struct {
	Width      int
	Height     int
	FPS        int
	Format     PixelFormat
	SourceType SourceType
}

// VideoSource produces raw video frames.
type VideoSource interface {
	io.Closer

	// Start begins generation. Starting a running source is an error.
	Start(ctx context.Context) error

	// Stop halts generation and waits for it to wind down. Safe to repeat.
	Stop() error

	// ReadFrame blocks for the next frame.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	Config() SourceConfig
}

// AudioSource produces raw audio samples.
type AudioSource interface {
	io.Closer

	Start(ctx context.Context) error
	Stop() error

	ReadSamples(ctx context.Context) (*AudioSamples, error)

	SampleRate() int
	Channels() int
}
