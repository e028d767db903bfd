package mediacapture

import (
	"fmt"
	"strings"
)

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	default:
		return "Unknown"
	}
}

// MimeType returns the RTP MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return "video/VP8"
	case VideoCodecVP9:
		return "video/VP9"
	default:
		return ""
	}
}

// MatroskaID returns the Matroska CodecID used in WebM track entries.
func (c VideoCodec) MatroskaID() string {
	switch c {
	case VideoCodecVP8:
		return "V_VP8"
	case VideoCodecVP9:
		return "V_VP9"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodec) ClockRate() uint32 {
	return 90000
}

// ParseVideoCodec parses a codec name such as "vp8".
func ParseVideoCodec(name string) (VideoCodec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vp8":
		return VideoCodecVP8, nil
	case "vp9":
		return VideoCodecVP9, nil
	default:
		return VideoCodecUnknown, fmt.Errorf("%w: video codec %q", ErrCodecNotSupported, name)
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	default:
		return "Unknown"
	}
}

// MimeType returns the RTP MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return "audio/opus"
	default:
		return ""
	}
}

// MatroskaID returns the Matroska CodecID used in WebM track entries.
func (c AudioCodec) MatroskaID() string {
	switch c {
	case AudioCodecOpus:
		return "A_OPUS"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c AudioCodec) ClockRate() uint32 {
	return 48000
}
