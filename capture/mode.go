package capture

import (
	"fmt"
	"strings"
)

// Mode selects what a session captures.
type Mode int

const (
	ModeCameraMic Mode = iota // Camera video plus microphone
	ModeMicOnly               // Microphone only
	ModeScreen                // Display share plus optional display audio
)

// Artifact kinds. KindURLImport has no corresponding Mode.
const (
	KindCameraMic = "camera-mic"
	KindMicOnly   = "mic-only"
	KindScreen    = "screen"
	KindURLImport = "url-import"
)

// Container MIME types.
const (
	MIMEWebM = "video/webm"
	MIMEOgg  = "audio/ogg"
)

// Descriptor holds everything that differs between modes.
type Descriptor struct {
	Label string // Human-readable, prefixes artifact names
	Kind  string // Artifact kind

	MIMEType  string // Payload container
	Extension string // File extension for the payload

	Video bool // Session has a video track
	Audio bool // Session requires an audio track

	// Sampling enables the Snapshot Sampler.
	Sampling bool
	// FreshTarget makes the sampler open a new view per tick.
	FreshTarget bool
	// Display acquires through the display-sharing facility and watches for
	// out-of-band termination.
	Display bool
}

var descriptors = map[Mode]Descriptor{
	ModeCameraMic: {
		Label: "Live Session", Kind: KindCameraMic,
		MIMEType: MIMEWebM, Extension: "webm",
		Video: true, Audio: true, Sampling: true,
	},
	ModeMicOnly: {
		Label: "Audio Recording", Kind: KindMicOnly,
		MIMEType: MIMEOgg, Extension: "ogg",
		Audio: true,
	},
	ModeScreen: {
		Label: "Screen Recording", Kind: KindScreen,
		MIMEType: MIMEWebM, Extension: "webm",
		Video: true, Sampling: true, FreshTarget: true, Display: true,
	},
}

// Descriptor returns the mode's descriptor.
func (m Mode) Descriptor() Descriptor {
	return descriptors[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := descriptors[m]
	return ok
}

func (m Mode) String() string {
	if d, ok := descriptors[m]; ok {
		return d.Kind
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts "camera", "mic", "screen" and the artifact kind names.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "camera", "camera-mic", "live":
		return ModeCameraMic, nil
	case "mic", "mic-only", "audio":
		return ModeMicOnly, nil
	case "screen", "display":
		return ModeScreen, nil
	}
	return 0, fmt.Errorf("unknown capture mode %q (want camera, mic or screen)", s)
}
