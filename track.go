package mediacapture

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// RTPCodecType is pion's track kind, re-exported for convenience.
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// TrackState represents the state of a track.
type TrackState int32

const (
	TrackStateLive  TrackState = iota // Producing media
	TrackStateEnded                   // Stopped locally or ended by its source
	TrackStateMuted                   // Live but not producing
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	case TrackStateMuted:
		return "muted"
	default:
		return "unknown"
	}
}

// ErrTrackEnded is returned by reads on a track that is no longer live.
var ErrTrackEnded = errors.New("track ended")

// MediaStreamTrack represents a single audio or video track.
//
// Close stops the track locally and never fires the OnEnded callback. The
// callback only runs when the source ends the track on its own, e.g. the user
// revoking a screen share.
type MediaStreamTrack interface {
	io.Closer

	ID() string
	Kind() RTPCodecType
	Label() string
	State() TrackState

	Enabled() bool
	SetEnabled(enabled bool)

	// OnEnded sets a callback for when the source ends the track.
	OnEnded(callback func())
}

// VideoTrack is a MediaStreamTrack that produces video frames.
type VideoTrack interface {
	MediaStreamTrack

	// ReadFrame blocks for the next frame. The frame may alias an internal
	// buffer and is only valid until the next call.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	Settings() VideoTrackSettings
}

// VideoTrackSettings describes the actual video track settings.
// Width and Height are zero until the source has negotiated a resolution.
type VideoTrackSettings struct {
	Width     int
	Height    int
	FrameRate int
	DeviceID  string
}

// AudioTrack is a MediaStreamTrack that produces audio samples.
type AudioTrack interface {
	MediaStreamTrack

	ReadSamples(ctx context.Context) (*AudioSamples, error)

	Settings() AudioTrackSettings
}

// AudioTrackSettings describes the actual audio track settings.
type AudioTrackSettings struct {
	SampleRate   int
	ChannelCount int
	DeviceID     string
}

// MediaStream is a collection of tracks.
type MediaStream interface {
	io.Closer

	ID() string

	// Active reports whether any track is still live.
	Active() bool

	GetTracks() []MediaStreamTrack
	GetVideoTracks() []VideoTrack
	GetAudioTracks() []AudioTrack
	GetTrackByID(id string) MediaStreamTrack
	AddTrack(track MediaStreamTrack)
}

// BaseTrack provides common functionality for tracks.
type BaseTrack struct {
	id      string
	label   string
	kind    RTPCodecType
	state   atomic.Int32
	enabled atomic.Bool
	endedCb func()
	mu      sync.RWMutex
}

// NewBaseTrack creates a new live base track.
func NewBaseTrack(id, label string, kind RTPCodecType) *BaseTrack {
	t := &BaseTrack{id: id, label: label, kind: kind}
	t.state.Store(int32(TrackStateLive))
	t.enabled.Store(true)
	return t
}

func (t *BaseTrack) ID() string         { return t.id }
func (t *BaseTrack) Kind() RTPCodecType { return t.kind }
func (t *BaseTrack) Label() string      { return t.label }

func (t *BaseTrack) State() TrackState { return TrackState(t.state.Load()) }

func (t *BaseTrack) Enabled() bool     { return t.enabled.Load() }
func (t *BaseTrack) SetEnabled(e bool) { t.enabled.Store(e) }

// SetMuted toggles between live and muted. It has no effect once ended.
func (t *BaseTrack) SetMuted(muted bool) {
	from, to := TrackStateLive, TrackStateMuted
	if !muted {
		from, to = TrackStateMuted, TrackStateLive
	}
	t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *BaseTrack) OnEnded(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedCb = callback
}

// MarkStopped ends the track without notifying OnEnded. It reports whether
// this call performed the transition.
func (t *BaseTrack) MarkStopped() bool {
	return TrackState(t.state.Swap(int32(TrackStateEnded))) != TrackStateEnded
}

// End ends the track from the source side and fires OnEnded once.
func (t *BaseTrack) End() bool {
	if TrackState(t.state.Swap(int32(TrackStateEnded))) == TrackStateEnded {
		return false
	}
	t.mu.RLock()
	cb := t.endedCb
	t.mu.RUnlock()
	if cb != nil {
		go cb()
	}
	return true
}

// SimpleMediaStream is a basic MediaStream implementation.
type SimpleMediaStream struct {
	id     string
	tracks []MediaStreamTrack
	mu     sync.RWMutex
}

// NewMediaStream creates a new media stream.
func NewMediaStream(id string) *SimpleMediaStream {
	return &SimpleMediaStream{id: id}
}

func (s *SimpleMediaStream) ID() string { return s.id }

func (s *SimpleMediaStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.State() != TrackStateEnded {
			return true
		}
	}
	return false
}

func (s *SimpleMediaStream) GetTracks() []MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MediaStreamTrack(nil), s.tracks...)
}

func (s *SimpleMediaStream) GetVideoTracks() []VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []VideoTrack
	for _, t := range s.tracks {
		if vt, ok := t.(VideoTrack); ok {
			result = append(result, vt)
		}
	}
	return result
}

func (s *SimpleMediaStream) GetAudioTracks() []AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []AudioTrack
	for _, t := range s.tracks {
		if at, ok := t.(AudioTrack); ok {
			result = append(result, at)
		}
	}
	return result
}

func (s *SimpleMediaStream) GetTrackByID(id string) MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

func (s *SimpleMediaStream) AddTrack(track MediaStreamTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, track)
	s.mu.Unlock()
}

// Close stops every track. The stream keeps its track list so callers can
// still inspect final states.
func (s *SimpleMediaStream) Close() error {
	s.mu.RLock()
	tracks := append([]MediaStreamTrack(nil), s.tracks...)
	s.mu.RUnlock()

	var errs []error
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
