package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/internal/logging"
)

// SampleReader is the read-only side of an audio track.
type SampleReader interface {
	ReadSamples(ctx context.Context) (*mediacapture.AudioSamples, error)
	Settings() mediacapture.AudioTrackSettings
}

// Stream is an acquired media stream handle. The controller owns it and is
// the only party that releases it; the recorder and sampler get read-only
// access through views.
type Stream struct {
	media mediacapture.MediaStream
	mode  Mode

	videoTrack mediacapture.VideoTrack
	video      *frameHub
	audio      mediacapture.AudioTrack

	ended    chan struct{}
	endOnce  sync.Once
	released chan struct{}
	relOnce  sync.Once
	relErr   error
}

// NewStream wraps an acquired MediaStream for mode. It fails when the stream
// lacks a track the mode requires. For display modes the video track's
// OnEnded callback is wired to Ended.
func NewStream(media mediacapture.MediaStream, mode Mode) (*Stream, error) {
	d := mode.Descriptor()
	s := &Stream{
		media:    media,
		mode:     mode,
		ended:    make(chan struct{}),
		released: make(chan struct{}),
	}

	if tracks := media.GetVideoTracks(); len(tracks) > 0 && d.Video {
		s.videoTrack = tracks[0]
	}
	if tracks := media.GetAudioTracks(); len(tracks) > 0 {
		s.audio = tracks[0]
	}
	if d.Video && s.videoTrack == nil {
		return nil, fmt.Errorf("stream %s has no video track", media.ID())
	}
	if d.Audio && s.audio == nil {
		return nil, fmt.Errorf("stream %s has no audio track", media.ID())
	}

	if s.videoTrack != nil {
		if d.Display {
			s.videoTrack.OnEnded(s.signalEnded)
		}
		s.video = newFrameHub(s.videoTrack, logging.L("capture").With("stream", media.ID()))
	}
	return s, nil
}

// ID returns the underlying MediaStream ID.
func (s *Stream) ID() string { return s.media.ID() }

// HasVideo reports whether the stream carries a video track.
func (s *Stream) HasVideo() bool { return s.video != nil }

// VideoSettings returns the video track settings. Width and Height stay zero
// until the track has negotiated a resolution.
func (s *Stream) VideoSettings() mediacapture.VideoTrackSettings {
	if s.videoTrack == nil {
		return mediacapture.VideoTrackSettings{}
	}
	return s.videoTrack.Settings()
}

// NewVideoView opens an independent view of the video track. The view starts
// with the most recent frame, if any. It returns nil for audio-only streams.
func (s *Stream) NewVideoView() *FrameView {
	if s.video == nil {
		return nil
	}
	return s.video.newView()
}

// Audio returns the audio track, or nil.
func (s *Stream) Audio() SampleReader {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

// Ended is closed when the stream is terminated from outside the
// application, e.g. the user stops a screen share from the system UI.
func (s *Stream) Ended() <-chan struct{} { return s.ended }

func (s *Stream) signalEnded() {
	s.endOnce.Do(func() { close(s.ended) })
}

// release stops every track. Only the first call does any work.
func (s *Stream) release() error {
	s.relOnce.Do(func() {
		if s.video != nil {
			s.video.cancel()
		}
		s.relErr = s.media.Close()
		if s.video != nil {
			<-s.video.done
		}
		close(s.released)
	})
	return s.relErr
}

// isReleased reports whether release has completed.
func (s *Stream) isReleased() bool {
	select {
	case <-s.released:
		return true
	default:
		return false
	}
}

// frameHub pumps a video track and fans each frame out to every open view.
// Frames are cloned once so views never alias the track's buffers.
type frameHub struct {
	track mediacapture.VideoTrack
	log   *slog.Logger

	mu     sync.Mutex
	views  map[*FrameView]struct{}
	latest *mediacapture.VideoFrame
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newFrameHub(track mediacapture.VideoTrack, log *slog.Logger) *frameHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &frameHub{
		track:  track,
		log:    log,
		views:  make(map[*FrameView]struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.pump(ctx)
	return h
}

func (h *frameHub) pump(ctx context.Context) {
	defer close(h.done)
	defer h.closeViews()

	for {
		frame, err := h.track.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, mediacapture.ErrTrackEnded) {
				h.log.Warn("video read failed", logging.KeyError, err)
			}
			return
		}
		h.broadcast(frame.Clone())
	}
}

func (h *frameHub) broadcast(frame *mediacapture.VideoFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = frame
	for v := range h.views {
		v.offer(frame)
	}
}

func (h *frameHub) newView() *FrameView {
	v := &FrameView{hub: h, ch: make(chan *mediacapture.VideoFrame, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		v.current = h.latest
		close(v.ch)
		v.closed = true
		return v
	}
	if h.latest != nil {
		v.offer(h.latest)
	}
	h.views[v] = struct{}{}
	return v
}

func (h *frameHub) closeViews() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for v := range h.views {
		v.closeLocked()
	}
	clear(h.views)
}

func (h *frameHub) remove(v *FrameView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.views[v]; ok {
		delete(h.views, v)
		v.closeLocked()
	}
}

// FrameView is one consumer's view of a video track. Frames delivers new
// frames, dropping the oldest when the consumer falls behind. The channel is
// closed when the view or the track is closed.
type FrameView struct {
	hub *frameHub
	ch  chan *mediacapture.VideoFrame

	mu      sync.Mutex
	current *mediacapture.VideoFrame

	// Guarded by hub.mu.
	closed bool
}

// Frames returns the frame channel.
func (v *FrameView) Frames() <-chan *mediacapture.VideoFrame { return v.ch }

// Current returns the latest frame this view has seen, or nil.
func (v *FrameView) Current() *mediacapture.VideoFrame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Close detaches the view from the track. Safe to repeat.
func (v *FrameView) Close() {
	v.hub.remove(v)
}

// offer is called with hub.mu held; the hub is the only sender.
func (v *FrameView) offer(frame *mediacapture.VideoFrame) {
	v.mu.Lock()
	v.current = frame
	v.mu.Unlock()

	select {
	case v.ch <- frame:
	default:
		select {
		case <-v.ch:
		default:
		}
		select {
		case v.ch <- frame:
		default:
		}
	}
}

func (v *FrameView) closeLocked() {
	if !v.closed {
		v.closed = true
		close(v.ch)
	}
}
