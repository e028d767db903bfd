package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/internal/logging"
)

// DefaultSnapshotInterval is the sampling period when none is configured.
const DefaultSnapshotInterval = 5 * time.Second

// Snapshot is one PNG still taken from the video track at native resolution.
type Snapshot struct {
	Index      int
	Image      []byte // PNG
	Width      int
	Height     int
	CapturedAt time.Time
	Offset     time.Duration // Since sampling started
}

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	Interval time.Duration // Default 5s

	// FreshTarget opens a new view of the track for every tick instead of
	// reading one long-lived view.
	FreshTarget bool

	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
	Logger    *slog.Logger
}

// SamplerStats counts sampler ticks.
type SamplerStats struct {
	Taken   int64
	Skipped int64
}

// Sampler periodically encodes the current video frame to PNG. A tick with
// no frame, or a frame without dimensions, is skipped without error.
type Sampler struct {
	opts SamplerOptions
	log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	taken   atomic.Int64
	skipped atomic.Int64
}

// NewSampler creates a Sampler.
func NewSampler(opts SamplerOptions) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSnapshotInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.L("sampler")
	}
	return &Sampler{opts: opts, log: log}
}

// Start begins sampling src. Snapshots arrive in capture order on the
// returned channel, which is closed once the sampler stops. ctx only bounds
// start-up; call Stop to end sampling.
func (s *Sampler) Start(ctx context.Context, src *Stream) (<-chan Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !src.HasVideo() {
		return nil, fmt.Errorf("sampler needs a video track")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, fmt.Errorf("%w: sampler already running", ErrInvalidState)
	}

	var view *FrameView
	if !s.opts.FreshTarget {
		view = src.NewVideoView()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	out := make(chan Snapshot, 4)
	go s.loop(runCtx, src, view, out, s.done)
	return out, nil
}

// Stop ends sampling and waits for the loop to exit. Calling Stop when not
// started, or more than once, is a no-op.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Stats returns tick counters.
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{Taken: s.taken.Load(), Skipped: s.skipped.Load()}
}

func (s *Sampler) loop(ctx context.Context, src *Stream, view *FrameView, out chan<- Snapshot, done chan struct{}) {
	defer close(done)
	defer close(out)
	if view != nil {
		defer view.Close()
	}

	ticker := s.opts.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	start := s.opts.Now()
	index := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		frame := s.grab(ctx, src, view)
		if !frame.HasDimensions() {
			s.skipped.Add(1)
			s.log.Debug("snapshot skipped", "reason", "no dimensions")
			continue
		}

		img, err := frame.ToRGBA()
		if err != nil {
			s.skipped.Add(1)
			s.log.Debug("snapshot skipped", "reason", err.Error())
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			s.skipped.Add(1)
			s.log.Warn("snapshot encode failed", logging.KeyError, err)
			continue
		}

		now := s.opts.Now()
		snap := Snapshot{
			Index:      index,
			Image:      buf.Bytes(),
			Width:      frame.Width,
			Height:     frame.Height,
			CapturedAt: now,
			Offset:     now.Sub(start),
		}
		index++
		s.taken.Add(1)

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

// grab returns the frame to sample for this tick, or nil.
func (s *Sampler) grab(ctx context.Context, src *Stream, view *FrameView) *mediacapture.VideoFrame {
	if view != nil {
		return view.Current()
	}

	fresh := src.NewVideoView()
	defer fresh.Close()
	if f := fresh.Current(); f != nil {
		return f
	}

	// Nothing decoded yet; wait for the first frame, at most one interval.
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()
	select {
	case f := <-fresh.Frames():
		return f
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}
