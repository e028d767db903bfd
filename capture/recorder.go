package capture

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/internal/logging"
)

const (
	// DefaultTimeslice is how often the recorder cuts a segment.
	DefaultTimeslice = time.Second

	// DefaultFirstFrameTimeout bounds the wait for a video resolution.
	DefaultFirstFrameTimeout = 5 * time.Second
)

// Segment is one chunk of the encoded container, in delivery order.
type Segment struct {
	Seq  int
	Data []byte
	At   time.Time
}

// EncoderFactory creates encoders for the recorder.
type EncoderFactory interface {
	NewVideoEncoder(config mediacapture.VideoEncoderConfig) (mediacapture.VideoEncoder, error)
	NewAudioEncoder(config mediacapture.AudioEncoderConfig) (mediacapture.AudioEncoder, error)
}

type registryEncoders struct{}

func (registryEncoders) NewVideoEncoder(c mediacapture.VideoEncoderConfig) (mediacapture.VideoEncoder, error) {
	return mediacapture.NewVideoEncoder(c)
}

func (registryEncoders) NewAudioEncoder(c mediacapture.AudioEncoderConfig) (mediacapture.AudioEncoder, error) {
	return mediacapture.NewAudioEncoder(c)
}

// RegistryEncoders resolves encoders through the mediacapture registry.
var RegistryEncoders EncoderFactory = registryEncoders{}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Mode      Mode
	Timeslice time.Duration // Default 1s

	// Video codec, frame rate and bitrate. Width and Height come from the
	// first frame.
	Video mediacapture.VideoEncoderConfig
	// Audio bitrate and frame size. Sample rate and channels come from the
	// track.
	Audio mediacapture.AudioEncoderConfig

	FirstFrameTimeout time.Duration

	Encoders  EncoderFactory
	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
	Logger    *slog.Logger
}

// RecorderStats counts recorder output.
type RecorderStats struct {
	Segments     int64
	Bytes        int64
	Dropped      int64 // Zero-size cuts
	VideoFrames  int64
	AudioPackets int64
}

// Recorder encodes a stream into a container and pushes it out as segments.
// A Recorder runs once.
type Recorder struct {
	opts RecorderOptions
	log  *slog.Logger

	mu      sync.Mutex
	started bool
	out     chan Segment

	cancel     context.CancelFunc
	pumps      sync.WaitGroup
	cutterStop chan struct{}
	cutterDone chan struct{}
	buf        *segmentBuffer
	mux        container
	closers    []func() error
	start      time.Time
	seq        int
	cuts       int

	stopOnce sync.Once
	stopErr  error

	segments, bytes, dropped, videoFrames, audioPackets atomic.Int64
}

// NewRecorder creates a Recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.FirstFrameTimeout <= 0 {
		opts.FirstFrameTimeout = DefaultFirstFrameTimeout
	}
	if opts.Video.Codec == mediacapture.VideoCodecUnknown {
		opts.Video.Codec = mediacapture.VideoCodecVP8
	}
	if opts.Audio.Codec == mediacapture.AudioCodecUnknown {
		opts.Audio.Codec = mediacapture.AudioCodecOpus
	}
	if opts.Video.FPS <= 0 {
		opts.Video.FPS = 30
	}
	if opts.Video.BitrateBps <= 0 {
		opts.Video.BitrateBps = 1_500_000
	}
	if opts.Audio.FrameSizeMs <= 0 {
		opts.Audio.FrameSizeMs = 20
	}
	if opts.Audio.BitrateBps <= 0 {
		opts.Audio.BitrateBps = 64_000
	}
	if opts.Encoders == nil {
		opts.Encoders = RegistryEncoders
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.L("recorder")
	}
	return &Recorder{opts: opts, log: log}
}

// Start begins recording src. Segments arrive in order on the returned
// channel, which is closed after Stop has flushed the container. ctx bounds
// start-up only, which includes waiting for the first video frame.
//
// Any encoder or container setup failure is reported as
// ErrRecordingUnsupported.
func (r *Recorder) Start(ctx context.Context, src *Stream) (<-chan Segment, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: recorder already started", ErrInvalidState)
	}
	r.started = true
	r.mu.Unlock()

	d := r.opts.Mode.Descriptor()
	var (
		view    *FrameView
		first   *mediacapture.VideoFrame
		venc    mediacapture.VideoEncoder
		aenc    mediacapture.AudioEncoder
		acfg    mediacapture.AudioEncoderConfig
		closers []func() error
	)
	fail := func(err error) (<-chan Segment, error) {
		if view != nil {
			view.Close()
		}
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	if d.Video {
		if !src.HasVideo() {
			return fail(fmt.Errorf("%w: no video track", ErrRecordingUnsupported))
		}
		view = src.NewVideoView()
		var err error
		if first, err = r.waitFirstFrame(ctx, view); err != nil {
			return fail(err)
		}
		cfg := r.opts.Video
		cfg.Width, cfg.Height = first.Width, first.Height
		if venc, err = r.opts.Encoders.NewVideoEncoder(cfg); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrRecordingUnsupported, err))
		}
		closers = append(closers, venc.Close)
	}

	audio := src.Audio()
	if audio != nil {
		settings := audio.Settings()
		acfg = r.opts.Audio
		acfg.SampleRate = cmp.Or(settings.SampleRate, 48000)
		acfg.Channels = cmp.Or(settings.ChannelCount, 1)
		var err error
		if aenc, err = r.opts.Encoders.NewAudioEncoder(acfg); err != nil {
			if d.Audio {
				return fail(fmt.Errorf("%w: %w", ErrRecordingUnsupported, err))
			}
			r.log.Warn("recording without audio", logging.KeyError, err)
			audio, aenc = nil, nil
		} else {
			closers = append(closers, aenc.Close)
		}
	}
	if venc == nil && aenc == nil {
		return fail(fmt.Errorf("%w: nothing to encode", ErrRecordingUnsupported))
	}

	buf := newSegmentBuffer()
	var mux container
	var err error
	if d.MIMEType == MIMEOgg {
		mux, err = newOggContainer(buf, acfg.SampleRate, acfg.Channels)
	} else {
		var vt *webmVideoTrack
		var at *webmAudioTrack
		if venc != nil {
			vt = &webmVideoTrack{Codec: venc.Codec(), Width: first.Width, Height: first.Height, FPS: r.opts.Video.FPS}
		}
		if aenc != nil {
			at = &webmAudioTrack{SampleRate: acfg.SampleRate, Channels: acfg.Channels}
		}
		mux, err = newWebMContainer(buf, vt, at)
	}
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRecordingUnsupported, err))
	}

	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
	r.buf = buf
	r.mux = mux
	r.closers = closers
	r.start = r.opts.Now()
	r.out = make(chan Segment, 16)
	r.cutterStop = make(chan struct{})
	r.cutterDone = make(chan struct{})

	if venc != nil {
		r.pumps.Add(1)
		go r.videoPump(runCtx, view, venc, first)
	}
	if aenc != nil {
		r.pumps.Add(1)
		go r.audioPump(runCtx, audio, aenc, acfg)
	}
	go r.cutLoop()

	r.log.Debug("recorder started",
		logging.KeyMode, r.opts.Mode.String(),
		"video", venc != nil,
		"audio", aenc != nil,
		"timeslice", r.opts.Timeslice,
	)
	return r.out, nil
}

// Stop halts encoding, flushes the container and delivers the final segment
// before closing the segment channel. It returns once the flush is complete.
// Safe to call more than once, or without a successful Start.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	running := r.out != nil
	r.mu.Unlock()
	if !running {
		return nil
	}

	r.stopOnce.Do(func() {
		r.cancel()
		r.pumps.Wait()

		errs := []error{r.mux.Close()}

		close(r.cutterStop)
		<-r.cutterDone
		r.cut()
		close(r.out)

		for _, c := range r.closers {
			errs = append(errs, c())
		}
		r.stopErr = errors.Join(errs...)
	})
	return r.stopErr
}

// Stats returns recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Segments:     r.segments.Load(),
		Bytes:        r.bytes.Load(),
		Dropped:      r.dropped.Load(),
		VideoFrames:  r.videoFrames.Load(),
		AudioPackets: r.audioPackets.Load(),
	}
}

func (r *Recorder) waitFirstFrame(ctx context.Context, view *FrameView) (*mediacapture.VideoFrame, error) {
	timer := time.NewTimer(r.opts.FirstFrameTimeout)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-view.Frames():
			if !ok {
				return nil, fmt.Errorf("%w: video track ended before its first frame", ErrRecordingUnsupported)
			}
			if f.HasDimensions() {
				return f, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("%w: no video frame within %s", ErrRecordingUnsupported, r.opts.FirstFrameTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Recorder) since() time.Duration {
	return max(r.opts.Now().Sub(r.start), 0)
}

func (r *Recorder) videoPump(ctx context.Context, view *FrameView, enc mediacapture.VideoEncoder, first *mediacapture.VideoFrame) {
	defer r.pumps.Done()
	defer view.Close()

	width, height := first.Width, first.Height
	write := func(f *mediacapture.VideoFrame) {
		if f.Width != width || f.Height != height {
			r.log.Debug("video frame skipped", "reason", "resolution changed", "width", f.Width, "height", f.Height)
			return
		}
		out, err := enc.Encode(f)
		if err != nil {
			r.log.Debug("video encode failed", logging.KeyError, err)
			return
		}
		if out == nil || len(out.Data) == 0 {
			return
		}
		if err := r.mux.WriteVideo(out, r.since()); err != nil {
			r.log.Warn("video mux failed", logging.KeyError, err)
			return
		}
		r.videoFrames.Add(1)
	}

	write(first)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-view.Frames():
			if !ok {
				return
			}
			write(f)
		}
	}
}

func (r *Recorder) audioPump(ctx context.Context, track SampleReader, enc mediacapture.AudioEncoder, cfg mediacapture.AudioEncoderConfig) {
	defer r.pumps.Done()

	frameSamples := cfg.SampleRate * cfg.FrameSizeMs / 1000
	frameBytes := frameSamples * cfg.Channels * 2
	var pending []byte
	var encoded int64

	for {
		samples, err := track.ReadSamples(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, mediacapture.ErrTrackEnded) {
				r.log.Warn("audio read failed", logging.KeyError, err)
			}
			return
		}
		if samples.Format != mediacapture.AudioFormatS16 {
			r.log.Debug("audio skipped", "reason", "format", "format", samples.Format.String())
			continue
		}

		pending = append(pending, samples.Data...)
		for len(pending) >= frameBytes {
			ts := time.Duration(encoded) * time.Second / time.Duration(cfg.SampleRate)
			out, err := enc.Encode(&mediacapture.AudioSamples{
				Data:        pending[:frameBytes],
				SampleRate:  cfg.SampleRate,
				Channels:    cfg.Channels,
				SampleCount: frameSamples,
				Format:      mediacapture.AudioFormatS16,
				Timestamp:   ts.Nanoseconds(),
			})
			pending = pending[frameBytes:]
			encoded += int64(frameSamples)
			if err != nil {
				r.log.Debug("audio encode failed", logging.KeyError, err)
				continue
			}
			if out == nil || len(out.Data) == 0 {
				continue
			}
			if err := r.mux.WriteAudio(out, ts); err != nil {
				r.log.Warn("audio mux failed", logging.KeyError, err)
				continue
			}
			r.audioPackets.Add(1)
		}
	}
}

func (r *Recorder) cutLoop() {
	defer close(r.cutterDone)
	ticker := r.opts.NewTicker(r.opts.Timeslice)
	defer ticker.Stop()
	for {
		select {
		case <-r.cutterStop:
			return
		case <-ticker.C():
			r.cut()
		}
	}
}

// cut delivers everything muxed since the previous cut. Zero-size cuts are
// dropped; they mean the encoders produced nothing during the slice.
func (r *Recorder) cut() {
	r.cuts++
	data := r.buf.take()
	if len(data) == 0 {
		r.dropped.Add(1)
		r.log.Debug("segment dropped", "cut", r.cuts, "reason", "empty")
		return
	}
	seg := Segment{Seq: r.seq, Data: data, At: r.opts.Now()}
	r.seq++
	r.segments.Add(1)
	r.bytes.Add(int64(len(data)))
	r.out <- seg
}
