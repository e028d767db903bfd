package mediacapture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// ToneWaveform selects the signal a ToneSource generates.
type ToneWaveform int

const (
	ToneSine ToneWaveform = iota
	ToneSquare
	ToneSilence
)

func (w ToneWaveform) String() string {
	switch w {
	case ToneSine:
		return "Sine"
	case ToneSquare:
		return "Square"
	case ToneSilence:
		return "Silence"
	default:
		return "Unknown"
	}
}

// ToneConfig configures a ToneSource.
type ToneConfig struct {
	SampleRate int          // default 48000
	Channels   int          // default 2
	FrameSize  int          // samples per channel per frame, default 960 (20ms at 48kHz)
	Waveform   ToneWaveform // default Sine
	Frequency  float64      // Hz, default 440
	Amplitude  float64      // 0.0-1.0, default 0.5
}

// DefaultToneConfig returns a 440 Hz stereo tone at 48 kHz.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{SampleRate: 48000, Channels: 2, FrameSize: 960, Frequency: 440, Amplitude: 0.5}
}

// ToneSource generates S16LE PCM frames in real time.
type ToneSource struct {
	config        ToneConfig
	frameDuration time.Duration

	samplesCh chan *AudioSamples
	cancel    context.CancelFunc
	doneCh    chan struct{}
	closed    bool
	mu        sync.Mutex

	phase float64
}

// NewToneSource creates a new tone source.
func NewToneSource(config ToneConfig) *ToneSource {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameSize <= 0 {
		config.FrameSize = config.SampleRate / 50
	}
	if config.Frequency <= 0 {
		config.Frequency = 440
	}
	if config.Amplitude <= 0 {
		config.Amplitude = 0.5
	}
	config.Amplitude = min(config.Amplitude, 1)

	return &ToneSource{
		config:        config,
		frameDuration: time.Duration(config.FrameSize) * time.Second / time.Duration(config.SampleRate),
		samplesCh:     make(chan *AudioSamples, 4),
	}
}

// Start begins generating samples.
func (s *ToneSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	if s.cancel != nil {
		return fmt.Errorf("source already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	go s.generateLoop(ctx, s.doneCh)
	return nil
}

// Stop halts generation and waits for the generator to exit.
func (s *ToneSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.doneCh
	s.cancel, s.doneCh = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Close stops the source and unblocks pending readers.
func (s *ToneSource) Close() error {
	_ = s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.samplesCh)
	}
	return nil
}

// ReadSamples blocks for the next frame of samples.
func (s *ToneSource) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case samples, ok := <-s.samplesCh:
		if !ok {
			return nil, ErrSourceClosed
		}
		return samples, nil
	}
}

func (s *ToneSource) SampleRate() int { return s.config.SampleRate }
func (s *ToneSource) Channels() int   { return s.config.Channels }

func (s *ToneSource) generateLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples := s.next()
			samples.Timestamp = time.Since(start).Nanoseconds()
			select {
			case s.samplesCh <- samples:
			default:
				// Drop when the reader falls behind; the clock keeps going.
			}
		}
	}
}

// next renders one frame and advances the oscillator phase.
func (s *ToneSource) next() *AudioSamples {
	c := s.config
	data := make([]byte, c.FrameSize*c.Channels*2)
	step := 2 * math.Pi * c.Frequency / float64(c.SampleRate)

	for i := 0; i < c.FrameSize; i++ {
		var v float64
		switch c.Waveform {
		case ToneSine:
			v = math.Sin(s.phase)
		case ToneSquare:
			if math.Sin(s.phase) >= 0 {
				v = 1
			} else {
				v = -1
			}
		}
		sample := int16(v * c.Amplitude * math.MaxInt16)
		for ch := 0; ch < c.Channels; ch++ {
			binary.LittleEndian.PutUint16(data[(i*c.Channels+ch)*2:], uint16(sample))
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}

	return &AudioSamples{
		Data:        data,
		SampleRate:  c.SampleRate,
		Channels:    c.Channels,
		SampleCount: c.FrameSize,
		Format:      AudioFormatS16,
	}
}
