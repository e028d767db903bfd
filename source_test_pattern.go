package mediacapture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars  PatternType = iota // Eight vertical bars
	PatternMovingBox                     // White box circling on black
	PatternSolidColor                    // Single flat color
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternMovingBox:
		return "MovingBox"
	case PatternSolidColor:
		return "SolidColor"
	default:
		return "Unknown"
	}
}

// TestPatternConfig configures a test pattern source.
type TestPatternConfig struct {
	Width   int         // default 1280
	Height  int         // default 720
	FPS     int         // default 30
	Pattern PatternType // default ColorBars

	SolidR, SolidG, SolidB uint8
}

// DefaultTestPatternConfig returns a default test pattern configuration.
func DefaultTestPatternConfig() TestPatternConfig {
	return TestPatternConfig{Width: 1280, Height: 720, FPS: 30, Pattern: PatternColorBars}
}

// TestPatternSource generates synthetic I420 frames on a ticker.
// Every frame owns its buffer, so readers may hold frames across reads.
type TestPatternSource struct {
	config        TestPatternConfig
	frameDuration time.Duration

	frameCh chan *VideoFrame
	cancel  context.CancelFunc
	doneCh  chan struct{}
	closed  bool
	mu      sync.Mutex
}

// NewTestPatternSource creates a new test pattern video source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	return &TestPatternSource{
		config:        config,
		frameDuration: time.Second / time.Duration(config.FPS),
		frameCh:       make(chan *VideoFrame, 2),
	}
}

// Start begins generating frames.
func (s *TestPatternSource) Start(ctx context.Context) error {
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

// Stop stops generating frames and waits for the generator to exit.
func (s *TestPatternSource) Stop() error {
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
func (s *TestPatternSource) Close() error {
	_ = s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frameCh)
	}
	return nil
}

// ReadFrame blocks for the next frame.
func (s *TestPatternSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frameCh:
		if !ok {
			return nil, ErrSourceClosed
		}
		return frame, nil
	}
}

// Config returns the source configuration.
func (s *TestPatternSource) Config() SourceConfig {
	return SourceConfig{
		Width:      s.config.Width,
		Height:     s.config.Height,
		FPS:        s.config.FPS,
		Format:     PixelFormatI420,
		SourceType: SourceTypeTestPattern,
	}
}

func (s *TestPatternSource) generateLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	start := time.Now()
	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			frame := s.render(n)
			frame.Timestamp = time.Since(start).Nanoseconds()

			select {
			case s.frameCh <- frame:
			default:
				// Reader is behind; drop the oldest queued frame.
				select {
				case <-s.frameCh:
				default:
				}
				select {
				case s.frameCh <- frame:
				default:
				}
			}
		}
	}
}

// render draws frame n into a newly allocated I420 buffer.
func (s *TestPatternSource) render(n uint64) *VideoFrame {
	w, h := s.config.Width, s.config.Height
	cw, ch := (w+1)/2, (h+1)/2
	buf := make([]byte, w*h+cw*ch*2)
	y, u, v := buf[:w*h], buf[w*h:w*h+cw*ch], buf[w*h+cw*ch:]

	switch s.config.Pattern {
	case PatternMovingBox:
		fillPlane(y, 16)
		fillPlane(u, 128)
		fillPlane(v, 128)
		drawBox(y, w, h, n)
	case PatternSolidColor:
		yv, uv, vv := rgbToYUV(s.config.SolidR, s.config.SolidG, s.config.SolidB)
		fillPlane(y, yv)
		fillPlane(u, uv)
		fillPlane(v, vv)
	default:
		drawColorBars(y, u, v, w, h, cw)
	}

	return &VideoFrame{
		Data:     [][]byte{y, u, v},
		Stride:   []int{w, cw, cw},
		Width:    w,
		Height:   h,
		Format:   PixelFormatI420,
		Duration: s.frameDuration.Nanoseconds(),
	}
}

var colorBarsRGB = [8][3]uint8{
	{192, 192, 192},
	{192, 192, 0},
	{0, 192, 192},
	{0, 192, 0},
	{192, 0, 192},
	{192, 0, 0},
	{0, 0, 192},
	{16, 16, 16},
}

func drawColorBars(y, u, v []byte, w, h, cw int) {
	barWidth := max(w/8, 1)
	for col := 0; col < w; col++ {
		bar := min(col/barWidth, 7)
		rgb := colorBarsRGB[bar]
		yv, uv, vv := rgbToYUV(rgb[0], rgb[1], rgb[2])
		for row := 0; row < h; row++ {
			y[row*w+col] = yv
			if col%2 == 0 && row%2 == 0 {
				u[(row/2)*cw+col/2] = uv
				v[(row/2)*cw+col/2] = vv
			}
		}
	}
}

func drawBox(y []byte, w, h int, n uint64) {
	size := max(min(w, h)/7, 2)
	radius := float64(min(w, h)) / 4
	angle := float64(n) * 0.05
	bx := w/2 + int(radius*math.Cos(angle)) - size/2
	by := h/2 + int(radius*math.Sin(angle)) - size/2

	for row := max(by, 0); row < min(by+size, h); row++ {
		for col := max(bx, 0); col < min(bx+size, w); col++ {
			y[row*w+col] = 235
		}
	}
}

func fillPlane(p []byte, v byte) {
	for i := range p {
		p[i] = v
	}
}

// rgbToYUV converts RGB to studio-swing BT.601 YUV.
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	ri, gi, bi := int(r), int(g), int(b)
	y = clip8((66*ri+129*gi+25*bi+128)>>8 + 16)
	u = clip8((-38*ri-74*gi+112*bi+128)>>8 + 128)
	v = clip8((112*ri-94*gi-18*bi+128)>>8 + 128)
	return
}
