package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thesyncim/mediacapture"
)

func i420Frame(w, h int, luma byte) *mediacapture.VideoFrame {
	y := make([]byte, w*h)
	for i := range y {
		y[i] = luma
	}
	cw, ch := (w+1)/2, (h+1)/2
	u := make([]byte, cw*ch)
	v := make([]byte, cw*ch)
	for i := range u {
		u[i], v[i] = 128, 128
	}
	return &mediacapture.VideoFrame{
		Data:   [][]byte{y, u, v},
		Stride: []int{w, cw, cw},
		Width:  w,
		Height: h,
		Format: mediacapture.PixelFormatI420,
	}
}

type fakeVideoTrack struct {
	*mediacapture.BaseTrack
	frames   chan *mediacapture.VideoFrame
	closed   chan struct{}
	once     sync.Once
	closes   atomic.Int32
	settings mediacapture.VideoTrackSettings
	log      *callLog
}

func newFakeVideoTrack() *fakeVideoTrack {
	return &fakeVideoTrack{
		BaseTrack: mediacapture.NewBaseTrack("video", "fake video", mediacapture.RTPCodecTypeVideo),
		frames:    make(chan *mediacapture.VideoFrame, 64),
		closed:    make(chan struct{}),
	}
}

func (t *fakeVideoTrack) ReadFrame(ctx context.Context) (*mediacapture.VideoFrame, error) {
	select {
	case f := <-t.frames:
		return f, nil
	case <-t.closed:
		return nil, mediacapture.ErrTrackEnded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeVideoTrack) Settings() mediacapture.VideoTrackSettings { return t.settings }

func (t *fakeVideoTrack) Close() error {
	t.log.add("release")
	t.closes.Add(1)
	t.MarkStopped()
	t.once.Do(func() { close(t.closed) })
	return nil
}

// revoke ends the track from the source side.
func (t *fakeVideoTrack) revoke() {
	t.End()
	t.once.Do(func() { close(t.closed) })
}

type fakeAudioTrack struct {
	*mediacapture.BaseTrack
	samples chan *mediacapture.AudioSamples
	closed  chan struct{}
	once    sync.Once
	closes  atomic.Int32
}

func newFakeAudioTrack() *fakeAudioTrack {
	return &fakeAudioTrack{
		BaseTrack: mediacapture.NewBaseTrack("audio", "fake audio", mediacapture.RTPCodecTypeAudio),
		samples:   make(chan *mediacapture.AudioSamples, 64),
		closed:    make(chan struct{}),
	}
}

func (t *fakeAudioTrack) ReadSamples(ctx context.Context) (*mediacapture.AudioSamples, error) {
	select {
	case s := <-t.samples:
		return s, nil
	case <-t.closed:
		return nil, mediacapture.ErrTrackEnded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeAudioTrack) Settings() mediacapture.AudioTrackSettings {
	return mediacapture.AudioTrackSettings{SampleRate: 48000, ChannelCount: 2}
}

func (t *fakeAudioTrack) Close() error {
	t.closes.Add(1)
	t.MarkStopped()
	t.once.Do(func() { close(t.closed) })
	return nil
}

// pcm returns 20 ms of stereo 48 kHz silence.
func pcm() *mediacapture.AudioSamples {
	return &mediacapture.AudioSamples{
		Data:        make([]byte, 960*2*2),
		SampleRate:  48000,
		Channels:    2,
		SampleCount: 960,
		Format:      mediacapture.AudioFormatS16,
	}
}

type fakeMedia struct {
	stream *mediacapture.SimpleMediaStream
	video  *fakeVideoTrack
	audio  *fakeAudioTrack
}

func newFakeMedia(video, audio bool) *fakeMedia {
	m := &fakeMedia{stream: mediacapture.NewMediaStream("fake-stream")}
	if video {
		m.video = newFakeVideoTrack()
		m.stream.AddTrack(m.video)
	}
	if audio {
		m.audio = newFakeAudioTrack()
		m.stream.AddTrack(m.audio)
	}
	return m
}

func (m *fakeMedia) newStream(t *testing.T, mode Mode) *Stream {
	t.Helper()
	s, err := NewStream(m.stream, mode)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	return s
}

// releases reports how many times each track was closed, taking the max.
func (m *fakeMedia) releases() int32 {
	var n int32
	if m.video != nil {
		n = max(n, m.video.closes.Load())
	}
	if m.audio != nil {
		n = max(n, m.audio.closes.Load())
	}
	return n
}

// fakeAcquirer hands out streams built from a fresh fakeMedia per call.
type fakeAcquirer struct {
	mu     sync.Mutex
	media  []*fakeMedia
	err    error
	grant  chan struct{} // When set, Acquire waits for it, ignoring ctx
	block  bool          // When set, Acquire waits for ctx
	calls  atomic.Int32
	called chan struct{}
	log    *callLog
}

func (a *fakeAcquirer) Acquire(ctx context.Context, mode Mode) (*Stream, error) {
	a.calls.Add(1)
	if a.called != nil {
		select {
		case a.called <- struct{}{}:
		default:
		}
	}
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.grant != nil {
		<-a.grant
	}
	if a.err != nil {
		return nil, a.err
	}
	d := mode.Descriptor()
	m := newFakeMedia(d.Video, d.Audio)
	if m.video != nil {
		m.video.log = a.log
	}
	s, err := NewStream(m.stream, mode)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.media = append(a.media, m)
	a.mu.Unlock()
	return s, nil
}

func (a *fakeAcquirer) last() *fakeMedia {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.media) == 0 {
		return nil
	}
	return a.media[len(a.media)-1]
}

// callLog records teardown order across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeRecorder delivers whatever the test emits.
type fakeRecorder struct {
	log      *callLog
	startErr error
	stopErr  error
	panics   bool

	mu  sync.Mutex
	out chan Segment
	seq int

	// pending is delivered by Stop, as a real recorder flushes its tail.
	pending [][]byte
	stops   atomic.Int32
}

func (r *fakeRecorder) Start(ctx context.Context, src *Stream) (<-chan Segment, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = make(chan Segment, 64)
	return r.out, nil
}

func (r *fakeRecorder) emit(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out <- Segment{Seq: r.seq, Data: data}
	r.seq++
}

func (r *fakeRecorder) Stop() error {
	r.log.add("recorder")
	if r.stops.Add(1) > 1 {
		return nil
	}
	if r.panics {
		panic("recorder stop")
	}
	for _, p := range r.pending {
		r.emit(p)
	}
	r.mu.Lock()
	if r.out != nil {
		close(r.out)
	}
	r.mu.Unlock()
	return r.stopErr
}

type fakeSampler struct {
	log *callLog

	mu    sync.Mutex
	out   chan Snapshot
	index int
	stops atomic.Int32
}

func (s *fakeSampler) Start(ctx context.Context, src *Stream) (<-chan Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = make(chan Snapshot, 64)
	return s.out, nil
}

func (s *fakeSampler) emit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out <- Snapshot{Index: s.index, Image: []byte{0x89, 'P', 'N', 'G'}, Width: 64, Height: 48}
	s.index++
}

func (s *fakeSampler) Stop() error {
	s.log.add("sampler")
	if s.stops.Add(1) > 1 {
		return nil
	}
	s.mu.Lock()
	if s.out != nil {
		close(s.out)
	}
	s.mu.Unlock()
	return nil
}

// manualTicker fires only when the test says so.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker not consumed")
	}
}

type stubVideoEncoder struct {
	codec  mediacapture.VideoCodec
	n      int
	closed atomic.Bool
}

func (e *stubVideoEncoder) Encode(f *mediacapture.VideoFrame) (*mediacapture.EncodedFrame, error) {
	ft := mediacapture.FrameTypeDelta
	if e.n == 0 {
		ft = mediacapture.FrameTypeKey
	}
	e.n++
	return &mediacapture.EncodedFrame{Data: []byte{0x9d, 0x01, 0x2a, byte(e.n)}, FrameType: ft}, nil
}

func (e *stubVideoEncoder) RequestKeyframe()               {}
func (e *stubVideoEncoder) Codec() mediacapture.VideoCodec { return e.codec }
func (e *stubVideoEncoder) Close() error                   { e.closed.Store(true); return nil }

type stubAudioEncoder struct {
	cfg    mediacapture.AudioEncoderConfig
	closed atomic.Bool
}

func (e *stubAudioEncoder) Encode(s *mediacapture.AudioSamples) (*mediacapture.EncodedAudio, error) {
	if len(s.Data) != e.cfg.SampleRate*e.cfg.FrameSizeMs/1000*e.cfg.Channels*2 {
		return nil, errors.New("partial frame")
	}
	return &mediacapture.EncodedAudio{Data: []byte{0xfc, 0xff, 0xfe}, Duration: uint32(s.SampleCount)}, nil
}

func (e *stubAudioEncoder) Codec() mediacapture.AudioCodec { return mediacapture.AudioCodecOpus }
func (e *stubAudioEncoder) Close() error                   { e.closed.Store(true); return nil }

// stubEncoders builds stub encoders and remembers them.
type stubEncoders struct {
	videoErr error
	audioErr error

	mu    sync.Mutex
	video []*stubVideoEncoder
	audio []*stubAudioEncoder
}

func (s *stubEncoders) NewVideoEncoder(c mediacapture.VideoEncoderConfig) (mediacapture.VideoEncoder, error) {
	if s.videoErr != nil {
		return nil, s.videoErr
	}
	e := &stubVideoEncoder{codec: c.Codec}
	s.mu.Lock()
	s.video = append(s.video, e)
	s.mu.Unlock()
	return e, nil
}

func (s *stubEncoders) NewAudioEncoder(c mediacapture.AudioEncoderConfig) (mediacapture.AudioEncoder, error) {
	if s.audioErr != nil {
		return nil, s.audioErr
	}
	e := &stubAudioEncoder{cfg: c}
	s.mu.Lock()
	s.audio = append(s.audio, e)
	s.mu.Unlock()
	return e, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
