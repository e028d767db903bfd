package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/internal/logging"
)

var ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}

func newTestRecorder(mode Mode, enc EncoderFactory, ticker *manualTicker) *Recorder {
	return NewRecorder(RecorderOptions{
		Mode:              mode,
		Encoders:          enc,
		FirstFrameTimeout: time.Second,
		NewTicker:         func(time.Duration) Ticker { return ticker },
		Logger:            logging.Discard(),
	})
}

func collect(t *testing.T, ch <-chan Segment) []Segment {
	t.Helper()
	var segs []Segment
	timeout := time.After(3 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return segs
			}
			segs = append(segs, s)
		case <-timeout:
			t.Fatal("segment channel never closed")
		}
	}
}

func TestRecorder_MicOnlyOgg(t *testing.T) {
	m := newFakeMedia(false, true)
	s := m.newStream(t, ModeMicOnly)
	defer s.release()

	enc := &stubEncoders{}
	ticker := newManualTicker()
	rec := newTestRecorder(ModeMicOnly, enc, ticker)
	out, err := rec.Start(context.Background(), s)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The Ogg headers are written up front and form the first segment.
	ticker.tick(t)
	first := <-out
	if first.Seq != 0 || !bytes.HasPrefix(first.Data, []byte("OggS")) {
		t.Fatalf("first segment seq=%d data=%q", first.Seq, first.Data[:min(8, len(first.Data))])
	}

	// Nothing new: the cut is dropped.
	ticker.tick(t)
	waitFor(t, "dropped cut", func() bool { return rec.Stats().Dropped == 1 })

	// 30 ms of audio in two reads; one 20 ms packet is encoded.
	half := pcm()
	half.Data = half.Data[:len(half.Data)*3/4]
	m.audio.samples <- half
	m.audio.samples <- half
	waitFor(t, "audio packets", func() bool { return rec.Stats().AudioPackets == 1 })

	ticker.tick(t)
	second := <-out
	if second.Seq != 1 || !bytes.HasPrefix(second.Data, []byte("OggS")) {
		t.Errorf("second segment seq=%d", second.Seq)
	}

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	collect(t, out)
	if err := rec.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	if !enc.audio[0].closed.Load() {
		t.Error("audio encoder not closed")
	}
	if got := m.audio.closes.Load(); got != 0 {
		t.Errorf("recorder closed the track %d times", got)
	}
	st := rec.Stats()
	if st.Segments != 2 || st.Bytes != int64(len(first.Data)+len(second.Data)) {
		t.Errorf("stats = %+v", st)
	}
}

func TestRecorder_CameraWebM(t *testing.T) {
	m := newFakeMedia(true, true)
	s := m.newStream(t, ModeCameraMic)
	defer s.release()

	enc := &stubEncoders{}
	ticker := newManualTicker()
	rec := newTestRecorder(ModeCameraMic, enc, ticker)

	m.video.frames <- i420Frame(64, 48, 100)
	out, err := rec.Start(context.Background(), s)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(enc.video) != 1 || enc.video[0].codec != mediacapture.VideoCodecVP8 {
		t.Fatalf("video encoders = %+v", enc.video)
	}

	m.video.frames <- i420Frame(64, 48, 101)
	m.video.frames <- i420Frame(32, 32, 0) // Resolution change is skipped
	m.audio.samples <- pcm()
	waitFor(t, "frames", func() bool {
		st := rec.Stats()
		return st.VideoFrames >= 1 && st.AudioPackets >= 1
	})

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	segs := collect(t, out)
	if len(segs) == 0 {
		t.Fatal("no segments after stop")
	}
	var payload []byte
	for i, seg := range segs {
		if seg.Seq != i {
			t.Errorf("segment %d has seq %d", i, seg.Seq)
		}
		if len(seg.Data) == 0 {
			t.Errorf("segment %d is empty", i)
		}
		payload = append(payload, seg.Data...)
	}
	if !bytes.HasPrefix(payload, ebmlMagic) {
		t.Errorf("payload does not start with an EBML header: % x", payload[:min(4, len(payload))])
	}
	if !bytes.Contains(payload, []byte("V_VP8")) || !bytes.Contains(payload, []byte("A_OPUS")) {
		t.Error("payload lacks VP8/Opus track entries")
	}
	if !enc.video[0].closed.Load() || !enc.audio[0].closed.Load() {
		t.Error("encoders not closed")
	}
}

func TestRecorder_ScreenWithoutAudio(t *testing.T) {
	m := newFakeMedia(true, false)
	s := m.newStream(t, ModeScreen)
	defer s.release()

	enc := &stubEncoders{}
	rec := newTestRecorder(ModeScreen, enc, newManualTicker())
	m.video.frames <- i420Frame(64, 48, 100)
	out, err := rec.Start(context.Background(), s)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "frame", func() bool { return rec.Stats().VideoFrames >= 1 })
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	segs := collect(t, out)
	if len(segs) == 0 || !bytes.HasPrefix(segs[0].Data, ebmlMagic) {
		t.Fatal("missing webm output")
	}
	if len(enc.audio) != 0 {
		t.Error("audio encoder created without an audio track")
	}
}

func TestRecorder_Unsupported(t *testing.T) {
	noEncoder := errors.New("codec not available")
	tests := []struct {
		name  string
		mode  Mode
		video bool
		audio bool
		enc   *stubEncoders
		frame bool
	}{
		{"no video encoder", ModeCameraMic, true, true, &stubEncoders{videoErr: noEncoder}, true},
		{"no audio encoder", ModeMicOnly, false, true, &stubEncoders{audioErr: noEncoder}, false},
		{"no first frame", ModeScreen, true, false, &stubEncoders{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMedia(tt.video, tt.audio)
			s := m.newStream(t, tt.mode)
			defer s.release()
			if tt.frame {
				m.video.frames <- i420Frame(16, 16, 0)
			}

			rec := NewRecorder(RecorderOptions{
				Mode:              tt.mode,
				Encoders:          tt.enc,
				FirstFrameTimeout: 50 * time.Millisecond,
				Logger:            logging.Discard(),
			})
			_, err := rec.Start(context.Background(), s)
			if !errors.Is(err, ErrRecordingUnsupported) {
				t.Fatalf("Start error = %v, want ErrRecordingUnsupported", err)
			}
			if err := rec.Stop(); err != nil {
				t.Errorf("Stop after failed Start: %v", err)
			}
		})
	}
}

func TestRecorder_ScreenAudioEncoderOptional(t *testing.T) {
	m := newFakeMedia(true, true)
	s := m.newStream(t, ModeScreen)
	defer s.release()

	enc := &stubEncoders{audioErr: errors.New("no opus")}
	rec := newTestRecorder(ModeScreen, enc, newManualTicker())
	m.video.frames <- i420Frame(16, 16, 0)
	if _, err := rec.Start(context.Background(), s); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRecorder_StartTwice(t *testing.T) {
	m := newFakeMedia(false, true)
	s := m.newStream(t, ModeMicOnly)
	defer s.release()

	rec := newTestRecorder(ModeMicOnly, &stubEncoders{}, newManualTicker())
	out, err := rec.Start(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Start(context.Background(), s); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start = %v, want ErrInvalidState", err)
	}
	_ = rec.Stop()
	collect(t, out)
}

func TestRecorder_Defaults(t *testing.T) {
	rec := NewRecorder(RecorderOptions{Mode: ModeCameraMic})
	o := rec.opts
	if o.Timeslice != DefaultTimeslice || o.FirstFrameTimeout != DefaultFirstFrameTimeout {
		t.Errorf("timeslice/timeout = %v/%v", o.Timeslice, o.FirstFrameTimeout)
	}
	if o.Video.Codec != mediacapture.VideoCodecVP8 || o.Audio.Codec != mediacapture.AudioCodecOpus {
		t.Errorf("codecs = %v/%v", o.Video.Codec, o.Audio.Codec)
	}
	if o.Audio.FrameSizeMs != 20 || o.Video.FPS != 30 {
		t.Errorf("frame size/fps = %d/%d", o.Audio.FrameSizeMs, o.Video.FPS)
	}
	if o.Encoders != RegistryEncoders {
		t.Error("encoders do not default to the registry")
	}
}
