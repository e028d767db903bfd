//go:build (darwin || linux) && !noopus

package mediacapture

import (
	"testing"
)

func TestOpusEncoder(t *testing.T) {
	if err := loadStreamOpus(); err != nil {
		t.Skipf("libstream_opus not available: %v", err)
	}
	t.Logf("libopus %s", OpusVersion())

	enc, err := NewAudioEncoder(DefaultAudioEncoderConfig(AudioCodecOpus))
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	defer enc.Close()

	tone := NewToneSource(DefaultToneConfig())
	for i := 0; i < 5; i++ {
		samples := tone.next()
		samples.Timestamp = int64(i) * 20_000_000
		out, err := enc.Encode(samples)
		if err != nil {
			t.Fatalf("Encode frame %d: %v", i, err)
		}
		if len(out.Data) == 0 {
			t.Errorf("frame %d encoded to zero bytes", i)
		}
		if out.Duration != 960 {
			t.Errorf("Duration = %d, want 960", out.Duration)
		}
		if want := uint32(i * 960); out.Timestamp != want {
			t.Errorf("Timestamp = %d, want %d", out.Timestamp, want)
		}
	}
}

func TestOpusEncoder_RejectsFloat(t *testing.T) {
	if err := loadStreamOpus(); err != nil {
		t.Skipf("libstream_opus not available: %v", err)
	}
	enc, err := NewAudioEncoder(DefaultAudioEncoderConfig(AudioCodecOpus))
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode(&AudioSamples{Data: make([]byte, 960*2*4), Format: AudioFormatF32}); err == nil {
		t.Error("Encode accepted F32 samples")
	}
}
