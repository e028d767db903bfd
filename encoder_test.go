package mediacapture

import (
	"errors"
	"testing"
)

type stubVideoEncoder struct{ codec VideoCodec }

func (e *stubVideoEncoder) Encode(*VideoFrame) (*EncodedFrame, error) { return nil, nil }
func (e *stubVideoEncoder) RequestKeyframe()                          {}
func (e *stubVideoEncoder) Codec() VideoCodec                         { return e.codec }
func (e *stubVideoEncoder) Close() error                              { return nil }

// isolateRegistry swaps in an empty registry and clears provider
// availability for the duration of the test.
func isolateRegistry(t *testing.T) {
	t.Helper()
	saved := globalEncoderRegistry
	var avail [providerCount]bool
	for p := range avail {
		avail[p] = providerAvailable[p].Load()
		providerAvailable[p].Store(false)
	}
	globalEncoderRegistry = newEncoderRegistry()
	t.Cleanup(func() {
		globalEncoderRegistry = saved
		for p := range avail {
			providerAvailable[p].Store(avail[p])
		}
	})
}

func TestNewVideoEncoder_NoProviders(t *testing.T) {
	isolateRegistry(t)

	_, err := NewVideoEncoder(DefaultVideoEncoderConfig(VideoCodecVP8, 320, 240))
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("err = %v, want ErrCodecNotSupported", err)
	}
	_, err = NewAudioEncoder(DefaultAudioEncoderConfig(AudioCodecOpus))
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("err = %v, want ErrCodecNotSupported", err)
	}
}

func TestNewVideoEncoder_ProviderUnavailable(t *testing.T) {
	isolateRegistry(t)

	registerVideoEncoder(VideoCodecVP8, ProviderLibvpx, func(c VideoEncoderConfig) (VideoEncoder, error) {
		return &stubVideoEncoder{codec: c.Codec}, nil
	})

	_, err := NewVideoEncoder(DefaultVideoEncoderConfig(VideoCodecVP8, 320, 240))
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("err = %v, want ErrProviderNotFound", err)
	}

	setProviderAvailable(ProviderLibvpx, true)
	enc, err := NewVideoEncoder(DefaultVideoEncoderConfig(VideoCodecVP8, 320, 240))
	if err != nil {
		t.Fatalf("NewVideoEncoder: %v", err)
	}
	if enc.Codec() != VideoCodecVP8 {
		t.Errorf("Codec = %v", enc.Codec())
	}
}

func TestEncoderAvailability(t *testing.T) {
	isolateRegistry(t)

	registerVideoEncoder(VideoCodecVP9, ProviderLibvpx, func(c VideoEncoderConfig) (VideoEncoder, error) {
		return &stubVideoEncoder{codec: c.Codec}, nil
	})
	setProviderAvailable(ProviderLibvpx, true)

	got := EncoderAvailability()
	if len(got) != 3 {
		t.Fatalf("EncoderAvailability() = %d entries, want 3", len(got))
	}
	want := map[string]bool{"VP8": false, "VP9": true, "Opus": false}
	for _, c := range got {
		if c.Available != want[c.Codec] {
			t.Errorf("%s available = %v, want %v", c.Codec, c.Available, want[c.Codec])
		}
	}
}

func TestEncoderAvailability_NamesMissingLibraries(t *testing.T) {
	isolateRegistry(t)

	want := map[string]string{"VP8": "libmedia_vpx", "VP9": "libmedia_vpx", "Opus": "libstream_opus"}
	for _, c := range EncoderAvailability() {
		if c.Available {
			t.Errorf("%s reported available with nothing registered", c.Codec)
		}
		if c.Provider == ProviderAuto || c.Provider.Library() != want[c.Codec] {
			t.Errorf("%s provider = %s (%q), want library %q", c.Codec, c.Provider, c.Provider.Library(), want[c.Codec])
		}
	}
}
