package mediacapture

import (
	"testing"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatI420, "I420"},
		{PixelFormatRGBA32, "RGBA32"},
		{PixelFormatBGRA32, "BGRA32"},
		{PixelFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudioFormat_BytesPerSample(t *testing.T) {
	tests := []struct {
		format AudioFormat
		want   int
	}{
		{AudioFormatS16, 2},
		{AudioFormatF32, 4},
		{AudioFormat(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerSample(); got != tt.want {
				t.Errorf("AudioFormat.BytesPerSample() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestI420Size(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1920, 1080, 1920*1080 + 2*(960*540)},
		{1280, 720, 1280*720 + 2*(640*360)},
		{3, 3, 9 + 2*(2*2)},
	}

	for _, tt := range tests {
		if got := I420Size(tt.width, tt.height); got != tt.want {
			t.Errorf("I420Size(%d, %d) = %d, want %d", tt.width, tt.height, got, tt.want)
		}
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	original := &VideoFrame{
		Data:      [][]byte{{1, 2, 3, 4}, {5}, {6}},
		Stride:    []int{2, 1, 1},
		Width:     2,
		Height:    2,
		Format:    PixelFormatI420,
		Timestamp: 42,
	}
	clone := original.Clone()

	original.Data[0][0] = 99
	original.Stride[0] = 7

	if clone.Data[0][0] != 1 {
		t.Error("Clone shares plane data with original")
	}
	if clone.Stride[0] != 2 {
		t.Error("Clone shares stride slice with original")
	}
	if clone.Timestamp != 42 || clone.Width != 2 {
		t.Errorf("Clone metadata = %+v", clone)
	}
}

func TestVideoFrame_HasDimensions(t *testing.T) {
	tests := []struct {
		name  string
		frame *VideoFrame
		want  bool
	}{
		{"nil", nil, false},
		{"zero", &VideoFrame{}, false},
		{"width only", &VideoFrame{Width: 640}, false},
		{"both", &VideoFrame{Width: 640, Height: 480}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.HasDimensions(); got != tt.want {
				t.Errorf("HasDimensions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func solidI420(w, h int, y, u, v byte) *VideoFrame {
	cw, ch := (w+1)/2, (h+1)/2
	planes := [][]byte{make([]byte, w*h), make([]byte, cw*ch), make([]byte, cw*ch)}
	fillPlane(planes[0], y)
	fillPlane(planes[1], u)
	fillPlane(planes[2], v)
	return &VideoFrame{Data: planes, Stride: []int{w, cw, cw}, Width: w, Height: h, Format: PixelFormatI420}
}

func TestVideoFrame_ToRGBA_I420(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
	}{
		{"white", 255, 255, 255},
		{"black", 0, 0, 0},
		{"red", 255, 0, 0},
		{"blue", 0, 0, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, u, v := rgbToYUV(tt.r, tt.g, tt.b)
			img, err := solidI420(5, 3, y, u, v).ToRGBA()
			if err != nil {
				t.Fatalf("ToRGBA failed: %v", err)
			}
			if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 3 {
				t.Fatalf("bounds = %v, want 5x3", img.Bounds())
			}
			got := img.RGBAAt(4, 2)
			if diff(got.R, tt.r) > 4 || diff(got.G, tt.g) > 4 || diff(got.B, tt.b) > 4 || got.A != 255 {
				t.Errorf("pixel = %v, want ~(%d,%d,%d)", got, tt.r, tt.g, tt.b)
			}
		})
	}
}

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestVideoFrame_ToRGBA_BGRA(t *testing.T) {
	frame := &VideoFrame{
		Data:   [][]byte{{10, 20, 30, 255, 40, 50, 60, 255}},
		Stride: []int{8},
		Width:  2,
		Height: 1,
		Format: PixelFormatBGRA32,
	}
	img, err := frame.ToRGBA()
	if err != nil {
		t.Fatalf("ToRGBA failed: %v", err)
	}
	if got := img.RGBAAt(0, 0); got.R != 30 || got.G != 20 || got.B != 10 {
		t.Errorf("pixel 0 = %v, want R=30 G=20 B=10", got)
	}
	if got := img.RGBAAt(1, 0); got.R != 60 || got.B != 40 {
		t.Errorf("pixel 1 = %v, want R=60 B=40", got)
	}
}

func TestVideoFrame_ToRGBA_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame *VideoFrame
	}{
		{"no dimensions", &VideoFrame{Format: PixelFormatI420}},
		{"missing planes", &VideoFrame{Width: 2, Height: 2, Format: PixelFormatI420, Data: [][]byte{{0}}, Stride: []int{2}}},
		{"short plane", &VideoFrame{Width: 4, Height: 4, Format: PixelFormatRGBA32, Data: [][]byte{make([]byte, 8)}, Stride: []int{16}}},
		{"unknown format", &VideoFrame{Width: 1, Height: 1, Format: PixelFormat(99), Data: [][]byte{{0}}, Stride: []int{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.frame.ToRGBA(); err == nil {
				t.Error("ToRGBA succeeded, want error")
			}
		})
	}
}

func TestAudioSamples_Clone(t *testing.T) {
	original := &AudioSamples{Data: []byte{1, 2}, SampleRate: 48000, Channels: 1, SampleCount: 1}
	clone := original.Clone()
	original.Data[0] = 9
	if clone.Data[0] != 1 {
		t.Error("Clone shares data with original")
	}
	if clone.SampleRate != 48000 {
		t.Errorf("SampleRate = %d", clone.SampleRate)
	}
}

func TestEncodedFrame_IsKeyframe(t *testing.T) {
	if !(&EncodedFrame{FrameType: FrameTypeKey}).IsKeyframe() {
		t.Error("key frame not reported as keyframe")
	}
	if (&EncodedFrame{FrameType: FrameTypeDelta}).IsKeyframe() {
		t.Error("delta frame reported as keyframe")
	}
}
