//go:build linux && !nodevices

package mediacapture

import (
	"context"
	"fmt"
	"sync"
)

var (
	v4l2Once    sync.Once
	v4l2InitErr error

	alsaOnce    sync.Once
	alsaInitErr error
)

// V4L2 enumeration
var (
	streamV4L2DeviceCount func() int32
	streamV4L2DevicePath  func(index int32) uintptr
	streamV4L2DeviceName  func(index int32) uintptr
	streamV4L2FreeString  func(ptr uintptr)
)

// ALSA enumeration
var (
	streamALSAInputDeviceCount func() int32
	streamALSAInputDeviceID    func(index int32) uintptr
	streamALSAInputDeviceName  func(index int32) uintptr
	streamALSAFreeString       func(ptr uintptr)
)

func initV4L2() error {
	v4l2Once.Do(func() {
		var handle uintptr
		handle, v4l2InitErr = openLibrary("libstream_v4l2", libraryPaths("libstream_v4l2", "STREAM_V4L2_LIB_PATH"))
		if v4l2InitErr != nil {
			return
		}
		v4l2InitErr = bindSymbols(handle, map[string]any{
			"stream_v4l2_device_count": &streamV4L2DeviceCount,
			"stream_v4l2_device_path":  &streamV4L2DevicePath,
			"stream_v4l2_device_name":  &streamV4L2DeviceName,
			"stream_v4l2_free_string":  &streamV4L2FreeString,
		})
	})
	return v4l2InitErr
}

func initALSA() error {
	alsaOnce.Do(func() {
		var handle uintptr
		handle, alsaInitErr = openLibrary("libstream_alsa", libraryPaths("libstream_alsa", "STREAM_ALSA_LIB_PATH"))
		if alsaInitErr != nil {
			return
		}
		alsaInitErr = bindSymbols(handle, map[string]any{
			"stream_alsa_input_device_count": &streamALSAInputDeviceCount,
			"stream_alsa_input_device_id":    &streamALSAInputDeviceID,
			"stream_alsa_input_device_name":  &streamALSAInputDeviceName,
			"stream_alsa_free_string":        &streamALSAFreeString,
		})
	})
	return alsaInitErr
}

// LinuxDeviceProvider enumerates V4L2 cameras and ALSA capture devices.
// Opening devices is not supported yet; captures go through
// SyntheticProvider on Linux.
type LinuxDeviceProvider struct {
	mu sync.Mutex
}

// NewLinuxDeviceProvider creates a Linux device provider.
func NewLinuxDeviceProvider() *LinuxDeviceProvider {
	return &LinuxDeviceProvider{}
}

// takeString copies a library-owned string and releases it.
func takeString(ptr uintptr, free func(uintptr)) string {
	if ptr == 0 {
		return ""
	}
	s := goStringFromPtr(ptr)
	free(ptr)
	return s
}

func (p *LinuxDeviceProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	if err := initV4L2(); err != nil {
		return nil, fmt.Errorf("%w: V4L2: %v", ErrNotSupported, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	count := streamV4L2DeviceCount()
	devices := make([]DeviceInfo, 0, count)
	for i := int32(0); i < count; i++ {
		path := takeString(streamV4L2DevicePath(i), streamV4L2FreeString)
		name := takeString(streamV4L2DeviceName(i), streamV4L2FreeString)
		if path == "" {
			continue
		}
		devices = append(devices, DeviceInfo{DeviceID: path, Label: name, Kind: DeviceKindVideoInput})
	}
	return devices, nil
}

func (p *LinuxDeviceProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	if err := initALSA(); err != nil {
		return nil, fmt.Errorf("%w: ALSA: %v", ErrNotSupported, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	count := streamALSAInputDeviceCount()
	devices := make([]DeviceInfo, 0, count)
	for i := int32(0); i < count; i++ {
		id := takeString(streamALSAInputDeviceID(i), streamALSAFreeString)
		name := takeString(streamALSAInputDeviceName(i), streamALSAFreeString)
		if id == "" {
			continue
		}
		devices = append(devices, DeviceInfo{DeviceID: id, Label: name, Kind: DeviceKindAudioInput})
	}
	return devices, nil
}

func (p *LinuxDeviceProvider) ListAudioOutputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return nil, nil
}

func (p *LinuxDeviceProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	return nil, fmt.Errorf("%w: V4L2 capture", ErrNotSupported)
}

func (p *LinuxDeviceProvider) OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error) {
	return nil, fmt.Errorf("%w: ALSA capture", ErrNotSupported)
}

func (p *LinuxDeviceProvider) CaptureDisplay(ctx context.Context, options DisplayVideoOptions) (VideoTrack, error) {
	return nil, fmt.Errorf("%w: display capture", ErrNotSupported)
}

func (p *LinuxDeviceProvider) CaptureDisplayAudio(ctx context.Context) (AudioTrack, error) {
	return nil, fmt.Errorf("%w: display audio", ErrNotSupported)
}

// NativeDeviceProvider returns the platform provider, or nil when the
// platform has none.
func NativeDeviceProvider() DeviceProvider {
	return NewLinuxDeviceProvider()
}
