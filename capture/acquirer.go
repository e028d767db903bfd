package capture

import (
	"context"
	"fmt"

	"github.com/thesyncim/mediacapture"
)

// Acquirer obtains a live stream for a capture mode. Acquire blocks until
// access is granted or denied; denial is reported as ErrAcquisitionDenied.
// If ctx is cancelled, Acquire returns ctx.Err() and holds nothing.
type Acquirer interface {
	Acquire(ctx context.Context, mode Mode) (*Stream, error)
}

// DeviceAcquirer acquires streams through MediaDevices.
type DeviceAcquirer struct {
	Devices mediacapture.MediaDevices

	Video   mediacapture.VideoConstraints
	Audio   mediacapture.AudioConstraints
	Display mediacapture.DisplayMediaOptions
}

// NewDeviceAcquirer returns an acquirer with default constraints.
func NewDeviceAcquirer(devices mediacapture.MediaDevices) *DeviceAcquirer {
	return &DeviceAcquirer{
		Devices: devices,
		Display: mediacapture.DisplayMediaOptions{
			Video: mediacapture.DisplayVideoOptions{Width: 1920, Height: 1080},
			Audio: true,
		},
	}
}

// Acquire implements Acquirer.
func (a *DeviceAcquirer) Acquire(ctx context.Context, mode Mode) (*Stream, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, mode)
	}
	d := mode.Descriptor()

	var media mediacapture.MediaStream
	var err error
	if d.Display {
		media, err = a.Devices.GetDisplayMedia(ctx, a.Display)
	} else {
		var opts mediacapture.UserMediaOptions
		if d.Video {
			video := a.Video
			opts.Video = &video
		}
		if d.Audio {
			audio := a.Audio
			opts.Audio = &audio
		}
		media, err = a.Devices.GetUserMedia(ctx, opts)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionDenied, err)
	}

	// A grant that lands after cancellation is discarded.
	if ctx.Err() != nil {
		_ = media.Close()
		return nil, ctx.Err()
	}

	stream, err := NewStream(media, mode)
	if err != nil {
		_ = media.Close()
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionDenied, err)
	}
	return stream, nil
}
