package capture

import "errors"

var (
	// ErrAcquisitionDenied covers refused permission, missing devices and a
	// cancelled display picker.
	ErrAcquisitionDenied = errors.New("acquisition denied")

	// ErrRecordingUnsupported means no encoder could be set up for the stream.
	ErrRecordingUnsupported = errors.New("recording unsupported")

	// ErrInvalidState is returned when an operation does not apply to the
	// controller's current state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrImportBusy is returned while another import is processing.
	ErrImportBusy = errors.New("import already in progress")
)
