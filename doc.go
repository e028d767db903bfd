// Package mediacapture provides getUserMedia-style capture primitives in Go:
// media streams and tracks, device providers, raw frame types and encoders
// backed by native codec wrappers (libmedia_vpx, libstream_opus).
//
// The capture session itself (acquire, record, snapshot, save) lives in the
// capture subpackage and is built on the types here.
//
// # Devices
//
// MediaDevices resolves tracks through a DeviceProvider. SyntheticProvider
// generates color bars, a moving box and a sine tone, and can refuse
// permission or revoke a screen share on demand. On Linux,
// NativeDeviceProvider enumerates V4L2 and ALSA devices.
//
// # Native Libraries
//
// Encoders are loaded at runtime with purego (no cgo). Set
// STREAM_SDK_LIB_PATH to the directory containing the libraries, or the
// per-library MEDIA_VPX_LIB_PATH / STREAM_OPUS_LIB_PATH overrides. When a
// library is missing its codecs are simply not registered; see
// EncoderAvailability.
//
// # Build Tags
//
//   - novpx, noopus: disable specific codecs
//   - nodevices: disable native device enumeration
package mediacapture
