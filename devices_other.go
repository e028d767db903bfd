//go:build !linux || nodevices

package mediacapture

// NativeDeviceProvider returns nil; this platform has no native provider.
func NativeDeviceProvider() DeviceProvider {
	return nil
}
