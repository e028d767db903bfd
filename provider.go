package mediacapture

import "sync/atomic"

// Provider identifies a codec implementation.
type Provider uint8

const (
	ProviderAuto    Provider = iota // Let the registry choose
	ProviderLibvpx                  // VP8/VP9 via libmedia_vpx
	ProviderLibopus                 // Opus via libstream_opus
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL License = iota
	LicenseBSD
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

type providerMeta struct {
	Name    string
	License License
	Library string
}

var providerInfo = [providerCount]providerMeta{
	ProviderAuto:    {"auto", LicenseBSD, ""},
	ProviderLibvpx:  {"libvpx", LicenseBSD, "libmedia_vpx"},
	ProviderLibopus: {"libopus", LicenseBSD, "libstream_opus"},
}

// Set by native loaders once their library resolves.
var providerAvailable [providerCount]atomic.Bool

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Library returns the native library backing the provider.
func (p Provider) Library() string {
	if p >= providerCount {
		return ""
	}
	return providerInfo[p].Library
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// Providers lists the concrete providers (ProviderAuto excluded).
func Providers() []Provider {
	out := make([]Provider, 0, providerCount-1)
	for p := ProviderAuto + 1; p < providerCount; p++ {
		out = append(out, p)
	}
	return out
}

func setProviderAvailable(p Provider, ok bool) {
	if p < providerCount {
		providerAvailable[p].Store(ok)
	}
}
