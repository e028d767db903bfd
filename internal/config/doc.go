// Package config loads, normalizes, and validates mediacapture configuration.
//
// It supplies defaults for every capture knob, expands user paths (including
// tilde shortcuts), and reads TOML files. Missing files are not an error: the
// defaults apply and Load reports that no file was found.
package config
