// Command mediacapture records camera, microphone and screen sessions and
// keeps the resulting artifacts in a local store.
//
// Usage:
//
//	mediacapture record --mode camera|mic|screen [flags]
//	mediacapture import <url>
//	mediacapture list
//	mediacapture devices
//	mediacapture doctor
//	mediacapture config init
package main
