// Package version records the build version.
package version

// Version is the current release, overridden at build time with
// -ldflags "-X threadlens/pkg/version.Version=...".
var Version = "v0.4.0"
