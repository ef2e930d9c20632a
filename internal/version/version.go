// Package version holds the build version string.
package version

// Version is the gateway release version, overridable at build time with
// -ldflags "-X streamgate/internal/version.Version=v1.2.3".
var Version = "dev"
