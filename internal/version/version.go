// Package version carries the build version, set with
// -ldflags "-X github.com/fisaks/mbconsole/internal/version.Version=...".
package version

var Version = "dev"
