// Package version holds build-time version information.
package version

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)
