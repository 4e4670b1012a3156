// Package version carries build metadata injected at link time.
package version

// Version is the semantic version of the build, set via -ldflags.
var Version = "dev"

// Commit is the git commit SHA of the build, set via -ldflags.
var Commit = "unknown"
