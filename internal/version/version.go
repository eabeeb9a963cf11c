package version

import "fmt"

var (
	// Version is the version of the xpi-release tool itself. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the tool version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("xpi-release %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// UserAgent returns the value sent in the User-Agent header of update-server requests.
func UserAgent() string {
	return "xpi-release/" + Version
}
