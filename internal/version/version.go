// Package version carries build metadata stamped in via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Summary renders the build metadata as a single log-friendly line.
func Summary() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
