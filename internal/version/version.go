// Package version holds the build identity of threadsauto. Both variables are
// set with -ldflags "-X" at release time.
package version

const unknownCommit = "unknown"

var (
	// Version is the release tag, or "development" for local builds.
	Version = "development"
	// Commit is the short git hash the binary was built from.
	Commit = unknownCommit
)

// String returns Version, suffixed with +Commit when the commit is known.
func String() string {
	if Commit == unknownCommit {
		return Version
	}
	return Version + "+" + Commit
}
