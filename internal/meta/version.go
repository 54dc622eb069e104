package meta

import (
	"fmt"
)

var (
	// Version is the semantic version of the application.
	// This value is injected at build time via ldflags.
	Version = "HEAD"

	// Commit is the git commit hash.
	// This value is injected at build time via ldflags.
	Commit = "UNKNOWN"
)

// UserAgent returns the User-Agent string for HTTP requests of this agent.
func UserAgent(purpose string) string {
	return fmt.Sprintf("outpost/%s %s", Version, purpose)
}
