// Package version provides build version information.
// Variables are set at build time via ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("scriptmate %s (commit %s, built %s)", Version, Commit, BuildDate)
}
