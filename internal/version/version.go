// Package version reports the build identity stamped at link time.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/ongoingai/llmotel/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the release version, falling back to the module version
// recorded by `go install` for unstamped builds.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func String() string {
	return fmt.Sprintf("%s (%s, %s)", Short(), Commit, Date)
}
