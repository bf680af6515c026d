// Package version reports the build version of osk.
package version

import "runtime/debug"

// Version is set at build time with
// -ldflags "-X github.com/bryanchriswhite/osk/internal/version.Version=..."
var Version = ""

// String returns Version, the module version from the build info, or "dev"
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
