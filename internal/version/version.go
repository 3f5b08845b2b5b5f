package version

import "runtime/debug"

// Version is set by ldflags during build
var Version = "dev"

// GetVersion returns the build version, falling back to the module version
// recorded by `go install`
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
