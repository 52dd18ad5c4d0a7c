// Package version holds build metadata injected with -ldflags.
package version

import "runtime/debug"

// Build metadata. Overridden at link time, e.g.
// -ldflags "-X github.com/Sumatoshi-tech/indexbag/pkg/version.Version=v1.2.0".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// InitBinaryVersion fills Version and Commit from the embedded module build
// info when they were not set at link time.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}
