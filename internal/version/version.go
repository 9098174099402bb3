package version

import (
	"runtime/debug"
	"strings"
)

// Version may be set at build time via -ldflags "-X ...version.Version=...".
var Version = "dev"

// Effective returns the best available version string: the injected
// build version, the module version from build info, or a dev marker
// with the VCS revision.
func Effective() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return Version
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	var rev, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		parts := []string{"devel", rev}
		if modified == "true" {
			parts = append(parts, "dirty")
		}
		return strings.Join(parts, "+")
	}
	return Version
}
