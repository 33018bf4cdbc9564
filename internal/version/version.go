// Package version holds build information injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/deriv-gateway/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/deriv-gateway/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "runtime/debug"

var (
	Version = "dev"
	Commit  = "" // Falls back to the VCS revision stamped by the Go toolchain
)

// String returns "<version> (<commit>)".
func String() string {
	return Version + " (" + commit() + ")"
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return "unknown"
}
