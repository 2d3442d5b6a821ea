// Package version carries build metadata set with -ldflags, e.g.
//
//	go build -ldflags "-X pixbuf/internal/version.BuildNumber=42 -X pixbuf/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	BuildNumber = "0"
	GitCommit   = "unknown"
)

// Info is the build description reported on /health.
type Info struct {
	Build     string `json:"build"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go"`
	// GTK is true when the binary was built with the gtk tag.
	GTK bool `json:"gtk"`
}

// Get returns the build description. When GitCommit was not injected the VCS
// revision recorded by the Go toolchain is used, if any.
func Get() Info {
	commit := GitCommit
	if commit == "unknown" || commit == "" {
		commit = vcsRevision()
	}
	return Info{Build: BuildNumber, Commit: commit, GoVersion: runtime.Version(), GTK: gtkBuild}
}

// String is the one-line form logged at startup.
func String() string {
	i := Get()
	if i.Commit == "" {
		return "pixbuf build " + i.Build
	}
	return "pixbuf build " + i.Build + " (" + i.Commit + ")"
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return ""
}
