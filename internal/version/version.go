// Package version reports the shellyscan build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/shellyscan/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/shellyscan/internal/version.Commit=abc123"
//
// If not set, they are taken from the module and VCS build info when
// available, or fall back to "dev" with a timestamp.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	if Version == "" || Commit == "" {
		info, ok := debug.ReadBuildInfo()
		if ok {
			Version, Commit = fromBuildInfo(info, Version, Commit)
		}
	}

	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo fills in whichever of version and commit are empty.
// `go install module@v1.2.3` records the module version; builds from a git
// checkout record VCS settings instead.
func fromBuildInfo(info *debug.BuildInfo, version, commit string) (string, string) {
	var vcsRevision, vcsModified, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.modified":
			vcsModified = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if commit == "" && vcsRevision != "" {
		commit = vcsRevision
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if vcsModified == "true" {
			commit += "-dirty"
		}
	}

	if version == "" {
		switch {
		case info.Main.Version != "" && info.Main.Version != "(devel)":
			version = info.Main.Version
		case vcsTime != "":
			if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
				version = fmt.Sprintf("dev-%s", t.Format("20060102"))
			}
		}
	}
	return version, commit
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Platform returns the Go version and target, e.g. "go1.24.2 linux/amd64"
func Platform() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
