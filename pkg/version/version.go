package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the current version of the application.
	// Overridden by ldflags during build.
	Version = "dev"

	// GitCommit is the git commit hash, overridden by ldflags during build
	GitCommit = "unknown"

	// BuildDate is the build date, overridden by ldflags during build
	BuildDate = "unknown"
)

// BuildInfo represents build information
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the build information. A binary built without
// ldflags falls back to the VCS revision stamped by the Go toolchain.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if info.GitCommit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.GitCommit = s.Value
				case "vcs.time":
					if info.BuildDate == "unknown" {
						info.BuildDate = s.Value
					}
				}
			}
		}
	}
	return info
}

// Short returns a one-line version string
func (b BuildInfo) Short() string {
	commit := b.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (commit %s, built %s, %s)", b.Version, commit, b.BuildDate, b.GoVersion)
}

// String returns a formatted version string
func (b BuildInfo) String() string {
	return fmt.Sprintf("Version: %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nPlatform: %s",
		b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}
