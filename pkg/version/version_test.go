package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.GitCommit)
}

func TestBuildInfoFormatting(t *testing.T) {
	info := BuildInfo{
		Version:   "1.4.0",
		GitCommit: "0123456789abcdef0123",
		BuildDate: "2026-10-01T00:00:00Z",
		GoVersion: "go1.24.2",
		Platform:  "linux/amd64",
	}

	assert.Equal(t, "1.4.0 (commit 0123456789ab, built 2026-10-01T00:00:00Z, go1.24.2)", info.Short())
	assert.Contains(t, info.String(), "Git Commit: 0123456789abcdef0123")
	assert.Contains(t, info.String(), "Platform: linux/amd64")
}
