package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfoDefaults(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.GitCommit)
	assert.Equal(t, "unknown", info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
	assert.True(t, info.BuildTime.IsZero(), "unparseable BuildDate leaves BuildTime unset")
}

func TestGetBuildInfoParsesBuildDate(t *testing.T) {
	original := BuildDate
	defer func() { BuildDate = original }()

	BuildDate = "2026-08-20T12:00:00Z"
	info := GetBuildInfo()
	assert.Equal(t, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC), info.BuildTime)
}

func TestString(t *testing.T) {
	assert.Contains(t, String(), Version)
	assert.Contains(t, String(), GitCommit)
}
