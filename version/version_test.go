package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			"release",
			Info{Version: "v0.4.0", CommitHash: "0123456789abcdef", BuildTime: "2026-01-02", Protocol: ProtocolVersion},
			"lspsession v0.4.0 (LSP 3.16, commit 0123456, built 2026-01-02)",
		},
		{
			"bare dev build",
			Info{Version: "dev", CommitHash: "dev", BuildTime: "unknown", Protocol: ProtocolVersion},
			"lspsession dev (LSP 3.16)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestClientVersion(t *testing.T) {
	assert.Equal(t, "v0.4.0", Info{Version: "v0.4.0", CommitHash: "0123456789"}.ClientVersion())
	assert.Equal(t, "dev+0123456", Info{Version: "dev", CommitHash: "0123456789"}.ClientVersion())
	assert.Equal(t, "dev", Info{Version: "dev", CommitHash: "dev"}.ClientVersion())
}

func TestFillFromBuildInfo(t *testing.T) {
	info := Info{Version: "dev", CommitHash: "dev", BuildTime: "unknown"}
	info.fill(&debug.BuildInfo{
		Main: debug.Module{Version: "v0.5.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "fedcba9876543210"},
			{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
		},
		Deps: []*debug.Module{
			{Path: "github.com/tliron/glsp", Version: "v0.2.2"},
			{Path: "github.com/spf13/cobra", Version: "v1.10.2"},
		},
	})

	assert.Equal(t, "v0.5.1", info.Version)
	assert.Equal(t, "fedcba9", info.Short())
	assert.Equal(t, "2026-03-04T05:06:07Z", info.BuildTime)
	assert.Equal(t, map[string]string{"github.com/tliron/glsp": "v0.2.2"}, info.Modules)
}

func TestFillKeepsLdflags(t *testing.T) {
	info := Info{Version: "v1.0.0", CommitHash: "abc1234", BuildTime: "then"}
	info.fill(&debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "zzz"}},
	})
	assert.Equal(t, "v1.0.0", info.Version)
	assert.Equal(t, "abc1234", info.CommitHash)
	assert.Equal(t, "then", info.BuildTime)
	assert.Nil(t, info.Modules)
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, ProtocolVersion, info.Protocol)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
