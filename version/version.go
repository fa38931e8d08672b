// Package version reports build information for the lspsession binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time via ldflags:
//
//	go build -ldflags "-X github.com/teranos/lspsession/version.Version=v0.4.0"
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// ProtocolVersion is the LSP revision the session speaks.
const ProtocolVersion = "3.16"

// wireModules are reported with their resolved versions.
var wireModules = []string{
	"github.com/tliron/glsp",
	"github.com/gorilla/websocket",
}

// Info describes the running binary.
type Info struct {
	Version    string            `json:"version"`
	CommitHash string            `json:"commit_hash"`
	BuildTime  string            `json:"build_time"`
	Protocol   string            `json:"lsp_protocol"`
	GoVersion  string            `json:"go_version"`
	Platform   string            `json:"platform"`
	Modules    map[string]string `json:"modules,omitempty"`
}

// Get returns the current build information. Values not set through
// ldflags fall back to what the Go toolchain stamped into the binary.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Protocol:   ProtocolVersion,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fill(bi)
	}
	return info
}

func (i *Info) fill(bi *debug.BuildInfo) {
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && i.CommitHash == "dev":
			i.CommitHash = s.Value
		case s.Key == "vcs.time" && i.BuildTime == "unknown":
			i.BuildTime = s.Value
		}
	}
	for _, dep := range bi.Deps {
		for _, path := range wireModules {
			if dep.Path == path {
				if i.Modules == nil {
					i.Modules = make(map[string]string)
				}
				i.Modules[path] = dep.Version
			}
		}
	}
}

// ClientVersion is the version sent in clientInfo during initialize.
// Development builds carry the short commit.
func (i Info) ClientVersion() string {
	if i.Version == "dev" && i.CommitHash != "dev" {
		return "dev+" + i.Short()
	}
	return i.Version
}

func (i Info) String() string {
	parts := []string{"LSP " + i.Protocol}
	if i.CommitHash != "dev" {
		parts = append(parts, "commit "+i.Short())
	}
	if i.BuildTime != "unknown" {
		parts = append(parts, "built "+i.BuildTime)
	}
	return fmt.Sprintf("lspsession %s (%s)", i.Version, strings.Join(parts, ", "))
}

// Short returns the commit hash truncated to seven characters.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
