// SPDX-License-Identifier: MIT

// Package build exposes version metadata stamped into the binary with
// -ldflags. Binaries built without stamping (plain go build during
// development) fall back to dev placeholders instead of failing.
package build

import "fmt"

// Info is the resolved build metadata.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Populated by the linker, e.g.
//
//	-ldflags "-X spectrum/pkg/build.buildVersion=v1.2.0"
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var info = Info{
	Name:    "spectrum",
	Time:    "unknown",
	Commit:  "none",
	Version: "v0.0.0-dev",
}

// Initialize copies any stamped ldflags values over the dev defaults.
// Call it once, early in startup.
func Initialize() {
	if buildName != "" {
		info.Name = buildName
	}
	if buildTime != "" {
		info.Time = buildTime
	}
	if buildCommit != "" {
		info.Commit = buildCommit
	}
	if buildVersion != "" {
		info.Version = buildVersion
	}
}

// GetInfo returns the build metadata. Valid after Initialize.
func GetInfo() Info {
	return info
}

// Summary renders the metadata as a single version line.
func (i Info) Summary() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}
