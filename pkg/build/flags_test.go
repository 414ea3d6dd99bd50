// SPDX-License-Identifier: MIT
package build

import (
	"strings"
	"testing"
)

func resetBuildState(t *testing.T) {
	t.Helper()
	origName, origTime := buildName, buildTime
	origCommit, origVersion := buildCommit, buildVersion
	origInfo := info
	t.Cleanup(func() {
		buildName, buildTime = origName, origTime
		buildCommit, buildVersion = origCommit, origVersion
		info = origInfo
	})
}

func TestInitializeStamped(t *testing.T) {
	resetBuildState(t)

	buildName = "spectrum"
	buildTime = "2026-08-31T12:00:00Z"
	buildCommit = "abcdef123"
	buildVersion = "v1.2.0"

	Initialize()

	got := GetInfo()
	want := Info{
		Name:    "spectrum",
		Time:    "2026-08-31T12:00:00Z",
		Commit:  "abcdef123",
		Version: "v1.2.0",
	}
	if got != want {
		t.Errorf("GetInfo() = %+v, want %+v", got, want)
	}
}

func TestInitializeUnstampedKeepsDevDefaults(t *testing.T) {
	resetBuildState(t)

	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""
	Initialize()

	got := GetInfo()
	if got.Version != "v0.0.0-dev" {
		t.Errorf("Version = %q, want dev placeholder", got.Version)
	}
	if got.Commit != "none" {
		t.Errorf("Commit = %q, want %q", got.Commit, "none")
	}
}

func TestInitializePartialStamp(t *testing.T) {
	resetBuildState(t)

	buildName, buildTime, buildCommit = "", "", ""
	buildVersion = "v2.0.0"
	Initialize()

	got := GetInfo()
	if got.Version != "v2.0.0" {
		t.Errorf("Version = %q, want %q", got.Version, "v2.0.0")
	}
	if got.Name != "spectrum" {
		t.Errorf("Name = %q, want default kept", got.Name)
	}
}

func TestSummary(t *testing.T) {
	i := Info{
		Name:    "spectrum",
		Time:    "2026-08-31",
		Commit:  "abcdef1",
		Version: "v1.0.0",
	}
	s := i.Summary()
	for _, part := range []string{"spectrum", "v1.0.0", "abcdef1", "2026-08-31"} {
		if !strings.Contains(s, part) {
			t.Errorf("Summary() = %q, missing %q", s, part)
		}
	}
}
