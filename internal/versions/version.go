// Package versions describes the running argon build and compares the version
// tokens reported by class sources.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/Masterminds/semver/v3"
)

const unknown = "unknown"

// Stamped by release builds with
// -ldflags "-X github.com/pinehappi/argon/internal/versions.version=v1.2.3 ..."
var (
	version   string
	commit    string
	buildTime string
)

// Build describes the running binary
type Build struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	BuiltAt  string `json:"builtAt"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// String is the one-line form printed by `argon version`
func (b Build) String() string {
	return fmt.Sprintf("argon %s (commit %s, built %s, %s %s)", b.Version, b.Commit, b.BuiltAt, b.Go, b.Platform)
}

// Current returns the build of the running binary. Values stamped at link
// time win over the module and VCS data embedded by the go tool.
func Current() Build {
	bi, _ := debug.ReadBuildInfo()
	return resolve(version, commit, buildTime, bi)
}

func resolve(stampedVersion, stampedCommit, stampedTime string, bi *debug.BuildInfo) Build {
	var revision, vcsTime string
	var dirty bool
	moduleVersion := ""
	if bi != nil {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			moduleVersion = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.time":
				vcsTime = s.Value
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	}

	b := Build{
		Version:  firstOf(normalizeVersion(stampedVersion), moduleVersion, "devel"),
		Commit:   firstOf(stampedCommit, revision, unknown),
		BuiltAt:  formatBuildTime(firstOf(stampedTime, vcsTime, unknown)),
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if stampedCommit == "" && dirty {
		b.Commit += "-dirty"
	}
	return b
}

// normalizeVersion gives semver tags a single leading "v"
func normalizeVersion(v string) string {
	if v == "" {
		return ""
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	return "v" + parsed.String()
}

func formatBuildTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
