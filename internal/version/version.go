// Package version reports build metadata. Release builds set the variables
// with -ldflags; plain `go build` falls back to the VCS stamp.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via -ldflags "-X github.com/smazurov/simstream/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info is what /api/version returns.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

var vcs = sync.OnceValues(func() (revision, when string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			when = s.Value
		}
	}
	return revision, when
})

func commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	if rev, _ := vcs(); rev != "" {
		return rev
	}
	return GitCommit
}

// Get returns the build metadata of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: commit(),
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.BuildDate == "unknown" {
		if _, when := vcs(); when != "" {
			info.BuildDate = when
		}
	}
	return info
}

// String is the version shown in the API docs: the release version, or
// dev-<short commit> for untagged builds.
func String() string {
	if Version != "dev" {
		return Version
	}
	c := commit()
	if c == "unknown" {
		return Version
	}
	return "dev-" + c[:min(len(c), 7)]
}

// UserAgent identifies simstream in requests to capture tools.
func UserAgent() string {
	return "simstream/" + String()
}
