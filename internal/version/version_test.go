package version

import (
	"runtime"
	"testing"
)

func stubVCS(t *testing.T, revision, when string) {
	t.Helper()
	orig := vcs
	vcs = func() (string, string) { return revision, when }
	t.Cleanup(func() { vcs = orig })
}

func TestString(t *testing.T) {
	defer func(v, c string) { Version, GitCommit = v, c }(Version, GitCommit)
	stubVCS(t, "", "")

	tests := []struct {
		version, commit, want string
	}{
		{"1.2.0", "abcdef0123", "1.2.0"},
		{"dev", "unknown", "dev"},
		{"dev", "abcdef0123", "dev-abcdef0"},
		{"dev", "abc", "dev-abc"},
	}
	for _, tt := range tests {
		Version, GitCommit = tt.version, tt.commit
		if got := String(); got != tt.want {
			t.Errorf("String() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}

	Version, GitCommit = "1.2.0", "x"
	if got := UserAgent(); got != "simstream/1.2.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestVCSFallback(t *testing.T) {
	defer func(v, c, d string) { Version, GitCommit, BuildDate = v, c, d }(Version, GitCommit, BuildDate)
	Version, GitCommit, BuildDate = "dev", "unknown", "unknown"
	stubVCS(t, "0123456789abcdef", "2026-01-02T03:04:05Z")

	if got := String(); got != "dev-0123456" {
		t.Errorf("String() = %q", got)
	}
	info := Get()
	if info.GitCommit != "0123456789abcdef" || info.BuildDate != "2026-01-02T03:04:05Z" {
		t.Errorf("Get() = %+v", info)
	}

	GitCommit = "feedface"
	if got := Get().GitCommit; got != "feedface" {
		t.Errorf("ldflags commit should win, got %q", got)
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.GoVersion != runtime.Version() || info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Get() = %+v", info)
	}
}
