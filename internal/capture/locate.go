package capture

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Tool binary names.
const (
	SurfaceTool    = "fbsimctl"
	StreamTool     = "simulator-server"
	streamToolDist = "simulator-server-macos"
)

// Locator finds a capture tool binary: an explicit override first, then
// known install locations, then PATH.
type Locator struct {
	Override   string
	Candidates []string
	LookPath   func(file string) (string, error)
}

// Find returns the first usable path for name.
func (l Locator) Find(name string) (string, error) {
	if l.Override != "" {
		if isExecutable(l.Override) {
			return l.Override, nil
		}
		return "", fmt.Errorf("%w: %s override %q is not executable", ErrToolNotFound, name, l.Override)
	}

	for _, candidate := range l.Candidates {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if path, err := lookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

// knownDirs lists directories searched before PATH: next to an app bundle's
// binary, a bin directory beside the executable, and Homebrew prefixes.
func knownDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs,
			filepath.Join(exeDir, "..", "Resources", "binaries"),
			filepath.Join(exeDir, "bin"),
		)
	}
	return append(dirs, "/opt/homebrew/bin", "/usr/local/bin")
}

func inDirs(dirs []string, name string) []string {
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		out = append(out, filepath.Join(dir, name))
	}
	return out
}

// SurfaceLocator locates fbsimctl.
func SurfaceLocator(override string) Locator {
	return Locator{Override: override, Candidates: inDirs(knownDirs(), SurfaceTool)}
}

// StreamToolLocator locates simulator-server. The copy shipped with the
// newest React Native IDE editor extension is preferred over the known dirs.
func StreamToolLocator(override string) Locator {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, editorExtensionTools(filepath.Join(home, ".vscode", "extensions"))...)
	}
	dirs := knownDirs()
	candidates = append(candidates, inDirs(dirs, streamToolDist)...)
	candidates = append(candidates, inDirs(dirs, StreamTool)...)
	return Locator{Override: override, Candidates: candidates}
}

// editorExtensionTools returns simulator-server binaries found in editor
// extension directories, newest version first.
func editorExtensionTools(extensionsDir string) []string {
	entries, err := os.ReadDir(extensionsDir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "swmansion.react-native-ide-") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(extensionsDir, name, "dist", streamToolDist))
	}
	return out
}
