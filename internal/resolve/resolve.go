// Package resolve locates the executables for the managed services across the
// two deployment layouts: a development checkout (interpreter in a local
// virtualenv) and a packaged install (self-contained sidecar binaries).
package resolve

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CoreSidecarName is the base filename of the packaged core backend binary.
// Packaging tools may append a target-triple suffix, which the directory scan
// in sidecarCandidates accounts for.
const CoreSidecarName = "atelier-core"

// CoreModule is the interpreted module run in development mode.
const CoreModule = "atelier_core"

// NotFoundError reports that every candidate path for a service's binary was
// tried and none existed.
type NotFoundError struct {
	Service    string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s binary not found; looked for: %s",
		e.Service, strings.Join(e.Candidates, "; "))
}

// InvalidExecutableError reports a candidate that exists on disk but does not
// carry the platform's native-executable magic marker. Typically a placeholder
// text file left by an incomplete tool download.
type InvalidExecutableError struct {
	Path    string
	Preview string
}

func (e *InvalidExecutableError) Error() string {
	return fmt.Sprintf("%s is not a valid %s executable (preview: %q)", e.Path, platformName, e.Preview)
}

// CoreLaunch describes how to invoke the core backend.
type CoreLaunch struct {
	Path     string   // interpreter or sidecar binary
	Args     []string // module args in dev mode, empty for a sidecar
	Dir      string   // working directory; empty means caller decides (packaged mode)
	DevMode  bool
	CoreSrc  string // dev mode only: library source tree for the search-path variable
}

// Core resolves the core backend. A virtualenv interpreter under installRoot
// wins; otherwise the packaged sidecar is searched. The returned error is a
// NotFoundError enumerating every path tried.
func Core(installRoot string) (CoreLaunch, error) {
	if py := venvPython(installRoot); py != "" {
		return CoreLaunch{
			Path:    py,
			Args:    []string{"-m", CoreModule},
			Dir:     installRoot,
			DevMode: true,
			CoreSrc: filepath.Join(installRoot, "core", "src"),
		}, nil
	}
	cands := sidecarCandidates(installRoot)
	for _, c := range cands {
		if fileExists(c) {
			return CoreLaunch{Path: c}, nil
		}
	}
	return CoreLaunch{}, &NotFoundError{Service: "core", Candidates: cands}
}

func venvPython(installRoot string) string {
	candidates := []string{
		filepath.Join(installRoot, ".venv", "Scripts", "python.exe"),
		filepath.Join(installRoot, ".venv", "bin", "python"),
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return ""
}

// sidecarCandidates orders the packaged-mode search: a binaries directory
// under the install root, then beside the host executable, then a binaries
// subdirectory there, and finally a prefix scan of the executable's directory
// because packagers may rename sidecars with a platform suffix.
func sidecarCandidates(installRoot string) []string {
	name := CoreSidecarName + exeSuffix
	out := []string{filepath.Join(installRoot, "binaries", name)}

	exe, err := os.Executable()
	if err != nil {
		return out
	}
	exeDir := filepath.Dir(exe)
	out = append(out,
		filepath.Join(exeDir, name),
		filepath.Join(exeDir, "binaries", name),
	)
	entries, err := os.ReadDir(exeDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if !strings.HasPrefix(n, CoreSidecarName) {
			continue
		}
		if exeSuffix != "" && !strings.HasSuffix(n, exeSuffix) {
			continue
		}
		p := filepath.Join(exeDir, n)
		if !contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// Weed resolves the SeaweedFS binary. Order: explicit configured path, the
// bundled tools directories, then the user-override location inside home.
// The winning candidate must pass the native-header check.
func Weed(installRoot, home, explicit string) (string, error) {
	cands := WeedCandidates(installRoot, home, explicit)
	for _, c := range cands {
		if !fileExists(c) {
			continue
		}
		if err := checkExecHeader(c); err != nil {
			return "", err
		}
		return c, nil
	}
	return "", &NotFoundError{Service: "seaweedfs (weed)", Candidates: cands}
}

// WeedCandidates returns the ordered candidate list considered by Weed.
// Exported so failures can enumerate exactly what was tried.
func WeedCandidates(installRoot, home, explicit string) []string {
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	toolsDirs := []string{
		filepath.Join(installRoot, "tools"),
		filepath.Join(installRoot, "desktop", "resources", "tools"),
		filepath.Join(installRoot, "..", "resources", "tools"),
	}
	for _, d := range toolsDirs {
		for _, n := range weedNames() {
			out = append(out, filepath.Join(d, n))
		}
	}
	for _, n := range weedNames() {
		out = append(out, filepath.Join(home, "tools", n))
	}
	return out
}

func weedNames() []string { return []string{"weed" + exeSuffix} }

// checkExecHeader reads a small prefix of the file and rejects candidates
// without the platform's executable magic, producing a clearer failure than
// the cryptic spawn error the OS would give.
func checkExecHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open candidate %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, 128)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read candidate %s: %w", path, err)
	}
	head := buf[:n]
	if !hasExecMagic(head) {
		preview := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' {
				return ' '
			}
			return r
		}, string(head))
		return &InvalidExecutableError{Path: path, Preview: preview}
	}
	return nil
}

// DefaultInstallRoot walks up from the host executable looking for the core
// source tree, which marks a development checkout. Falls back to the current
// directory for packaged installs where the sidecar search takes over.
func DefaultInstallRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	p := filepath.Dir(exe)
	for i := 0; i < 8; i++ {
		if dirExists(filepath.Join(p, "core", "src", CoreModule)) {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return "."
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func dirExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
