package locate

import (
	"os"
	"path/filepath"

	"github.com/cuemby/serverkit/pkg/platform"
)

// CacheMarker is the ancestor directory name Locate walks past when
// searching for a project-local cache, the module's analogue of a
// node_modules sibling directory.
const CacheMarker = ".serverkit-cache"

// Result is what Locate found (or didn't).
type Result struct {
	Path      string
	Found     bool
	Preferred string
}

// Locate enumerates the candidate binary locations for req and reports
// the first that exists on disk. It performs no writes — only
// os.Stat/os.UserHomeDir/os.Getwd reads — so it's safe to call
// speculatively before deciding whether a download is needed.
//
// Candidate order: req.SystemBinary (short-circuits everything if set
// and present), the configured download directory, the user's global
// cache, a project-local cache found by walking upward past a
// CacheMarker directory, and finally a directory relative to the
// current working directory.
func Locate(req platform.BinaryRequest, preferGlobalPath bool) (Result, error) {
	name, err := platform.BinaryName(req)
	if err != nil {
		return Result{}, err
	}

	if req.SystemBinary != "" {
		if fileExists(req.SystemBinary) {
			return Result{Path: req.SystemBinary, Found: true}, nil
		}
	}

	configured := ""
	if req.DownloadDir != "" {
		configured = filepath.Join(req.DownloadDir, name)
	}

	legacyHome, err := globalCachePath(name)
	if err != nil {
		return Result{}, err
	}

	modulesCache, err := projectCachePath(name)
	if err != nil {
		return Result{}, err
	}

	relative, err := relativeCachePath(name)
	if err != nil {
		return Result{}, err
	}

	candidates := []string{configured, legacyHome, modulesCache, relative}
	for _, c := range candidates {
		if c != "" && fileExists(c) {
			return Result{Path: c, Found: true}, nil
		}
	}

	preferred := preferredDownloadPath(configured, legacyHome, modulesCache, relative, preferGlobalPath)
	return Result{Found: false, Preferred: preferred}, nil
}

func preferredDownloadPath(configured, legacyHome, modulesCache, relative string, preferGlobal bool) string {
	if configured != "" {
		return configured
	}
	if preferGlobal && legacyHome != "" {
		return legacyHome
	}
	if modulesCache != "" {
		return modulesCache
	}
	return relative
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func globalCachePath(binaryName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil // treated as "unavailable", not fatal — this candidate is simply skipped
	}
	return filepath.Join(home, ".cache", "serverkit-binaries", binaryName), nil
}

// projectCachePath walks upward from the working directory looking for
// either an ancestor directory literally named CacheMarker or a
// CacheMarker directory directly inside an ancestor, and joins
// binaryName underneath the first one found. Returns "" if neither
// exists anywhere up to the filesystem root.
func projectCachePath(binaryName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		if filepath.Base(dir) == CacheMarker {
			return filepath.Join(dir, binaryName), nil
		}
		candidate := filepath.Join(dir, CacheMarker)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Join(candidate, binaryName), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func relativeCachePath(binaryName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, "serverkit-binaries", binaryName), nil
}
