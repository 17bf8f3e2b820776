package platform

import (
	"fmt"
	"net/url"
)

// DefaultMirror is the vendor's official release index, used whenever
// neither DownloadURL nor DownloadMirror override it.
const DefaultMirror = "https://fastdl.serverkit.example.com"

// ArchiveURL computes the download URL for req. If downloadURL is
// non-empty it is returned verbatim after validation; otherwise it is
// built as <mirror>/<platform>-<arch>/archive/<version>.
func ArchiveURL(req BinaryRequest, mirror, downloadURL string) (string, error) {
	if downloadURL != "" {
		u, err := url.ParseRequestURI(downloadURL)
		if err != nil {
			return "", fmt.Errorf("platform: invalid DOWNLOAD_URL %q: %w", downloadURL, err)
		}
		return u.String(), nil
	}

	plat, err := translatePlatform(req.OS.OS, req.Version)
	if err != nil {
		return "", err
	}
	arch, err := translateArch(req.Arch, plat)
	if err != nil {
		return "", err
	}

	if mirror == "" {
		mirror = DefaultMirror
	}
	return fmt.Sprintf("%s/%s-%s/archive/%s", mirror, plat, arch, req.Version), nil
}

func translatePlatform(osName string, version string) (string, error) {
	v, _ := ParseVersion(version)

	switch osName {
	case "darwin":
		return "darwin", nil
	case "win32", "windows":
		if !v.Less(Version{Major: 4, Minor: 3, Patch: 0}) {
			return "windows", nil
		}
		return "win32", nil
	case "linux", "elementary OS":
		return "linux", nil
	default:
		return "", &UnknownPlatformError{OS: osName}
	}
}

func translateArch(arch, platform string) (string, error) {
	switch arch {
	case "x64", "amd64", "x86_64":
		return "amd64", nil
	case "arm64":
		return "arm64", nil
	case "aarch64":
		return "aarch64", nil
	case "ia32":
		if platform == "windows" || platform == "win32" {
			return "i386", nil
		}
		return "i686", nil
	default:
		return "", &UnknownArchitectureError{Arch: arch}
	}
}
