package platform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// BinaryStem is the vendor binary's base name, used in the extraction
// filter that picks the right entry out of a downloaded archive.
const BinaryStem = "minio"

// binaryNameStem is the legacy prefix baked into on-disk cache paths by
// older callers, kept literal for back-compat independent of which
// vendor binary is actually being provisioned.
const binaryNameStem = "mongod"

// ArchiveName derives the canonical archive filename from the request's
// platform branch. Only used when UseArchiveNameForBinaryName is set or
// an explicit ArchiveName override is configured; otherwise BinaryName
// is used directly.
func ArchiveName(req BinaryRequest) (string, error) {
	plat, err := translatePlatform(req.OS.OS, req.Version)
	if err != nil {
		return "", err
	}
	arch, err := translateArch(req.Arch, plat)
	if err != nil {
		return "", err
	}
	ext := ".tar.gz"
	if plat == "windows" || plat == "win32" {
		ext = ".zip"
	}
	return fmt.Sprintf("%s-%s-%s-%s%s", BinaryStem, plat, arch, req.Version, ext), nil
}

// BinaryName derives the legacy on-disk binary name,
// "<stem>-<arch>-<distro-or-os>-<version>[.exe]", kept for cache-path
// back-compat with names written by older callers.
func BinaryName(req BinaryRequest) (string, error) {
	plat, err := translatePlatform(req.OS.OS, req.Version)
	if err != nil {
		return "", err
	}
	arch, err := translateArch(req.Arch, plat)
	if err != nil {
		return "", err
	}

	distroOrOS := plat
	if plat == "linux" {
		v, _ := ParseVersion(req.Version)
		distro, err := resolveDistroString(req.OS, v, arch)
		if err != nil {
			return "", err
		}
		if distro != "" {
			distroOrOS = distro
		}
	}

	name := fmt.Sprintf("%s-%s-%s-%s", binaryNameStem, arch, distroOrOS, req.Version)
	if plat == "windows" || plat == "win32" {
		name += ".exe"
	}
	return name, nil
}

// legacyArchiveNameRegexp recognizes the older
// "<stem>-<platform>-<arch>-<version>(.tar.gz|.tgz|.zip)" archive naming
// scheme. It backs ParseLegacyArchiveName only; BinaryName and the
// download pipeline do not consult it.
var legacyArchiveNameRegexp = regexp.MustCompile(`^[\w.]+-(?P<platform>\w+)-(?P<arch>\w+)-(?P<version>[\w.\-]+)\.(?:tar\.gz|tgz|zip)$`)

// ParseLegacyArchiveName extracts platform, arch, and version from an
// archive name in the legacy naming scheme. Reports ok=false if name
// does not match.
func ParseLegacyArchiveName(name string) (plat, arch, version string, ok bool) {
	m := legacyArchiveNameRegexp.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", "", "", false
	}
	idx := legacyArchiveNameRegexp.SubexpIndex
	return m[idx("platform")], m[idx("arch")], m[idx("version")], true
}

// StripArchiveExtension derives a binary name from an explicit archive
// filename override by trimming its known extension.
func StripArchiveExtension(archiveName string) string {
	base := filepath.Base(archiveName)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}
