package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Key is one of the fixed set of options serverkit recognizes.
type Key string

const (
	DownloadDir                 Key = "DOWNLOAD_DIR"
	Platform                    Key = "PLATFORM"
	Arch                        Key = "ARCH"
	Version                     Key = "VERSION"
	Debug                       Key = "DEBUG"
	DownloadMirror              Key = "DOWNLOAD_MIRROR"
	DownloadURL                 Key = "DOWNLOAD_URL"
	PreferGlobalPath            Key = "PREFER_GLOBAL_PATH"
	DisablePostinstall          Key = "DISABLE_POSTINSTALL"
	SystemBinary                Key = "SYSTEM_BINARY"
	MD5Check                    Key = "MD5_CHECK"
	ArchiveName                 Key = "ARCHIVE_NAME"
	RuntimeDownload             Key = "RUNTIME_DOWNLOAD"
	UseHTTP                     Key = "USE_HTTP"
	UseArchiveNameForBinaryName Key = "USE_ARCHIVE_NAME_FOR_BINARY_NAME"
	MaxRedirects                Key = "MAX_REDIRECTS"
	Distro                      Key = "DISTRO"
)

// EnvPrefix is prepended to a Key to form the environment variable name.
const EnvPrefix = "SERVERKIT_"

// PinnedVersion is the built-in default server version.
const PinnedVersion = "2024-01-16T16-07-38Z"

// defaults holds the built-in fallback values, used when neither the
// environment nor the project manifest supplies a value.
var defaults = map[Key]string{
	Version:                     PinnedVersion,
	PreferGlobalPath:            "true",
	RuntimeDownload:             "true",
	UseHTTP:                     "false",
	UseArchiveNameForBinaryName: "false",
	MaxRedirects:                "2",
}

// camelCase maps each SCREAMING_SNAKE key to the camelCase name used in
// the project manifest's nested config section.
var camelCase = map[Key]string{
	DownloadDir:                 "downloadDir",
	Platform:                    "platform",
	Arch:                        "arch",
	Version:                     "version",
	Debug:                       "debug",
	DownloadMirror:              "downloadMirror",
	DownloadURL:                 "downloadURL",
	PreferGlobalPath:            "preferGlobalPath",
	DisablePostinstall:          "disablePostinstall",
	SystemBinary:                "systemBinary",
	MD5Check:                    "md5Check",
	ArchiveName:                 "archiveName",
	RuntimeDownload:             "runtimeDownload",
	UseHTTP:                     "useHTTP",
	UseArchiveNameForBinaryName: "useArchiveNameForBinaryName",
	MaxRedirects:                "maxRedirects",
	Distro:                      "distro",
}

// absoluteKeys holds the keys whose manifest values are resolved relative
// to the manifest's own directory rather than treated as opaque strings.
var absoluteKeys = map[Key]bool{
	DownloadDir:  true,
	SystemBinary: true,
}

// Resolver performs the env -> manifest -> defaults lookup. It is an
// explicit collaborator, not global state: every component that needs
// configuration is handed a *Resolver rather than reaching for
// package-level lookups.
type Resolver struct {
	manifest    map[Key]string
	manifestDir string
}

// New builds a Resolver by walking upward from startDir looking for a
// project manifest (see manifest.go). A missing manifest is not an
// error — resolution simply falls through to env vars and defaults.
func New(startDir string) (*Resolver, error) {
	values, dir, err := findManifest(startDir)
	if err != nil {
		return nil, err
	}
	return &Resolver{manifest: values, manifestDir: dir}, nil
}

// Resolve looks up key in env, then manifest, then built-in defaults.
func (r *Resolver) Resolve(key Key) (string, bool) {
	if v, ok := os.LookupEnv(EnvPrefix + string(key)); ok {
		return v, true
	}
	if r != nil {
		if v, ok := r.manifest[key]; ok {
			if absoluteKeys[key] && v != "" && !filepath.IsAbs(v) {
				v = filepath.Join(r.manifestDir, v)
			}
			return v, true
		}
	}
	if v, ok := defaults[key]; ok {
		return v, true
	}
	return "", false
}

// Bool resolves key and parses it as a boolean: {1, on, yes, true}
// case-insensitive is true, anything else is false.
func (r *Resolver) Bool(key Key) bool {
	v, ok := r.Resolve(key)
	if !ok {
		return false
	}
	return ParseBool(v)
}

// Int resolves key and parses it as an integer, falling back to def when
// the value is absent or not a valid integer.
func (r *Resolver) Int(key Key, def int) int {
	v, ok := r.Resolve(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// ParseBool implements serverkit's boolean grammar.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "yes", "true":
		return true
	default:
		return false
	}
}
