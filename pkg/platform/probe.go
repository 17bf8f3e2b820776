package platform

import (
	"bufio"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/cuemby/serverkit/pkg/log"
)

// Descriptor classifies the host serverkit is running on. Distro,
// Release, Codename, and IDLike are only ever populated on Linux.
type Descriptor struct {
	OS       string
	Distro   string
	Release  string
	Codename string
	IDLike   []string
}

// releaseSources are tried in order on Linux; the first one yielding a
// distro other than "unknown" wins.
var releaseSources = []struct {
	path   string
	format releaseFormat
}{
	{"/etc/upstream-release/lsb-release", formatLSB},
	{"/etc/os-release", formatOSRelease},
	{"/usr/lib/os-release", formatOSRelease},
	{"/etc/lsb-release", formatLSB},
}

type releaseFormat int

const (
	formatLSB releaseFormat = iota
	formatOSRelease
)

// Prober memoizes the result of probing the host for the process
// lifetime. It is a struct rather than a package-level cache so callers
// that want an unmemoized probe (tests, mainly) can just construct a
// fresh one.
type Prober struct {
	once   sync.Once
	result Descriptor
}

// Probe classifies the host into an OS descriptor, memoizing the result.
func (p *Prober) Probe() Descriptor {
	p.once.Do(func() {
		p.result = probeHost()
	})
	return p.result
}

func probeHost() Descriptor {
	if runtime.GOOS != "linux" {
		return Descriptor{OS: runtime.GOOS}
	}

	for _, src := range releaseSources {
		data, err := os.ReadFile(src.path)
		if err != nil {
			continue
		}
		var desc Descriptor
		switch src.format {
		case formatLSB:
			desc = parseLSB(string(data))
		case formatOSRelease:
			desc = parseOSRelease(string(data))
		}
		if desc.Distro != "" && desc.Distro != "unknown" {
			desc.OS = "linux"
			return desc
		}
	}

	log.Warn("unable to determine linux distro from any release file source")
	return Descriptor{OS: "linux", Distro: "unknown", Release: ""}
}

var (
	lsbNameRegexp     = regexp.MustCompile(`(?i)^(?:DISTRIB_ID|Distributor ID)\s*[:=]\s*"?([^"\n]+)"?`)
	lsbCodenameRegexp = regexp.MustCompile(`(?i)^(?:DISTRIB_CODENAME|Codename)\s*[:=]\s*"?([^"\n]+)"?`)
	lsbReleaseRegexp  = regexp.MustCompile(`(?i)^(?:DISTRIB_RELEASE|Release)\s*[:=]\s*"?([^"\n]+)"?`)
)

// parseLSB captures {name, codename, release} from either the
// command-style ("Distributor ID:	Ubuntu") or file-style
// (DISTRIB_ID="Ubuntu") variants of an LSB release file.
func parseLSB(contents string) Descriptor {
	var desc Descriptor
	desc.Distro = "unknown"

	scanner := bufio.NewScanner(strings.NewReader(contents))
	for scanner.Scan() {
		line := scanner.Text()
		if m := lsbNameRegexp.FindStringSubmatch(line); m != nil {
			desc.Distro = normalizeDistro(m[1])
		}
		if m := lsbCodenameRegexp.FindStringSubmatch(line); m != nil {
			desc.Codename = strings.TrimSpace(m[1])
		}
		if m := lsbReleaseRegexp.FindStringSubmatch(line); m != nil {
			desc.Release = strings.TrimSpace(m[1])
		}
	}
	return desc
}

// parseOSRelease captures the KEY=VALUE pairs of an os-release file,
// additionally splitting ID_LIKE on whitespace.
func parseOSRelease(contents string) Descriptor {
	var desc Descriptor
	desc.Distro = "unknown"

	scanner := bufio.NewScanner(strings.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch strings.ToUpper(key) {
		case "ID":
			desc.Distro = normalizeDistro(value)
		case "VERSION_ID":
			desc.Release = value
		case "VERSION_CODENAME":
			desc.Codename = value
		case "ID_LIKE":
			desc.IDLike = strings.Fields(value)
		}
	}
	return desc
}

func normalizeDistro(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
