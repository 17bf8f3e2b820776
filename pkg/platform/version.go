package platform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a loosely-parsed dotted version string. Less compares
// Major, Minor, and Patch; the raw string is carried along for display
// and for exact matches against download URLs.
type Version struct {
	Major, Minor, Patch int
	Latest              bool
	Raw                 string
}

var (
	versionRegexp = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?`)
	latestRegexp  = regexp.MustCompile(`^v?\d+\.\d+-latest$`)
)

// ParseVersion accepts ordinary dotted versions ("4.4.2", "v5.0") and
// the sentinel form "<major>.<minor>-latest", which is treated as
// always-current and suppresses the ARM64/RHEL lower-bound checks in
// resolveRHEL.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("platform: empty version string")
	}

	if latestRegexp.MatchString(raw) {
		m := versionRegexp.FindStringSubmatch(raw)
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		return Version{Major: major, Minor: minor, Latest: true, Raw: raw}, nil
	}

	m := versionRegexp.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, fmt.Errorf("platform: cannot parse version %q", raw)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	return Version{Major: major, Minor: minor, Patch: patch, Raw: raw}, nil
}

// Less reports whether v is strictly older than other's major.minor.patch.
// A Latest version is never Less than anything.
func (v Version) Less(other Version) bool {
	if v.Latest {
		return false
	}
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

func (v Version) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
