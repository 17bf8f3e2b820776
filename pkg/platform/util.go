package platform

import (
	"strconv"
	"strings"

	"github.com/cuemby/serverkit/pkg/log"
)

// collapseDots turns a dotted release string like "22.04" into the
// concatenated form used in binary names, "2204".
func collapseDots(release string) string {
	return strings.ReplaceAll(release, ".", "")
}

// compareDotted compares two dotted version-like strings ("8.2" vs
// "8.10") component-wise, returning -1/0/1. Missing or non-numeric
// components compare as 0.
func compareDotted(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func warnUnknownDistro(desc Descriptor) {
	log.Logger.Warn().Str("distro", desc.Distro).Msg("unrecognized linux distro, falling back to legacy empty distro string")
}

func warnUnsupportedDistro(name string) {
	log.Logger.Warn().Str("distro", name).Msg("distro is not officially supported")
}
