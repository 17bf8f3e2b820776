package platform

import "regexp"

// distroFamily groups a set of distro identifiers (checked against both
// Descriptor.Distro and each entry of Descriptor.IDLike) with the logic
// that turns a host description plus a version into the distro string
// used in binary_name and archive lookups. Driving this off a table
// rather than a chained if/else keeps adding a new family a one-entry
// change instead of a new branch threaded through existing conditions.
type distroFamily struct {
	name    string
	match   *regexp.Regexp
	resolve func(desc Descriptor, v Version, arch string) (string, error)
}

var distroFamilies = []distroFamily{
	{
		name:    "ubuntu",
		match:   regexp.MustCompile(`(?i)ubuntu`),
		resolve: resolveUbuntu,
	},
	{
		name:    "amzn",
		match:   regexp.MustCompile(`(?i)amzn|amazon`),
		resolve: resolveAmazon,
	},
	{
		name:    "suse",
		match:   regexp.MustCompile(`(?i)suse`),
		resolve: resolveSUSE,
	},
	{
		name:    "rhel",
		match:   regexp.MustCompile(`(?i)rhel|centos|scientific|^ol$`),
		resolve: resolveRHEL,
	},
	{
		name:    "fedora",
		match:   regexp.MustCompile(`(?i)fedora`),
		resolve: resolveFedora,
	},
	{
		name:    "debian",
		match:   regexp.MustCompile(`(?i)debian`),
		resolve: resolveDebian,
	},
	{
		name:    "alpine",
		match:   regexp.MustCompile(`(?i)alpine`),
		resolve: resolveAlpine,
	},
	{
		name:    "arch",
		match:   regexp.MustCompile(`(?i)arch|manjaro|arco`),
		resolve: resolveArchFallback,
	},
	{
		name:    "gentoo",
		match:   regexp.MustCompile(`(?i)gentoo`),
		resolve: resolveGentooFallback,
	},
}

// resolveDistroString dispatches a Linux Descriptor to its distro string
// for binary_name purposes, trying Distro first and then every entry of
// IDLike in order.
func resolveDistroString(desc Descriptor, v Version, arch string) (string, error) {
	for _, candidate := range append([]string{desc.Distro}, desc.IDLike...) {
		for _, fam := range distroFamilies {
			if fam.match.MatchString(candidate) {
				return fam.resolve(desc, v, arch)
			}
		}
	}
	if desc.Distro == "unknown" || desc.Distro == "" {
		warnUnknownDistro(desc)
		return "", nil
	}
	warnUnknownDistro(desc)
	return "", nil
}

func resolveUbuntu(desc Descriptor, v Version, arch string) (string, error) {
	release := desc.Release
	if release == "" {
		release = "2204"
	}
	return "ubuntu" + collapseDots(release), nil
}

func resolveAmazon(desc Descriptor, v Version, arch string) (string, error) {
	return "amazon", nil
}

func resolveSUSE(desc Descriptor, v Version, arch string) (string, error) {
	return "suse" + collapseDots(desc.Release), nil
}

func resolveRHEL(desc Descriptor, v Version, arch string) (string, error) {
	release := desc.Release
	if arch == "arm64" && !v.Latest {
		if compareDotted(release, "8.2") < 0 || v.Less(Version{Major: 4, Minor: 4, Patch: 2}) {
			return "", &KnownVersionIncompatibilityError{
				Distro:  "rhel",
				Arch:    arch,
				Version: v.String(),
				Reason:  "arm64 builds require rhel >= 8.2 and version >= 4.4.2",
			}
		}
	}
	return "rhel" + collapseDots(release), nil
}

func resolveFedora(desc Descriptor, v Version, arch string) (string, error) {
	return "fedora" + collapseDots(desc.Release), nil
}

func resolveDebian(desc Descriptor, v Version, arch string) (string, error) {
	release := desc.Release
	if release == "" {
		release = "11"
	}
	return "debian" + collapseDots(release), nil
}

func resolveAlpine(desc Descriptor, v Version, arch string) (string, error) {
	warnUnsupportedDistro("alpine")
	return "alpine", nil
}

func resolveArchFallback(desc Descriptor, v Version, arch string) (string, error) {
	return "ubuntu2204", nil
}

func resolveGentooFallback(desc Descriptor, v Version, arch string) (string, error) {
	return "debian11", nil
}
