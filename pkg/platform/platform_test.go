package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeIsMemoized(t *testing.T) {
	// probeHost itself branches on runtime.GOOS, so this only exercises
	// the Linux path meaningfully on a Linux CI host; the memoization
	// contract is what's actually under test here.
	var p Prober
	first := p.Probe()
	second := p.Probe()
	assert.Equal(t, first, second)
}

func TestParseLSB(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantCode string
		wantRel  string
	}{
		{
			name:     "file style",
			input:    "DISTRIB_ID=Ubuntu\nDISTRIB_RELEASE=22.04\nDISTRIB_CODENAME=jammy\n",
			wantName: "ubuntu",
			wantRel:  "22.04",
			wantCode: "jammy",
		},
		{
			name:     "command style",
			input:    "Distributor ID:\tUbuntu\nRelease:\t20.04\nCodename:\tfocal\n",
			wantName: "ubuntu",
			wantRel:  "20.04",
			wantCode: "focal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := parseLSB(tt.input)
			assert.Equal(t, tt.wantName, desc.Distro)
			assert.Equal(t, tt.wantRel, desc.Release)
			assert.Equal(t, tt.wantCode, desc.Codename)
		})
	}
}

func TestParseOSRelease(t *testing.T) {
	input := `ID=ubuntu
VERSION_ID="22.04"
VERSION_CODENAME=jammy
ID_LIKE="debian"
`
	desc := parseOSRelease(input)
	assert.Equal(t, "ubuntu", desc.Distro)
	assert.Equal(t, "22.04", desc.Release)
	assert.Equal(t, "jammy", desc.Codename)
	assert.Equal(t, []string{"debian"}, desc.IDLike)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("4.4.2")
	require.NoError(t, err)
	assert.Equal(t, 4, v.Major)
	assert.Equal(t, 4, v.Minor)
	assert.Equal(t, 2, v.Patch)
	assert.False(t, v.Latest)

	latest, err := ParseVersion("5.0-latest")
	require.NoError(t, err)
	assert.True(t, latest.Latest)
	assert.False(t, latest.Less(Version{Major: 99}))

	_, err = ParseVersion("not-a-version")
	assert.Error(t, err)
}

func TestTranslatePlatform(t *testing.T) {
	tests := []struct {
		os      string
		version string
		want    string
		wantErr bool
	}{
		{os: "darwin", version: "5.0.0", want: "darwin"},
		{os: "linux", version: "5.0.0", want: "linux"},
		{os: "elementary OS", version: "5.0.0", want: "linux"},
		{os: "win32", version: "4.2.0", want: "win32"},
		{os: "win32", version: "4.3.0", want: "windows"},
		{os: "win32", version: "4.4.0", want: "windows"},
		{os: "plan9", version: "5.0.0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := translatePlatform(tt.os, tt.version)
		if tt.wantErr {
			assert.Error(t, err)
			var target *UnknownPlatformError
			assert.ErrorAs(t, err, &target)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestTranslateArch(t *testing.T) {
	tests := []struct {
		arch     string
		platform string
		want     string
		wantErr  bool
	}{
		{arch: "x64", platform: "linux", want: "amd64"},
		{arch: "amd64", platform: "linux", want: "amd64"},
		{arch: "x86_64", platform: "linux", want: "amd64"},
		{arch: "arm64", platform: "linux", want: "arm64"},
		{arch: "aarch64", platform: "linux", want: "aarch64"},
		{arch: "ia32", platform: "linux", want: "i686"},
		{arch: "ia32", platform: "windows", want: "i386"},
		{arch: "sparc", platform: "linux", wantErr: true},
	}
	for _, tt := range tests {
		got, err := translateArch(tt.arch, tt.platform)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolveRHELArm64VersionIncompatibility(t *testing.T) {
	desc := Descriptor{OS: "linux", Distro: "rhel", Release: "8.1"}
	v, err := ParseVersion("4.4.2")
	require.NoError(t, err)

	_, err = resolveRHEL(desc, v, "arm64")
	require.Error(t, err)
	var target *KnownVersionIncompatibilityError
	assert.ErrorAs(t, err, &target)
}

func TestResolveRHELArm64CompatibleVersion(t *testing.T) {
	desc := Descriptor{OS: "linux", Distro: "rhel", Release: "8.2"}
	v, err := ParseVersion("4.4.2")
	require.NoError(t, err)

	got, err := resolveRHEL(desc, v, "arm64")
	require.NoError(t, err)
	assert.Equal(t, "rhel82", got)
}

func TestResolveRHELArm64LatestSuppressesLowerBound(t *testing.T) {
	desc := Descriptor{OS: "linux", Distro: "rhel", Release: "7.9"}
	v, err := ParseVersion("4.4-latest")
	require.NoError(t, err)

	_, err = resolveRHEL(desc, v, "arm64")
	assert.NoError(t, err)
}

func TestResolveDistroStringFallbacks(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want string
	}{
		{name: "arch falls back to ubuntu 2204", desc: Descriptor{OS: "linux", Distro: "arch"}, want: "ubuntu2204"},
		{name: "manjaro falls back to ubuntu 2204", desc: Descriptor{OS: "linux", Distro: "manjaro"}, want: "ubuntu2204"},
		{name: "gentoo falls back to debian 11", desc: Descriptor{OS: "linux", Distro: "gentoo"}, want: "debian11"},
		{name: "id_like carries the match when distro itself doesn't", desc: Descriptor{OS: "linux", Distro: "pop", IDLike: []string{"ubuntu", "debian"}}, want: "ubuntu2204"},
	}
	v, err := ParseVersion("5.0.0")
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDistroString(tt.desc, v, "amd64")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBinaryNameLinuxIncludesDistro(t *testing.T) {
	req := BinaryRequest{
		Version: "5.0.0",
		OS:      Descriptor{OS: "linux", Distro: "ubuntu", Release: "22.04"},
		Arch:    "amd64",
	}
	name, err := BinaryName(req)
	require.NoError(t, err)
	assert.Equal(t, "mongod-amd64-ubuntu2204-5.0.0", name)
}

func TestBinaryNameWindowsHasExeSuffix(t *testing.T) {
	req := BinaryRequest{
		Version: "5.0.0",
		OS:      Descriptor{OS: "win32"},
		Arch:    "amd64",
	}
	name, err := BinaryName(req)
	require.NoError(t, err)
	assert.Equal(t, "mongod-amd64-windows-5.0.0.exe", name)
}

func TestArchiveURLUsesOverrideVerbatim(t *testing.T) {
	req := BinaryRequest{Version: "5.0.0", OS: Descriptor{OS: "linux"}, Arch: "amd64"}
	got, err := ArchiveURL(req, "", "https://example.com/custom/archive.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/custom/archive.tar.gz", got)
}

func TestArchiveURLRejectsInvalidOverride(t *testing.T) {
	req := BinaryRequest{Version: "5.0.0", OS: Descriptor{OS: "linux"}, Arch: "amd64"}
	_, err := ArchiveURL(req, "", "not a url")
	assert.Error(t, err)
}

func TestArchiveURLBuildsFromMirror(t *testing.T) {
	req := BinaryRequest{Version: "5.0.0", OS: Descriptor{OS: "linux"}, Arch: "amd64"}
	got, err := ArchiveURL(req, "https://mirror.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.com/linux-amd64/archive/5.0.0", got)
}

func TestParseLegacyArchiveName(t *testing.T) {
	plat, arch, version, ok := ParseLegacyArchiveName("minio-linux-amd64-5.0.0.tar.gz")
	require.True(t, ok)
	assert.Equal(t, "linux", plat)
	assert.Equal(t, "amd64", arch)
	assert.Equal(t, "5.0.0", version)

	_, _, _, ok = ParseLegacyArchiveName("garbage.txt")
	assert.False(t, ok)
}
