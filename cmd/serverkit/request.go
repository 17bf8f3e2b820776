package main

import (
	"os"
	"runtime"

	"github.com/cuemby/serverkit/pkg/config"
	"github.com/cuemby/serverkit/pkg/download"
	"github.com/cuemby/serverkit/pkg/platform"
)

var hostProber platform.Prober

// buildRequest resolves a BinaryRequest and the download-pipeline
// options from the environment/manifest/default chain, applying the
// PLATFORM/ARCH/DISTRO overrides on top of the host probe.
func buildRequest(resolver *config.Resolver) (platform.BinaryRequest, download.Options) {
	desc := hostProber.Probe()
	if v, ok := resolver.Resolve(config.Platform); ok && v != "" {
		desc.OS = v
	}
	if v, ok := resolver.Resolve(config.Distro); ok && v != "" {
		desc.Distro = v
	}

	arch := runtime.GOARCH
	if v, ok := resolver.Resolve(config.Arch); ok && v != "" {
		arch = v
	}

	version, _ := resolver.Resolve(config.Version)
	downloadDir, _ := resolver.Resolve(config.DownloadDir)
	systemBinary, _ := resolver.Resolve(config.SystemBinary)
	mirror, _ := resolver.Resolve(config.DownloadMirror)
	downloadURL, _ := resolver.Resolve(config.DownloadURL)
	archiveName, _ := resolver.Resolve(config.ArchiveName)

	req := platform.BinaryRequest{
		Version:      version,
		OS:           desc,
		Arch:         arch,
		DownloadDir:  downloadDir,
		SystemBinary: systemBinary,
		CheckMD5:     resolver.Bool(config.MD5Check),
	}

	opts := download.Options{
		Mirror:                      mirror,
		DownloadURL:                 downloadURL,
		MaxRedirects:                resolver.Int(config.MaxRedirects, 2),
		UseHTTP:                     resolver.Bool(config.UseHTTP),
		PreferGlobalPath:            resolver.Bool(config.PreferGlobalPath),
		ArchiveName:                 archiveName,
		UseArchiveNameForBinaryName: resolver.Bool(config.UseArchiveNameForBinaryName),
		DisableRuntimeDownload:      !resolver.Bool(config.RuntimeDownload),
	}

	return req, opts
}

func newResolver() (*config.Resolver, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.New(cwd)
}
