package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/serverkit/pkg/log"
	"github.com/cuemby/serverkit/pkg/platform"
)

// archiveNameFor chooses between the platform-derived archive name and
// an explicit override, mirroring C3's ArchiveName contract: only
// consulted when the caller asked for it.
func archiveNameFor(req platform.BinaryRequest, archiveNameOverride string, useOverrideName bool) (string, error) {
	if archiveNameOverride != "" {
		return archiveNameOverride, nil
	}
	if useOverrideName {
		return platform.ArchiveName(req)
	}
	name, err := platform.BinaryName(req)
	if err != nil {
		return "", err
	}
	return name + archiveExtensionFor(req), nil
}

func archiveExtensionFor(req platform.BinaryRequest) string {
	if req.OS.OS == "win32" || req.OS.OS == "windows" {
		return ".zip"
	}
	return ".tar.gz"
}

// fetchAndInstall runs steps 4 through 8 of the provisioning pipeline:
// fetch the archive to a temp file, atomically install it, optionally
// verify its MD5, extract the binary, and clean up.
func fetchAndInstall(ctx context.Context, req platform.BinaryRequest, opts Options, destBinaryPath, downloadDir string) (string, error) {
	logger := log.WithComponent("download")

	archiveURL, err := archiveURLFor(req, opts)
	if err != nil {
		return "", err
	}

	archiveName, err := archiveNameFor(req, opts.ArchiveName, opts.UseArchiveNameForBinaryName)
	if err != nil {
		return "", err
	}
	archivePath := filepath.Join(downloadDir, archiveName)
	tempPath := archivePath + ".downloading"

	logger.Info().Str("url", archiveURL).Msg("downloading archive")
	if err := fetchToFile(ctx, archiveURL, tempPath, opts, false); err != nil {
		os.Remove(tempPath)
		return "", err
	}

	if err := os.Rename(tempPath, archivePath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("download: install archive: %w", err)
	}
	defer os.Remove(archivePath)

	if req.CheckMD5 {
		if err := verifyMD5(ctx, archiveURL, archivePath, opts); err != nil {
			return "", err
		}
	}

	if err := extractBinary(archivePath, destBinaryPath); err != nil {
		return "", err
	}

	return destBinaryPath, nil
}
