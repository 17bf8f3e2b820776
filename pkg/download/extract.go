package download

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cuemby/serverkit/pkg/platform"
)

// binaryEntryRegexp matches the archive entry that should be installed
// as the final binary, ignoring any other files the archive ships
// (licenses, readmes, other platform's binaries in a fat archive).
var binaryEntryRegexp = regexp.MustCompile(`bin/(` + regexp.QuoteMeta(platform.BinaryStem) + `|` + regexp.QuoteMeta(platform.BinaryStem) + `\.exe)$`)

// extractBinary streams archivePath (tar.gz/tgz or zip) and copies the
// single entry matching binaryEntryRegexp to destPath with mode 0o775.
func extractBinary(archivePath, destPath string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractFromTarGz(archivePath, destPath)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractFromZip(archivePath, destPath)
	default:
		return fmt.Errorf("download: unrecognized archive format %q", filepath.Base(archivePath))
	}
}

func extractFromTarGz(archivePath, destPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("download: open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("download: open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("download: archive %s has no entry matching %s", filepath.Base(archivePath), binaryEntryRegexp)
		}
		if err != nil {
			return fmt.Errorf("download: read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !binaryEntryRegexp.MatchString(hdr.Name) {
			continue
		}
		return writeBinary(destPath, tr)
	}
}

func extractFromZip(archivePath, destPath string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("download: open zip archive: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !binaryEntryRegexp.MatchString(entry.Name) {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("download: open zip entry %s: %w", entry.Name, err)
		}
		err = writeBinary(destPath, rc)
		rc.Close()
		return err
	}
	return fmt.Errorf("download: archive %s has no entry matching %s", filepath.Base(archivePath), binaryEntryRegexp)
}

// writeBinary copies src to a temporary file beside destPath and then
// renames it into place, so a failed copy never leaves a partial binary
// at destPath.
func writeBinary(destPath string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o775); err != nil {
		return fmt.Errorf("download: create destination dir: %w", err)
	}
	tmpPath := destPath + ".extracting"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o775)
	if err != nil {
		return fmt.Errorf("download: create %s: %w", tmpPath, err)
	}

	_, err = io.Copy(out, src)
	if err == nil {
		err = out.Chmod(0o775)
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download: write %s: %w", destPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download: install %s: %w", destPath, err)
	}
	return nil
}
