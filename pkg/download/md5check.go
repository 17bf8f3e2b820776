package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Md5MismatchError reports that the downloaded archive's MD5 doesn't
// match the vendor's published sidecar checksum.
type Md5MismatchError struct {
	URL      string
	Expected string
	Got      string
}

func (e *Md5MismatchError) Error() string {
	return fmt.Sprintf("download: md5 mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Got)
}

// verifyMD5 downloads archiveURL+".md5", parses its leading hex token,
// and compares it against the MD5 of the file at archivePath.
func verifyMD5(ctx context.Context, archiveURL, archivePath string, opts Options) error {
	tmp := archivePath + ".md5"
	defer os.Remove(tmp)

	if err := fetchToFile(ctx, archiveURL+".md5", tmp, opts, true); err != nil {
		return fmt.Errorf("download: fetch md5 sidecar: %w", err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return fmt.Errorf("download: read md5 sidecar: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return fmt.Errorf("download: md5 sidecar for %s is empty", archiveURL)
	}
	expected := strings.ToLower(fields[0])

	got, err := md5Sum(archivePath)
	if err != nil {
		return err
	}
	if got != expected {
		return &Md5MismatchError{URL: archiveURL, Expected: expected, Got: got}
	}
	return nil
}

func md5Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("download: open %s for md5: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("download: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
