package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/serverkit/pkg/locate"
	"github.com/cuemby/serverkit/pkg/lockfile"
	"github.com/cuemby/serverkit/pkg/log"
	"github.com/cuemby/serverkit/pkg/metrics"
	"github.com/cuemby/serverkit/pkg/platform"
)

// Options carries the subset of resolved config values Provision needs,
// threaded in explicitly by the caller rather than read from a global
// resolver.
type Options struct {
	Mirror                      string
	DownloadURL                 string
	MaxRedirects                int
	UseHTTP                     bool
	PreferGlobalPath            bool
	ArchiveName                 string
	UseArchiveNameForBinaryName bool
	DisableRuntimeDownload      bool
}

// RuntimeDownloadDisabledError reports that a binary is missing
// locally and Options.DisableRuntimeDownload forbids fetching one.
type RuntimeDownloadDisabledError struct {
	Version string
}

func (e *RuntimeDownloadDisabledError) Error() string {
	return fmt.Sprintf("download: no local binary for version %s and runtime download is disabled", e.Version)
}

// Downloader owns the in-process state Provision needs across calls:
// the version-to-path cache and the Locker serializing concurrent
// downloads of the same version. It is an explicit collaborator,
// constructed once per process (or per test) via NewDownloader, rather
// than read from package-level globals.
type Downloader struct {
	cacheMu sync.Mutex
	cache   map[string]string
	locker  *lockfile.Locker
}

// NewDownloader constructs a Downloader with an empty cache.
func NewDownloader() *Downloader {
	return &Downloader{
		cache:  make(map[string]string),
		locker: lockfile.NewLocker(),
	}
}

// Provision returns the absolute path to a ready-to-run binary for req,
// downloading and extracting it if necessary. Concurrent callers
// sharing this Downloader and requesting the same version share a
// single download via a lockfile at <download_dir>/<version>.lock and
// an in-process cache keyed by version.
func (d *Downloader) Provision(ctx context.Context, req platform.BinaryRequest, opts Options) (string, error) {
	logger := log.WithComponent("download")

	if cached, ok := d.cachedPath(req.Version); ok {
		return cached, nil
	}

	result, err := locate.Locate(req, opts.PreferGlobalPath)
	if err != nil {
		return "", err
	}
	if result.Found {
		d.setCachedPath(req.Version, result.Path)
		return result.Path, nil
	}
	if opts.DisableRuntimeDownload {
		return "", &RuntimeDownloadDisabledError{Version: req.Version}
	}

	downloadDir := filepath.Dir(result.Preferred)
	if err := os.MkdirAll(downloadDir, 0o775); err != nil {
		return "", fmt.Errorf("download: create download dir: %w", err)
	}

	lockPath := filepath.Join(downloadDir, req.Version+".lock")
	handle, err := d.locker.Lock(ctx, lockPath)
	if err != nil {
		return "", fmt.Errorf("download: acquire lock: %w", err)
	}
	defer handle.Unlock()

	// Re-check under the lock: another process may have finished the
	// download while we were waiting for it.
	result, err = locate.Locate(req, opts.PreferGlobalPath)
	if err != nil {
		return "", err
	}
	if result.Found {
		d.setCachedPath(req.Version, result.Path)
		return result.Path, nil
	}
	if cached, ok := d.cachedPath(req.Version); ok {
		return cached, nil
	}

	start := time.Now()
	path, err := fetchAndInstall(ctx, req, opts, result.Preferred, downloadDir)
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return "", err
	}
	metrics.DownloadsTotal.WithLabelValues("success").Inc()

	logger.Info().Str("path", path).Str("version", req.Version).Msg("provisioned binary")
	d.setCachedPath(req.Version, path)
	return path, nil
}

func outcomeLabel(err error) string {
	switch err.(type) {
	case *Md5MismatchError:
		return "md5_mismatch"
	case *HTTPStatusError, *NotAvailableError:
		return "http_error"
	default:
		return "error"
	}
}

func (d *Downloader) cachedPath(version string) (string, bool) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	path, ok := d.cache[version]
	return path, ok
}

func (d *Downloader) setCachedPath(version, path string) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.cache[version] = path
}
