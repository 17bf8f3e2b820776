package integration

import (
	"archive/tar"
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/serverkit/pkg/download"
	"github.com/cuemby/serverkit/pkg/lockfile"
	"github.com/cuemby/serverkit/pkg/platform"
	"github.com/cuemby/serverkit/pkg/supervisor"
	"github.com/cuemby/serverkit/test/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
}

func buildArchiveServer(t *testing.T, binaryContents string) (*httptest.Server, *int) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte(binaryContents)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "bin/minio",
		Mode: 0o755,
		Size: int64(len(body)),
	}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	archive := buf.Bytes()

	hits := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
		w.WriteHeader(http.StatusOK)
		w.Write(archive)
	}))
	return srv, &hits
}

func testBinaryRequest(downloadDir, version string) platform.BinaryRequest {
	return platform.BinaryRequest{
		Version:     version,
		OS:          platform.Descriptor{OS: "linux"},
		Arch:        "amd64",
		DownloadDir: downloadDir,
	}
}

// 1. Fresh start, no cache: provisioning downloads and installs the
// binary, then the supervisor reaches running and reports its bound
// port in its URI.
func TestFreshStartWithNoCache(t *testing.T) {
	skipIfShort(t)
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is shell-script based, unix only")
	}

	srv, hits := buildArchiveServer(t, "#!/bin/sh\necho \"waiting for connections\"\nsleep 30\n")
	defer srv.Close()

	downloadDir := t.TempDir()
	req := testBinaryRequest(downloadDir, "9.9.9-fresh")
	opts := download.Options{DownloadURL: srv.URL + "/archive.tar.gz"}

	path, err := download.NewDownloader().Provision(context.Background(), req, opts)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 1, *hits)
	require.NoError(t, os.Chmod(path, 0o755))

	s := supervisor.NewSupervisor(opts)
	dataPath := t.TempDir()
	err = s.Create(context.Background(), supervisor.Options{
		BinaryPath:    path,
		DataPath:      dataPath,
		LaunchTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer s.Stop(context.Background(), supervisor.CleanupOptions{DoCleanup: true})

	assert.Equal(t, supervisor.Running, s.State())
	assert.Regexp(t, `^mongodb://127\.0\.0\.1:\d+/$`, s.URI("", ""))
}

// 2. Concurrent provisioning: two callers racing Provision for the
// same version and download dir hit the network exactly once and
// leave no lockfile behind.
func TestConcurrentProvisioningDownloadsOnce(t *testing.T) {
	skipIfShort(t)

	srv, hits := buildArchiveServer(t, "fake binary contents")
	defer srv.Close()

	downloadDir := t.TempDir()
	req := testBinaryRequest(downloadDir, "9.9.9-concurrent")
	opts := download.Options{DownloadURL: srv.URL + "/archive.tar.gz"}

	d := download.NewDownloader()
	var wg sync.WaitGroup
	paths := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = d.Provision(context.Background(), req, opts)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, paths[0], paths[1])
	assert.Equal(t, 1, *hits)

	name, err := platform.BinaryName(req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(downloadDir, name), paths[0])
	assert.NoFileExists(t, filepath.Join(downloadDir, req.Version+".lock"))
}

// 3. Supplied data directory preserved: stop with doCleanup but no
// force leaves the caller's own data directory on disk.
func TestSuppliedDataDirectoryPreservedAfterCleanup(t *testing.T) {
	skipIfShort(t)
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is shell-script based, unix only")
	}

	bin := filepath.Join(t.TempDir(), "fake-server")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"waiting for connections\"\nsleep 30\n"), 0o755))

	dataPath := t.TempDir()
	s := supervisor.NewSupervisor(download.Options{})
	require.NoError(t, s.Create(context.Background(), supervisor.Options{
		BinaryPath:    bin,
		DataPath:      dataPath,
		LaunchTimeout: 5 * time.Second,
	}))

	require.NoError(t, s.Stop(context.Background(), supervisor.CleanupOptions{DoCleanup: true, Force: false}))
	assert.DirExists(t, dataPath)
}

// 4. Crash detection: a fake binary emitting a mongod-style
// initAndListen exception surfaces that message and returns the
// supervisor to stopped.
func TestCrashDetectionSurfacesExceptionMessage(t *testing.T) {
	skipIfShort(t)
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is shell-script based, unix only")
	}

	bin := filepath.Join(t.TempDir(), "fake-server")
	script := "#!/bin/sh\necho 'exception in initAndListen: (InvalidBSON): bad magic'\nexit 1\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	s := supervisor.NewSupervisor(download.Options{})
	err := s.Create(context.Background(), supervisor.Options{
		BinaryPath:    bin,
		LaunchTimeout: 5 * time.Second,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidBSON")
	assert.Equal(t, supervisor.Stopped, s.State())
}

// 5. Port-in-use: a preempted requested port is auto-reassigned
// unless force_same_port is set, in which case start fails.
func TestPortInUseIsReassigned(t *testing.T) {
	skipIfShort(t)
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is shell-script based, unix only")
	}

	bin := filepath.Join(t.TempDir(), "fake-server")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"waiting for connections\"\nsleep 30\n"), 0o755))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	occupiedPort := ln.Addr().(*net.TCPAddr).Port

	s := supervisor.NewSupervisor(download.Options{})
	require.NoError(t, s.Create(context.Background(), supervisor.Options{
		BinaryPath:    bin,
		Port:          occupiedPort,
		LaunchTimeout: 5 * time.Second,
	}))
	defer s.Stop(context.Background(), supervisor.CleanupOptions{DoCleanup: true})

	assert.NotEqual(t, occupiedPort, s.Info().Port)

	// The force_same_port failure path itself is covered at the unit
	// level (TestStartFailsWhenForcedOntoOccupiedPort in pkg/supervisor),
	// since exercising it requires setting up the force flag before the
	// very first Start call, which only the package's own tests can do
	// without going through the public Create/Start sequence twice.
}

// 6. Stale lock reclamation: a lockfile referencing a dead pid is
// reclaimed within one check cycle.
func TestStaleLockIsReclaimed(t *testing.T) {
	skipIfShort(t)

	path := filepath.Join(t.TempDir(), "binary.lock")
	require.NoError(t, os.WriteFile(path, []byte("999999 00000000-0000-0000-0000-000000000000"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	handle, err := lockfile.NewLocker().Lock(ctx, path)
	require.NoError(t, err)
	defer handle.Unlock()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "999999")
}

// 7. Post-readiness crash detection: once an instance is running, the
// supervisor keeps watching it — an unexpected exit after readiness
// stops the instance the same as one during startup would have failed
// it, rather than going unnoticed once the startup race is won.
func TestRunningInstanceDetectsCrashAfterReadiness(t *testing.T) {
	skipIfShort(t)
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is shell-script based, unix only")
	}

	bin := filepath.Join(t.TempDir(), "fake-server")
	script := "#!/bin/sh\necho \"waiting for connections\"\nsleep 1\nexit 7\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	s := supervisor.NewSupervisor(download.Options{})
	require.NoError(t, s.Create(context.Background(), supervisor.Options{
		BinaryPath:    bin,
		LaunchTimeout: 5 * time.Second,
	}))
	require.Equal(t, supervisor.Running, s.State())

	waiter := testutil.NewWaiter(5*time.Second, 100*time.Millisecond)
	err := waiter.WaitFor(context.Background(), func() bool {
		return s.State() != supervisor.Running
	}, "instance to stop after an unexpected exit")
	require.NoError(t, err)
	assert.Equal(t, supervisor.Stopped, s.State())
}
