package supervisor

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cuemby/serverkit/pkg/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes an executable shell script standing in for the
// real server binary, so tests never depend on a network download.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is shell-script based, unix only")
	}

	path := filepath.Join(t.TempDir(), "fake-server")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSupervisor() *Supervisor {
	return NewSupervisor(download.Options{})
}

func TestStartReachesRunningOnReadyLine(t *testing.T) {
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)

	s := newTestSupervisor()
	err := s.Create(context.Background(), Options{
		BinaryPath:    bin,
		LaunchTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, Running, s.State())
	assert.NotZero(t, s.Info().Port)

	require.NoError(t, s.Stop(context.Background(), CleanupOptions{DoCleanup: true}))
	assert.Equal(t, New, s.State())
}

func TestStartDetectsCrashWithInvalidBSON(t *testing.T) {
	bin := fakeBinary(t, `echo 'exception in initAndListen: (InvalidBSON): bad magic'; exit 1`)

	s := newTestSupervisor()
	err := s.Create(context.Background(), Options{
		BinaryPath:    bin,
		LaunchTimeout: 5 * time.Second,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidBSON")
	assert.Equal(t, Stopped, s.State())
}

func TestStartTimesOutWithoutReadyLine(t *testing.T) {
	bin := fakeBinary(t, `sleep 30`)

	s := newTestSupervisor()
	err := s.Create(context.Background(), Options{
		BinaryPath:    bin,
		LaunchTimeout: MinLaunchTimeout,
	})

	require.Error(t, err)
	var target *LaunchTimeoutError
	assert.ErrorAs(t, err, &target)
	assert.Equal(t, Stopped, s.State())
}

func TestStartShortCircuitsWhenAlreadyRunning(t *testing.T) {
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)

	s := newTestSupervisor()
	require.NoError(t, s.Create(context.Background(), Options{BinaryPath: bin, LaunchTimeout: 5 * time.Second}))
	defer s.Stop(context.Background(), CleanupOptions{DoCleanup: true})

	infoBefore := s.Info()
	require.NoError(t, s.Start(context.Background(), false))
	assert.Equal(t, infoBefore, s.Info())
}

func TestEnsureInstanceWaitsForConcurrentStart(t *testing.T) {
	bin := fakeBinary(t, `sleep 1; echo "waiting for connections"; sleep 30`)

	s := newTestSupervisor()
	s.opts = Options{BinaryPath: bin, LaunchTimeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), false) }()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, Starting, s.State())

	err := s.EnsureInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Running, s.State())

	require.NoError(t, <-done)
	s.Stop(context.Background(), CleanupOptions{DoCleanup: true})
}

func TestStopPreservesSuppliedDataDir(t *testing.T) {
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)
	dataDir := t.TempDir()

	s := newTestSupervisor()
	require.NoError(t, s.Create(context.Background(), Options{
		BinaryPath:    bin,
		DataPath:      dataDir,
		LaunchTimeout: 5 * time.Second,
	}))

	require.NoError(t, s.Stop(context.Background(), CleanupOptions{DoCleanup: true, Force: false}))
	assert.DirExists(t, dataDir)
}

func TestStopForceRemovesSuppliedDataDir(t *testing.T) {
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)
	dataDir := t.TempDir()

	s := newTestSupervisor()
	require.NoError(t, s.Create(context.Background(), Options{
		BinaryPath:    bin,
		DataPath:      dataDir,
		LaunchTimeout: 5 * time.Second,
	}))

	require.NoError(t, s.Stop(context.Background(), CleanupOptions{DoCleanup: true, Force: true}))
	assert.NoDirExists(t, dataDir)
}

func TestStateTransitionsAreBroadcastInOrder(t *testing.T) {
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)

	s := newTestSupervisor()
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	require.NoError(t, s.Create(context.Background(), Options{BinaryPath: bin, LaunchTimeout: 5 * time.Second}))
	defer s.Stop(context.Background(), CleanupOptions{DoCleanup: true})

	var seen []State
	for i := 0; i < 2; i++ {
		select {
		case change := <-ch:
			seen = append(seen, change.To)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for state broadcast")
		}
	}
	assert.Equal(t, []State{Starting, Running}, seen)
}

func TestStopCleansUpAfterProcessExitsOnItsOwn(t *testing.T) {
	s := newTestSupervisor()
	s.proc = newChildProcess("/bin/true", nil, nil)
	require.NoError(t, s.proc.start(context.Background()))
	time.Sleep(50 * time.Millisecond) // let /bin/true exit on its own

	err := s.Stop(context.Background(), CleanupOptions{DoCleanup: true})
	assert.NoError(t, err)
}

func TestStartFailsWhenForcedOntoOccupiedPort(t *testing.T) {
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	occupiedPort := ln.Addr().(*net.TCPAddr).Port

	s := newTestSupervisor()
	s.opts = Options{BinaryPath: bin, Port: occupiedPort, LaunchTimeout: 5 * time.Second}

	err = s.Start(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
	assert.Equal(t, Stopped, s.State())
}

// TestStopKillsReaperSidecar stands in a long-lived process for the
// reaper (rather than the real self-exec sidecar, which would recurse
// into the test binary) to verify Stop terminates it directly instead
// of leaving it to notice the server is gone on its own poll cycle.
func TestStopKillsReaperSidecar(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake reaper uses a unix shell command")
	}
	bin := fakeBinary(t, `echo "waiting for connections"; sleep 30`)

	s := newTestSupervisor()
	require.NoError(t, s.Create(context.Background(), Options{BinaryPath: bin, LaunchTimeout: 5 * time.Second}))

	reaper := exec.Command("sleep", "30")
	require.NoError(t, reaper.Start())
	s.mu.Lock()
	s.reaperCmd = reaper
	s.mu.Unlock()

	require.NoError(t, s.Stop(context.Background(), CleanupOptions{DoCleanup: true}))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, pidAlive(reaper.Process.Pid))
}

func TestVerifyExecutableGrantsExecuteBitWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake-server")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	require.NoError(t, verifyExecutable(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
}

func TestBinaryNotFoundErrorWhenPathMissing(t *testing.T) {
	s := newTestSupervisor()
	err := s.Create(context.Background(), Options{
		BinaryPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})

	require.Error(t, err)
	var target *BinaryNotFoundError
	assert.ErrorAs(t, err, &target)
}
