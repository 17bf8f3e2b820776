package supervisor

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// reapPollInterval is how often the reaper checks whether its parent
// is still alive.
const reapPollInterval = 2 * time.Second

// spawnReaper launches a detached copy of the current executable
// running the "reap" subcommand, which polls both this process and
// serverPID and kills the server if the parent disappears without
// stopping it cleanly. The reaper's Wait is run in a background
// goroutine so it's reaped from this process's own wait set without
// ever blocking this process's exit.
func spawnReaper(serverPID int) (*exec.Cmd, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exePath, "reap", strconv.Itoa(os.Getpid()), strconv.Itoa(serverPID))
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() { _ = cmd.Wait() }()
	return cmd, nil
}

// RunReaper is the body of the "reap" subcommand: it polls parentPID
// and serverPID, and SIGKILLs serverPID the moment parentPID is no
// longer alive. It returns once serverPID itself is no longer alive,
// whatever the cause.
func RunReaper(parentPID, serverPID int) {
	ticker := time.NewTicker(reapPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !pidAlive(serverPID) {
			return
		}
		if !pidAlive(parentPID) {
			_ = syscall.Kill(serverPID, syscall.SIGKILL)
			return
		}
	}
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}
