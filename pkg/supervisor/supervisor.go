package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/serverkit/pkg/download"
	"github.com/cuemby/serverkit/pkg/locate"
	"github.com/cuemby/serverkit/pkg/log"
	"github.com/cuemby/serverkit/pkg/metrics"
)

// tempDirPrefix names the temp data directories this supervisor
// creates itself. Stop's cleanup tells them apart from a
// caller-supplied data directory by the recorded tmpDir, not by this
// prefix.
const tempDirPrefix = "serverkit-tst-"

// Supervisor owns one supervised instance's lifecycle: locating or
// provisioning its binary, spawning it, watching its output for
// readiness or fatal conditions, and guaranteeing its shutdown even if
// this process dies first (via the reaper sidecar).
type Supervisor struct {
	downloadOpts download.Options
	downloader   *download.Downloader

	mu       sync.Mutex
	opts     Options
	state    State
	starting bool
	stopping bool
	ready    *readySignal

	proc      *childProcess
	info      InstanceInfo
	tmpDir    string
	primary   bool
	broker    *StateBroker
	reaperCmd *exec.Cmd
}

// NewSupervisor constructs a Supervisor in the New state. downloadOpts
// is threaded through explicitly to pkg/download, per the "no hidden
// global state" design the version cache and lock registry already
// follow; this Supervisor's own Downloader instance is the explicit
// collaborator that actually owns that cache and lock bookkeeping.
func NewSupervisor(downloadOpts download.Options) *Supervisor {
	return &Supervisor{
		downloadOpts: downloadOpts,
		downloader:   download.NewDownloader(),
		state:        New,
		broker:       newStateBroker(),
	}
}

// Subscribe returns a channel receiving subsequent state transitions,
// with the delivery limits described on StateBroker.Subscribe. Callers
// must Unsubscribe when done.
func (s *Supervisor) Subscribe() chan StateChange {
	return s.broker.Subscribe()
}

func (s *Supervisor) Unsubscribe(ch chan StateChange) {
	s.broker.Unsubscribe(ch)
}

// State reports the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the running instance's details.
func (s *Supervisor) Info() InstanceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// URI builds a connection string for the running instance.
func (s *Supervisor) URI(db, ip string) string {
	info := s.Info()
	host := ip
	if host == "" {
		host = info.IP
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", host, info.Port, db)
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	metrics.InstancesTotal.WithLabelValues(string(to)).Inc()
	if to == Running {
		metrics.RunningInstances.Inc()
	}
	if from == Running && to != Running {
		metrics.RunningInstances.Dec()
	}
	s.broker.publish(StateChange{From: from, To: to, At: time.Now()})
}

// Create constructs the instance's options and immediately starts it,
// per the source's create = construct + start contract.
func (s *Supervisor) Create(ctx context.Context, opts Options) error {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
	return s.Start(ctx, false)
}

// Start transitions new|stopped -> starting -> running. Calling Start
// while already starting fails with AlreadyStartingError (single
// flight). Calling Start while already running is a documented
// short-circuit: it returns nil without restarting anything, the
// upstream tooling's own (likely unintentional) behavior.
func (s *Supervisor) Start(ctx context.Context, forceSamePort bool) error {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return nil
	}
	if s.starting {
		s.mu.Unlock()
		return &AlreadyStartingError{}
	}
	s.starting = true
	s.ready = newReadySignal()
	opts := s.opts
	ready := s.ready
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	s.setState(Starting)
	start := time.Now()

	err := s.runStartPipeline(ctx, opts, forceSamePort)
	if err != nil {
		log.WithComponent("supervisor").Error().Err(err).Msg("start failed")
		_ = s.Stop(ctx, CleanupOptions{DoCleanup: false})
		s.setState(Stopped)
		ready.complete(err)
		return err
	}

	metrics.InstanceStartDuration.Observe(time.Since(start).Seconds())
	s.setState(Running)
	ready.complete(nil)
	return nil
}

func (s *Supervisor) runStartPipeline(ctx context.Context, opts Options, forceSamePort bool) error {
	port := opts.Port
	if forceSamePort && s.info.Port != 0 {
		port = s.info.Port
	}
	selected, err := selectPort(port, opts.IP)
	if err != nil {
		return err
	}
	if forceSamePort && opts.Port != 0 && selected != opts.Port {
		return &StdoutInstanceError{Message: fmt.Sprintf("Port %d already in use", opts.Port)}
	}

	dataPath, tmpDir, err := resolveDataPath(opts.DataPath)
	if err != nil {
		return err
	}

	binaryPath, err := s.resolveBinary(ctx, opts)
	if err != nil {
		return err
	}
	if err := verifyExecutable(binaryPath); err != nil {
		return err
	}

	if opts.Auth != nil {
		if err := opts.Auth.CreateAuth(dataPath); err != nil {
			return fmt.Errorf("supervisor: create auth: %w", err)
		}
	}

	args := append([]string{"server", dataPath}, opts.Args...)
	proc := newChildProcess(binaryPath, args, nil)
	if err := proc.start(ctx); err != nil {
		return err
	}

	reaperCmd, err := spawnReaper(proc.pid())
	if err != nil {
		log.WithComponent("supervisor").Warn().Err(err).Msg("failed to spawn reaper sidecar")
	}

	s.mu.Lock()
	s.proc = proc
	s.tmpDir = tmpDir
	s.reaperCmd = reaperCmd
	s.info = InstanceInfo{Port: selected, DataPath: dataPath, IP: opts.IP, TmpDir: tmpDir, PID: proc.pid()}
	s.mu.Unlock()

	if opts.Auth != nil {
		if err := opts.Auth.CreateAuth(dataPath); err != nil {
			return fmt.Errorf("supervisor: create auth: %w", err)
		}
	}

	timeout := opts.LaunchTimeout
	if timeout <= 0 {
		timeout = DefaultLaunchTimeout
	}
	if timeout < MinLaunchTimeout {
		timeout = MinLaunchTimeout
	}

	if err := s.awaitReady(ctx, proc, timeout); err != nil {
		s.killReaper()
		return err
	}
	go s.monitorEvents(proc)
	return nil
}

// killReaper terminates this instance's reaper sidecar directly,
// rather than leaving it to notice the server process is gone on its
// next poll. Safe to call when no reaper was ever spawned.
func (s *Supervisor) killReaper() {
	s.mu.Lock()
	cmd := s.reaperCmd
	s.reaperCmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

// awaitReady races the output classifier, an unexpected process exit,
// and the launch timeout, the four-way race the original design
// describes.
func (s *Supervisor) awaitReady(ctx context.Context, proc *childProcess, timeout time.Duration) error {
	exited := proc.waitCh()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-proc.events:
			if ev.fatal != nil {
				return ev.fatal
			}
			if ev.replState != "" {
				s.mu.Lock()
				if ev.replState != "PRIMARY" {
					s.primary = false
				}
				s.mu.Unlock()
			}
			if ev.primary {
				s.mu.Lock()
				s.primary = true
				s.mu.Unlock()
			}
			if ev.ready {
				return nil
			}
		case <-exited:
			if err := closeError(proc.command(), proc.waitResult()); err != nil {
				return err
			}
			return fmt.Errorf("supervisor: process exited before becoming ready")
		case <-timer.C:
			return &LaunchTimeoutError{Timeout: timeout.String()}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// monitorEvents keeps draining proc.events for the instance's full
// running lifetime, past the startup race awaitReady handles. A fatal
// condition or an unexpected exit detected this way stops the instance
// the same as one detected during startup would have failed it; an
// exit caused by a caller's own Stop call is not "unexpected" and is
// left alone (see isStopping). Without this, proc.events fills past
// its buffer once awaitReady returns and captureLogs blocks forever on
// the next send.
func (s *Supervisor) monitorEvents(proc *childProcess) {
	exited := proc.waitCh()
	for {
		select {
		case ev := <-proc.events:
			if ev.fatal != nil && !s.isStopping() {
				log.WithComponent("supervisor").Error().Err(ev.fatal).Msg("fatal condition detected, stopping instance")
				_ = s.Stop(context.Background(), CleanupOptions{DoCleanup: false})
				return
			}
			if ev.replState != "" {
				s.mu.Lock()
				if ev.replState != "PRIMARY" {
					s.primary = false
				}
				s.mu.Unlock()
			}
			if ev.primary {
				s.mu.Lock()
				s.primary = true
				s.mu.Unlock()
			}
		case <-exited:
			// A caller-driven Stop sends SIGINT/SIGKILL itself, so the
			// resulting signaled exit isn't "unexpected" — s.stopping
			// being set distinguishes that from a crash.
			if err := closeError(proc.command(), proc.waitResult()); err != nil && !s.isStopping() {
				log.WithComponent("supervisor").Error().Err(err).Msg("process closed unexpectedly, stopping instance")
				_ = s.Stop(context.Background(), CleanupOptions{DoCleanup: false})
			}
			return
		}
	}
}

func (s *Supervisor) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// windowsSigintExitCode is the exit code Windows builds of the server
// use in place of a real SIGINT; treated as a clean close rather than
// UnexpectedCloseError.
const windowsSigintExitCode = 12

// closeError turns a completed exec.Cmd plus its Wait error into an
// UnexpectedCloseError, extracting a signal name when the process was
// killed by one rather than exiting with a code. Returns nil for a
// clean exit(0), and also for exit(12) on Windows, which that
// platform's build substitutes for a SIGINT-driven shutdown.
func closeError(cmd *exec.Cmd, waitErr error) error {
	if cmd.ProcessState == nil {
		return &UnexpectedCloseError{Code: -1}
	}
	if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		name := status.Signal().String()
		if status.Signal() == syscall.SIGILL {
			name = "SIGILL"
		}
		return &UnexpectedCloseError{Signal: name}
	}
	code := cmd.ProcessState.ExitCode()
	if code == 0 {
		return nil
	}
	if runtime.GOOS == "windows" && code == windowsSigintExitCode {
		return nil
	}
	return &UnexpectedCloseError{Code: code}
}

// EnsureInstance waits for the running state, starting the instance if
// it's currently new or stopped, and failing if a concurrent Start
// settles on anything other than running.
func (s *Supervisor) EnsureInstance(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	starting := s.starting
	ready := s.ready
	s.mu.Unlock()

	switch {
	case state == Running:
		return nil
	case starting && ready != nil:
		select {
		case <-ready.wait():
			if err := ready.result(); err != nil {
				return err
			}
			if s.State() != Running {
				return fmt.Errorf("supervisor: instance did not reach running state")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return s.Start(ctx, false)
	}
}

// Stop terminates the supervised process and reaper, then transitions
// to stopped. If cleanup.DoCleanup is set it additionally removes any
// temp data directory this supervisor created, and if cleanup.Force is
// also set, the caller-supplied directory too.
func (s *Supervisor) Stop(ctx context.Context, cleanup CleanupOptions) error {
	s.mu.Lock()
	proc := s.proc
	tmpDir := s.tmpDir
	dataPath := s.info.DataPath
	s.stopping = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stopping = false
		s.mu.Unlock()
	}()

	if proc != nil {
		if err := proc.stop(); err != nil {
			return err
		}
	}
	s.killReaper()

	s.setState(Stopped)

	if !cleanup.DoCleanup {
		return nil
	}
	if proc != nil && proc.isRunning() {
		return &ProcessAliveError{}
	}

	if tmpDir != "" {
		if err := os.RemoveAll(tmpDir); err != nil {
			return fmt.Errorf("supervisor: remove temp data dir: %w", err)
		}
	}
	if cleanup.Force && dataPath != "" && dataPath != tmpDir {
		info, err := os.Stat(dataPath)
		if err == nil && info.IsDir() {
			if err := os.RemoveAll(dataPath); err != nil {
				return fmt.Errorf("supervisor: remove data dir: %w", err)
			}
		}
	}

	s.setState(New)
	return nil
}

func (s *Supervisor) resolveBinary(ctx context.Context, opts Options) (string, error) {
	if opts.BinaryPath != "" {
		return opts.BinaryPath, nil
	}

	result, err := locate.Locate(opts.Request, true)
	if err != nil {
		return "", err
	}
	if result.Found {
		return result.Path, nil
	}

	return s.downloader.Provision(ctx, opts.Request, s.downloadOpts)
}

func verifyExecutable(path string) error {
	if _, err := os.Stat(path); err != nil {
		return &BinaryNotFoundError{Detail: err.Error()}
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return &InsufficientPermissionsError{Path: path, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &BinaryNotFoundError{Detail: err.Error()}
	}
	if info.Mode()&0o111 == 0 {
		return &InsufficientPermissionsError{Path: path, Err: fmt.Errorf("no execute bit after chmod")}
	}
	return nil
}

// resolveDataPath returns the directory the server should write to,
// plus a non-empty tmpDir when Start created that directory itself
// so Stop knows it's safe to remove.
func resolveDataPath(supplied string) (dataPath, tmpDir string, err error) {
	if supplied == "" {
		dir, err := os.MkdirTemp("", tempDirPrefix)
		if err != nil {
			return "", "", fmt.Errorf("supervisor: create temp data dir: %w", err)
		}
		return dir, dir, nil
	}

	if err := os.MkdirAll(supplied, 0o755); err != nil {
		return "", "", fmt.Errorf("supervisor: create data dir: %w", err)
	}
	return supplied, "", nil
}
