package supervisor

import (
	"time"

	"github.com/cuemby/serverkit/pkg/platform"
)

// DefaultLaunchTimeout is used when Options.LaunchTimeout is zero.
const DefaultLaunchTimeout = 10 * time.Second

// MinLaunchTimeout is the floor Start clamps LaunchTimeout to.
const MinLaunchTimeout = 1 * time.Second

// AuthProvider is the hook point for a "createAuth" step the upstream
// tooling exposes but never reaches in practice. No implementation is
// provided; a Supervisor with a nil AuthProvider simply skips it.
type AuthProvider interface {
	CreateAuth(dataPath string) error
}

// Options configures a single supervised instance.
type Options struct {
	Port          int
	DataPath      string
	IP            string
	Args          []string
	LaunchTimeout time.Duration
	Auth          AuthProvider

	Request     platform.BinaryRequest
	BinaryPath  string
	DownloadDir string
}

// InstanceInfo is the read-only snapshot exposed to callers.
type InstanceInfo struct {
	Port     int
	DataPath string
	IP       string
	TmpDir   string
	PID      int
}

// CleanupOptions governs what Stop does to the data directory.
type CleanupOptions struct {
	DoCleanup bool
	Force     bool
}
