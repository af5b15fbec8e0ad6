package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrRuntimeUnavailable is returned when the isolation runtime cannot be reached
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// ContainerSpec describes one isolated environment instance
type ContainerSpec struct {
	Name           string
	Image          string
	MemoryMB       int
	SwapMB         int
	PidsLimit      int64
	NetworkEnabled bool
	User           string
	Command        []string
}

// ExecSpec describes one command executed inside a running container
type ExecSpec struct {
	Container string
	Workdir   string
	Args      []string
	Timeout   time.Duration
}

// ExecOutput is the raw result of an ExecSpec. Truncated is set when either
// stream exceeded the runtime's output limit.
type ExecOutput struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// Runtime is the isolation runtime used by the provisioner and sessions.
// Exec returns ctx.Err() (or context.DeadlineExceeded when spec.Timeout
// elapses) instead of a partial ExecOutput.
type Runtime interface {
	Ping(ctx context.Context) error
	ImageExists(ctx context.Context, image string) (bool, error)
	BuildImage(ctx context.Context, image string, dockerfile []byte) error
	StartContainer(ctx context.Context, spec ContainerSpec) (string, error)
	CopyFile(ctx context.Context, container, destPath string, data []byte) error
	Exec(ctx context.Context, spec ExecSpec) (ExecOutput, error)
	RemoveContainer(ctx context.Context, container string) error
}

// UsageReporter is implemented by runtimes able to report structured
// resource usage for a container
type UsageReporter interface {
	PeakMemoryBytes(ctx context.Context, container string) (uint64, error)
}

func execContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
