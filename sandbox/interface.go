package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// CommandRunner defines an interface for executing host commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (ExecOutput, error)
}

// RealCommandRunner implements CommandRunner using actual exec commands.
// Each captured stream keeps at most MaxOutputBytes, DefaultMaxOutputBytes
// when unset.
type RealCommandRunner struct {
	MaxOutputBytes int64
}

// RunCommand executes the given argument vector. A non-zero exit is reported
// through ExitCode, not err. When ctx expires the process is killed and
// ExitCode is -1; callers inspect ctx.Err() to tell the two apart.
func (r RealCommandRunner) RunCommand(ctx context.Context, args []string) (ExecOutput, error) {
	if len(args) < 1 {
		return ExecOutput{}, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Argument vector, never a shell string

	stdout := newLimitedBuffer(r.MaxOutputBytes)
	stderr := newLimitedBuffer(r.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return ExecOutput{}, err
		}
		exitCode = exitError.ExitCode()
	}

	return ExecOutput{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}, nil
}

// FileSystem defines an interface for the host file operations used to stage
// artifacts before they are copied into a container
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission and size constants
const (
	FilePermission = 0644
	BytesPerKB     = 1024
	BytesPerMB     = 1024 * 1024
)

// Artifact names inside the session working directory
const (
	InputFileName  = "input.txt"
	DockerfileName = "Dockerfile"
)
