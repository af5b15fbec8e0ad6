package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CLIRuntime implements Runtime by driving the docker or podman binary
type CLIRuntime struct {
	logger    *zap.Logger
	binary    string
	cmdRunner CommandRunner
	fs        FileSystem
}

// CLIRuntimeOption defines a functional option for CLIRuntime
type CLIRuntimeOption func(*CLIRuntime)

// WithCommandRunner sets the CommandRunner for CLIRuntime
func WithCommandRunner(cmdRunner CommandRunner) CLIRuntimeOption {
	return func(r *CLIRuntime) {
		r.cmdRunner = cmdRunner
	}
}

// WithFileSystem sets the FileSystem for CLIRuntime
func WithFileSystem(fs FileSystem) CLIRuntimeOption {
	return func(r *CLIRuntime) {
		r.fs = fs
	}
}

// NewCLIRuntime creates a runtime for the given binary ("docker" or "podman")
func NewCLIRuntime(logger *zap.Logger, binary string, opts ...CLIRuntimeOption) *CLIRuntime {
	runtime := &CLIRuntime{
		logger:    logger,
		binary:    binary,
		cmdRunner: RealCommandRunner{}, // Default implementation
		fs:        RealFileSystem{},    // Default implementation
	}

	for _, opt := range opts {
		opt(runtime)
	}

	return runtime
}

func (r *CLIRuntime) run(ctx context.Context, args ...string) (ExecOutput, error) {
	argv := append([]string{r.binary}, args...)
	out, err := r.cmdRunner.RunCommand(ctx, argv)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ExecOutput{}, ctxErr
	}
	if err != nil {
		return ExecOutput{}, fmt.Errorf("failed to run %s %s: %w", r.binary, args[0], err)
	}
	if out.Truncated {
		r.logger.Warn("command output truncated", zap.String("runtime", r.binary), zap.String("command", args[0]))
	}
	return out, nil
}

func (r *CLIRuntime) commandError(action string, out ExecOutput) error {
	return fmt.Errorf("%s %s failed with exit code %d: %s", r.binary, action, out.ExitCode, strings.TrimSpace(out.Stderr))
}

// Ping checks that the runtime daemon answers
func (r *CLIRuntime) Ping(ctx context.Context) error {
	out, err := r.run(ctx, "info")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%w: %w", ErrRuntimeUnavailable, r.commandError("info", out))
	}
	return nil
}

// ImageExists reports whether image is present locally
func (r *CLIRuntime) ImageExists(ctx context.Context, image string) (bool, error) {
	out, err := r.run(ctx, "image", "inspect", image)
	if err != nil {
		return false, err
	}
	return out.ExitCode == 0, nil
}

// BuildImage builds image from a Dockerfile staged in a temporary directory
func (r *CLIRuntime) BuildImage(ctx context.Context, image string, dockerfile []byte) error {
	tempDir, err := r.fs.MkdirTemp("", "judgebox-build-*")
	if err != nil {
		return fmt.Errorf("failed to create build dir: %w", err)
	}
	defer func() {
		if rmErr := r.fs.RemoveAll(tempDir); rmErr != nil {
			r.logger.Error("failed to remove build directory", zap.String("path", tempDir), zap.Error(rmErr))
		}
	}()

	if err := r.fs.WriteFile(filepath.Join(tempDir, DockerfileName), dockerfile, FilePermission); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	out, err := r.run(ctx, "build", "-t", image, tempDir)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return r.commandError("build", out)
	}

	r.logger.Info("image built", zap.String("image", image), zap.String("runtime", r.binary))
	return nil
}

// StartContainer starts a detached container and returns its id
func (r *CLIRuntime) StartContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	args := []string{
		"run", "-d",
		"--name", spec.Name,
		"--memory", fmt.Sprintf("%dm", spec.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", spec.SwapMB),
		"--pids-limit", strconv.FormatInt(spec.PidsLimit, 10),
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
	}

	if !spec.NetworkEnabled {
		args = append(args, "--network", "none")
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}

	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	out, err := r.run(ctx, args...)
	if err != nil {
		return "", err
	}
	if out.ExitCode != 0 {
		return "", r.commandError("run", out)
	}

	id := strings.TrimSpace(out.Stdout)
	if id == "" {
		id = spec.Name
	}
	return id, nil
}

// CopyFile writes data to destPath inside the container
func (r *CLIRuntime) CopyFile(ctx context.Context, container, destPath string, data []byte) error {
	tempDir, err := r.fs.MkdirTemp("", "judgebox-copy-*")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer func() {
		if rmErr := r.fs.RemoveAll(tempDir); rmErr != nil {
			r.logger.Error("failed to remove staging directory", zap.String("path", tempDir), zap.Error(rmErr))
		}
	}()

	staged := filepath.Join(tempDir, filepath.Base(destPath))
	if err := r.fs.WriteFile(staged, data, FilePermission); err != nil {
		return fmt.Errorf("failed to stage file: %w", err)
	}

	out, err := r.run(ctx, "cp", staged, container+":"+destPath)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return r.commandError("cp", out)
	}
	return nil
}

// Exec runs an argument vector inside the container
func (r *CLIRuntime) Exec(ctx context.Context, spec ExecSpec) (ExecOutput, error) {
	execCtx, cancel := execContext(ctx, spec.Timeout)
	defer cancel()

	args := []string{"exec"}
	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}
	args = append(args, spec.Container)
	args = append(args, spec.Args...)

	return r.run(execCtx, args...)
}

// RemoveContainer force-removes the container; a missing container is not an error
func (r *CLIRuntime) RemoveContainer(ctx context.Context, container string) error {
	out, err := r.run(ctx, "rm", "-f", container)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		if strings.Contains(strings.ToLower(out.Stderr), "no such container") {
			return nil
		}
		return r.commandError("rm", out)
	}
	return nil
}
