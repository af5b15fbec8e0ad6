package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// APIRuntime implements Runtime and UsageReporter on the Docker Engine API
type APIRuntime struct {
	logger         *zap.Logger
	cli            *client.Client
	maxOutputBytes int64
}

// NewAPIRuntime creates a Docker API client from the environment. Each exec
// output stream is capped at maxOutputBytes.
func NewAPIRuntime(logger *zap.Logger, maxOutputBytes int64) (*APIRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return newAPIRuntime(logger, cli, maxOutputBytes), nil
}

func newAPIRuntime(logger *zap.Logger, cli *client.Client, maxOutputBytes int64) *APIRuntime {
	return &APIRuntime{logger: logger, cli: cli, maxOutputBytes: maxOutputBytes}
}

// Close releases the underlying client
func (r *APIRuntime) Close() error {
	return r.cli.Close()
}

// Ping checks that the daemon answers
func (r *APIRuntime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	return nil
}

// ImageExists reports whether image is present locally
func (r *APIRuntime) ImageExists(ctx context.Context, image string) (bool, error) {
	if _, err := r.cli.ImageInspect(ctx, image); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", image, err)
	}
	return true, nil
}

// BuildImage builds image from a single Dockerfile build context
func (r *APIRuntime) BuildImage(ctx context.Context, image string, dockerfile []byte) error {
	buildContext, err := tarFiles(map[string][]byte{DockerfileName: dockerfile})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	resp, err := r.cli.ImageBuild(ctx, bytes.NewReader(buildContext), build.ImageBuildOptions{
		Tags:        []string{image},
		Dockerfile:  DockerfileName,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", image, err)
	}
	defer resp.Body.Close()

	// The stream reports build step failures as error messages
	var progress bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &progress, 0, false, nil); err != nil {
		r.logger.Debug("image build output", zap.String("output", progress.String()))
		return fmt.Errorf("failed to build image %s: %w", image, err)
	}

	r.logger.Info("image built", zap.String("image", image), zap.String("runtime", "docker-api"))
	return nil
}

// StartContainer creates and starts a container and returns its id
func (r *APIRuntime) StartContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	pidsLimit := spec.PidsLimit
	hostConfig := &container.HostConfig{
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:     int64(spec.MemoryMB) * BytesPerMB,
			MemorySwap: int64(spec.SwapMB) * BytesPerMB,
			PidsLimit:  &pidsLimit,
		},
	}
	if !spec.NetworkEnabled {
		hostConfig.NetworkMode = "none"
	}

	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Cmd:   spec.Command,
		User:  spec.User,
	}, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}

// CopyFile writes data to destPath inside the container
func (r *APIRuntime) CopyFile(ctx context.Context, containerID, destPath string, data []byte) error {
	archive, err := tarFiles(map[string][]byte{path.Base(destPath): data})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", destPath, err)
	}

	err = r.cli.CopyToContainer(ctx, containerID, path.Dir(destPath), bytes.NewReader(archive), container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", destPath, err)
	}
	return nil
}

// Exec runs an argument vector inside the container and waits for it
func (r *APIRuntime) Exec(ctx context.Context, spec ExecSpec) (ExecOutput, error) {
	execCtx, cancel := execContext(ctx, spec.Timeout)
	defer cancel()

	execResp, err := r.cli.ContainerExecCreate(execCtx, spec.Container, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   spec.Workdir,
		Cmd:          spec.Args,
	})
	if err != nil {
		if ctxErr := execCtx.Err(); ctxErr != nil {
			return ExecOutput{}, ctxErr
		}
		return ExecOutput{}, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := r.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		if ctxErr := execCtx.Err(); ctxErr != nil {
			return ExecOutput{}, ctxErr
		}
		return ExecOutput{}, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	stdout := newLimitedBuffer(r.maxOutputBytes)
	stderr := newLimitedBuffer(r.maxOutputBytes)
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		done <- copyErr
	}()

	select {
	case copyErr := <-done:
		if copyErr != nil && copyErr != io.EOF {
			return ExecOutput{}, fmt.Errorf("failed to read exec output: %w", copyErr)
		}
	case <-execCtx.Done():
		return ExecOutput{}, execCtx.Err()
	}

	inspect, err := r.cli.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return ExecOutput{}, fmt.Errorf("failed to inspect exec: %w", err)
	}

	truncated := stdout.Truncated() || stderr.Truncated()
	if truncated {
		r.logger.Warn("exec output truncated", zap.String("container", spec.Container), zap.Int64("limit", r.maxOutputBytes))
	}

	return ExecOutput{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  inspect.ExitCode,
		Truncated: truncated,
	}, nil
}

// RemoveContainer force-removes the container; a missing container is not an error
func (r *APIRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// PeakMemoryBytes reads the container's maximum memory usage from a one-shot
// stats sample. Zero means the cgroup does not report it.
func (r *APIRuntime) PeakMemoryBytes(ctx context.Context, containerID string) (uint64, error) {
	resp, err := r.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to read container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, fmt.Errorf("failed to decode container stats: %w", err)
	}

	return stats.MemoryStats.MaxUsage, nil
}
