package sandbox

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/isdmx/judgebox/safety"
)

// MockCommandRunner implements CommandRunner for testing. Results are keyed
// by the space-joined argument vector.
type MockCommandRunner struct {
	mu             sync.Mutex
	calls          [][]string
	commandResults map[string]mockCommandResult
	defaultResult  mockCommandResult
}

type mockCommandResult struct {
	stdout    string
	stderr    string
	exitCode  int
	truncated bool
	err       error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (ExecOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]string(nil), args...))

	result, exists := m.commandResults[strings.Join(args, " ")]
	if !exists {
		result = m.defaultResult
	}
	if result.err != nil {
		return ExecOutput{}, result.err
	}
	return ExecOutput{
		Stdout:    result.stdout,
		Stderr:    result.stderr,
		ExitCode:  result.exitCode,
		Truncated: result.truncated,
	}, nil
}

func (m *MockCommandRunner) lastCall() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	tempDir       string
	writeFileErr  error
	writeFileData map[string][]byte
	removed       []string
}

func (m *MockFileSystem) MkdirTemp(_, _ string) (string, error) {
	if m.tempDir != "" {
		return m.tempDir, nil
	}
	return "/tmp/test", nil
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if m.writeFileErr != nil {
		return m.writeFileErr
	}
	if m.writeFileData == nil {
		m.writeFileData = make(map[string][]byte)
	}
	m.writeFileData[filename] = data
	return nil
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.removed = append(m.removed, path)
	return nil
}

// MockRuntime implements Runtime for testing. It tracks which containers are
// running so tests can assert nothing is left behind.
type MockRuntime struct {
	mu sync.Mutex

	pingErr        error
	images         map[string]bool
	imageExistsErr error
	buildErr       error
	buildDelay     time.Duration
	builds         []string
	dockerfiles    [][]byte

	startErr error
	started  []ContainerSpec
	running  map[string]bool

	copyErr error
	copied  map[string][]byte

	mkdirOut      ExecOutput
	compileOut    ExecOutput
	compileErr    error
	hangOnCompile bool
	runOut        ExecOutput
	runErr        error
	hangOnRun     bool
	panicOnRun    bool
	execs         []ExecSpec

	removeErr error
	removed   []string
}

func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		images:  make(map[string]bool),
		running: make(map[string]bool),
		copied:  make(map[string][]byte),
	}
}

func (m *MockRuntime) Ping(_ context.Context) error {
	if m.pingErr != nil {
		return errors.Join(ErrRuntimeUnavailable, m.pingErr)
	}
	return nil
}

func (m *MockRuntime) ImageExists(_ context.Context, image string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.imageExistsErr != nil {
		return false, m.imageExistsErr
	}
	return m.images[image], nil
}

func (m *MockRuntime) BuildImage(ctx context.Context, image string, dockerfile []byte) error {
	if m.buildDelay > 0 {
		select {
		case <-time.After(m.buildDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buildErr != nil {
		return m.buildErr
	}
	m.builds = append(m.builds, image)
	m.dockerfiles = append(m.dockerfiles, dockerfile)
	m.images[image] = true
	return nil
}

func (m *MockRuntime) StartContainer(_ context.Context, spec ContainerSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	m.started = append(m.started, spec)
	m.running[spec.Name] = true
	return spec.Name, nil
}

func (m *MockRuntime) CopyFile(_ context.Context, container, destPath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return m.copyErr
	}
	m.copied[container+":"+destPath] = data
	return nil
}

func (m *MockRuntime) Exec(ctx context.Context, spec ExecSpec) (ExecOutput, error) {
	m.mu.Lock()
	m.execs = append(m.execs, spec)
	m.mu.Unlock()

	hang := func() (ExecOutput, error) {
		execCtx, cancel := execContext(ctx, spec.Timeout)
		defer cancel()
		<-execCtx.Done()
		return ExecOutput{}, execCtx.Err()
	}

	switch spec.Args[0] {
	case "mkdir":
		return m.mkdirOut, nil
	case "timeout":
		if m.hangOnCompile {
			return hang()
		}
		return m.compileOut, m.compileErr
	default:
		if m.panicOnRun {
			panic("runtime exploded")
		}
		if m.hangOnRun {
			return hang()
		}
		return m.runOut, m.runErr
	}
}

func (m *MockRuntime) RemoveContainer(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, container)
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.running, container)
	return nil
}

func (m *MockRuntime) runningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *MockRuntime) buildCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.builds)
}

// MockUsageRuntime adds structured memory reporting to MockRuntime
type MockUsageRuntime struct {
	*MockRuntime
	peakBytes uint64
}

func (m *MockUsageRuntime) PeakMemoryBytes(_ context.Context, _ string) (uint64, error) {
	return m.peakBytes, nil
}

// MockClosingRuntime adds resource release to MockRuntime
type MockClosingRuntime struct {
	*MockRuntime
	closed   int
	closeErr error
}

func (m *MockClosingRuntime) Close() error {
	m.closed++
	return m.closeErr
}

// MockGate implements safety.Gate for testing
type MockGate struct {
	calls  int
	reject string
}

func (g *MockGate) Check(_, _ string) safety.Verdict {
	g.calls++
	if g.reject != "" {
		return safety.Verdict{Allowed: false, Reason: g.reject}
	}
	return safety.Verdict{Allowed: true}
}
