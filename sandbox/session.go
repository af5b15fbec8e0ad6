package sandbox

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionState is the lifecycle position of a session
type SessionState int

// Session states
const (
	StateCreated SessionState = iota
	StatePopulated
	StateCompiling
	StateRunning
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePopulated:
		return "populated"
	case StateCompiling:
		return "compiling"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	containerPrefix = "judgebox-"
	teardownTimeout = 10 * time.Second
)

// Session owns one isolated environment instance for one request
type Session struct {
	ID        string
	Container string
	Workdir   string

	mu    sync.Mutex
	state SessionState
	once  sync.Once
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTerminated {
		s.state = state
	}
}

// Path returns the absolute path of name inside the working directory
func (s *Session) Path(name string) string {
	return path.Join(s.Workdir, name)
}

// SessionOptions holds the container settings shared by every session
type SessionOptions struct {
	Image          string
	Workdir        string
	Keepalive      time.Duration
	PidsLimit      int64
	User           string
	NetworkEnabled bool
}

// SessionManager creates, populates and tears down sessions
type SessionManager struct {
	logger  *zap.Logger
	runtime Runtime
	opts    SessionOptions
	newID   func() string
	onOpen  func()
	onClose func()
}

// NewSessionManager creates a SessionManager
func NewSessionManager(logger *zap.Logger, runtime Runtime, opts SessionOptions) *SessionManager {
	return &SessionManager{
		logger:  logger,
		runtime: runtime,
		opts:    opts,
		newID:   uuid.NewString,
	}
}

// Create allocates a session id and starts its container with memory and
// swap both capped at memoryMB. When the container started but a later step
// failed, the returned session is non-nil and must still be torn down.
func (m *SessionManager) Create(ctx context.Context, memoryMB int) (*Session, error) {
	id := m.newID()
	name := containerPrefix + id

	spec := ContainerSpec{
		Name:           name,
		Image:          m.opts.Image,
		MemoryMB:       memoryMB,
		SwapMB:         memoryMB,
		PidsLimit:      m.opts.PidsLimit,
		NetworkEnabled: m.opts.NetworkEnabled,
		User:           m.opts.User,
		Command:        []string{"sleep", strconv.Itoa(int(m.opts.Keepalive.Seconds()))},
	}

	handle, err := m.runtime.StartContainer(ctx, spec)
	if err != nil {
		m.removeQuietly(name)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	sess := &Session{ID: id, Container: handle, Workdir: m.opts.Workdir, state: StateCreated}
	if m.onOpen != nil {
		m.onOpen()
	}

	m.logger.Debug("session created",
		zap.String("session_id", sess.ID),
		zap.String("container", sess.Container),
		zap.Int("memory_mb", memoryMB))

	out, err := m.runtime.Exec(ctx, ExecSpec{
		Container: sess.Container,
		Args:      []string{"mkdir", "-p", sess.Workdir},
	})
	if err != nil {
		return sess, fmt.Errorf("failed to create workdir: %w", err)
	}
	if out.ExitCode != 0 {
		return sess, fmt.Errorf("failed to create workdir: %s", strings.TrimSpace(out.Stderr))
	}

	return sess, nil
}

// Inject copies the source file and the normalized stdin into the working directory
func (m *SessionManager) Inject(ctx context.Context, sess *Session, sourceFile, source, stdin string) error {
	if err := m.runtime.CopyFile(ctx, sess.Container, sess.Path(sourceFile), []byte(source)); err != nil {
		return fmt.Errorf("failed to inject source: %w", err)
	}

	if err := m.runtime.CopyFile(ctx, sess.Container, sess.Path(InputFileName), []byte(NormalizeStdin(stdin))); err != nil {
		return fmt.Errorf("failed to inject stdin: %w", err)
	}

	sess.setState(StatePopulated)
	return nil
}

// Teardown force-destroys the session's container. It runs at most once per
// session, uses its own context and never fails.
func (m *SessionManager) Teardown(sess *Session) {
	if sess == nil {
		return
	}

	sess.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		if err := m.runtime.RemoveContainer(ctx, sess.Container); err != nil {
			m.logger.Error("failed to remove container",
				zap.String("session_id", sess.ID),
				zap.String("container", sess.Container),
				zap.Error(err))
		}

		sess.mu.Lock()
		sess.state = StateTerminated
		sess.mu.Unlock()

		if m.onClose != nil {
			m.onClose()
		}

		m.logger.Debug("session terminated", zap.String("session_id", sess.ID))
	})
}

func (m *SessionManager) removeQuietly(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := m.runtime.RemoveContainer(ctx, name); err != nil {
		m.logger.Warn("failed to remove container after start failure", zap.String("container", name), zap.Error(err))
	}
}

// NormalizeStdin converts CRLF line endings to LF and ensures non-empty input
// ends with a newline
func NormalizeStdin(stdin string) string {
	stdin = strings.ReplaceAll(stdin, "\r\n", "\n")
	if stdin != "" && !strings.HasSuffix(stdin, "\n") {
		stdin += "\n"
	}
	return stdin
}
