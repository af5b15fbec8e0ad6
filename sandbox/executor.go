package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/judgebox/safety"
)

// Smallest memory ceiling accepted by container runtimes
const minMemoryMB = 6

// Recorder receives execution telemetry
type Recorder interface {
	ObserveExecution(language, outcome string, duration time.Duration)
	SessionOpened()
	SessionClosed()
	ImageBuilt()
}

type noopRecorder struct{}

func (noopRecorder) ObserveExecution(string, string, time.Duration) {}
func (noopRecorder) SessionOpened()                                 {}
func (noopRecorder) SessionClosed()                                 {}
func (noopRecorder) ImageBuilt()                                    {}

// Limits bounds the values a request may ask for. Zero means unbounded.
type Limits struct {
	MaxTimeSeconds float64
	MaxMemoryMB    int
}

// ExecutorConfig holds the settings an Executor is constructed with
type ExecutorConfig struct {
	Recipe        Recipe
	Session       SessionOptions
	CompileBudget time.Duration
	GuardBand     time.Duration
	Limits        Limits
}

// Executor orchestrates one request from safety check to teardown
type Executor struct {
	logger      *zap.Logger
	runtime     Runtime
	profiles    *Profiles
	gate        safety.Gate
	recorder    Recorder
	recipe      Recipe
	limits      Limits
	provisioner *Provisioner
	sessions    *SessionManager
	runner      *Runner
}

// ExecutorOption defines a functional option for Executor
type ExecutorOption func(*Executor)

// WithGate sets the safety gate consulted before execution
func WithGate(gate safety.Gate) ExecutorOption {
	return func(e *Executor) {
		e.gate = gate
	}
}

// WithProfiles sets the language profile table
func WithProfiles(profiles *Profiles) ExecutorOption {
	return func(e *Executor) {
		e.profiles = profiles
	}
}

// WithRecorder sets the telemetry recorder
func WithRecorder(recorder Recorder) ExecutorOption {
	return func(e *Executor) {
		e.recorder = recorder
	}
}

// WithIDGenerator sets the session id generator
func WithIDGenerator(fn func() string) ExecutorOption {
	return func(e *Executor) {
		e.sessions.newID = fn
	}
}

// NewExecutor creates an Executor on top of runtime
func NewExecutor(logger *zap.Logger, runtime Runtime, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:   logger,
		runtime:  runtime,
		profiles: DefaultProfiles(),
		gate:     safety.Permissive{},
		recorder: noopRecorder{},
		recipe:   cfg.Recipe,
		limits:   cfg.Limits,
		sessions: NewSessionManager(logger, runtime, cfg.Session),
		runner:   NewRunner(runtime, cfg.CompileBudget, cfg.GuardBand),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.sessions.onOpen = e.recorder.SessionOpened
	e.sessions.onClose = e.recorder.SessionClosed
	e.provisioner = NewProvisioner(logger, runtime, WithBuildHook(e.recorder.ImageBuilt))

	return e
}

// Languages returns the supported languages
func (e *Executor) Languages() []Language {
	return e.profiles.Languages()
}

// Provision builds the base environment ahead of the first request
func (e *Executor) Provision(ctx context.Context) error {
	return e.provisioner.EnsureReady(ctx, e.recipe)
}

// Provisioner exposes the environment provisioner
func (e *Executor) Provisioner() *Provisioner {
	return e.provisioner
}

// Close releases the runtime's resources, if it holds any
func (e *Executor) Close() error {
	if closer, ok := e.runtime.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Execute runs one request and always returns a complete result; failures of
// any stage are reported through the outcome kind.
func (e *Executor) Execute(ctx context.Context, req ExecutionRequest) (result ExecutionResult) {
	start := time.Now()
	var sessionID string

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during execution",
				zap.Any("panic", r),
				zap.String("session_id", sessionID),
				zap.Stack("stack"))
			result = ExecutionResult{
				Outcome:    OutcomeInternalError,
				ErrMessage: fmt.Sprintf("internal error: %v", r),
				SessionID:  sessionID,
			}
		}

		duration := time.Since(start)
		e.recorder.ObserveExecution(languageLabel(req.Language), string(result.Outcome), duration)
		e.logger.Info("execution finished",
			zap.String("language", req.Language),
			zap.String("outcome", string(result.Outcome)),
			zap.String("session_id", result.SessionID),
			zap.Duration("duration", duration))
	}()

	return e.execute(ctx, req, &sessionID)
}

// execute runs the pipeline, storing the session id in sessionID as soon as
// a session exists
//
//nolint:gocyclo // Linear pipeline of stages, each with its own outcome
func (e *Executor) execute(ctx context.Context, req ExecutionRequest, sessionID *string) ExecutionResult {
	lang, err := ParseLanguage(req.Language)
	if err != nil {
		return failure(OutcomeUnsupportedLanguage, err.Error())
	}
	profile, ok := e.profiles.Lookup(lang)
	if !ok {
		return failure(OutcomeUnsupportedLanguage, fmt.Sprintf("%s: %q", ErrUnsupportedLanguage, req.Language))
	}

	if err := e.validateLimits(req); err != nil {
		return failure(OutcomeInvalidRequest, err.Error())
	}

	if verdict := e.gate.Check(req.SourceCode, string(lang)); !verdict.Allowed {
		e.logger.Info("source rejected by safety gate",
			zap.String("language", string(lang)),
			zap.String("reason", verdict.Reason))
		return failure(OutcomeSafetyRejected, verdict.Reason)
	}

	if err := e.provisioner.EnsureReady(ctx, e.recipe); err != nil {
		if ctx.Err() != nil {
			return e.internalError(ctx, nil, "environment not ready", err)
		}
		e.logger.Error("environment not ready", zap.String("image", e.recipe.Image), zap.Error(err))
		return failure(OutcomeInfrastructureError, err.Error())
	}

	sess, err := e.sessions.Create(ctx, req.MemoryLimitMB)
	if sess != nil {
		*sessionID = sess.ID
		defer e.sessions.Teardown(sess)
	}
	if err != nil {
		return e.internalError(ctx, sess, "session creation failed", err)
	}

	if err := e.sessions.Inject(ctx, sess, profile.SourceFile, req.SourceCode, req.Stdin); err != nil {
		return e.internalError(ctx, sess, "artifact injection failed", err)
	}

	if profile.Compiled() {
		compiled, err := e.runner.Compile(ctx, sess, profile)
		if err != nil {
			return e.internalError(ctx, sess, "compile stage failed", err)
		}
		if compiled.TimedOut {
			return ExecutionResult{
				Outcome:           OutcomeCompileTimeout,
				CompileDiagnostic: compiled.Diagnostic,
				OutputTruncated:   compiled.Truncated,
				ErrMessage:        "compilation exceeded its time budget",
				SessionID:         sess.ID,
			}
		}
		if !compiled.OK {
			return ExecutionResult{
				Outcome:           OutcomeCompileError,
				CompileDiagnostic: compiled.Diagnostic,
				OutputTruncated:   compiled.Truncated,
				SessionID:         sess.ID,
			}
		}
	}

	timeLimit := time.Duration(req.TimeLimitSeconds * float64(time.Second))
	raw, err := e.runner.Run(ctx, sess, profile, timeLimit)
	if errors.Is(err, ErrHostTimeout) {
		e.logger.Warn("guard band expired", zap.String("session_id", sess.ID), zap.Duration("time_limit", timeLimit))
		return ExecutionResult{
			Outcome:    OutcomeHostTimeout,
			ErrMessage: err.Error(),
			SessionID:  sess.ID,
		}
	}
	if err != nil {
		return e.internalError(ctx, sess, "run stage failed", err)
	}

	c := Classify(raw.ExitCode, raw.Stderr, timeLimit)
	// The container-wide figure also counts injection and the compiler, so it
	// only stands in when the program's own report is missing
	if c.PeakMemoryMB == 0 {
		c.PeakMemoryMB = e.structuredPeakMemory(ctx, sess)
	}

	return ExecutionResult{
		Outcome:         c.Kind,
		Stdout:          raw.Stdout,
		Stderr:          c.Stderr,
		ExitCode:        intPtr(raw.ExitCode),
		ElapsedSeconds:  c.ElapsedSeconds,
		PeakMemoryMB:    c.PeakMemoryMB,
		OutputTruncated: raw.Truncated,
		SessionID:       sess.ID,
	}
}

// languageLabel bounds the label set reported to the recorder
func languageLabel(name string) string {
	lang, err := ParseLanguage(name)
	if err != nil {
		return "unknown"
	}
	return string(lang)
}

func (e *Executor) validateLimits(req ExecutionRequest) error {
	t := req.TimeLimitSeconds
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		return fmt.Errorf("time limit must be a positive number of seconds, got: %v", t)
	}
	if e.limits.MaxTimeSeconds > 0 && t > e.limits.MaxTimeSeconds {
		return fmt.Errorf("time limit %vs exceeds maximum of %vs", t, e.limits.MaxTimeSeconds)
	}
	if req.MemoryLimitMB < minMemoryMB {
		return fmt.Errorf("memory limit must be at least %d MB, got: %d", minMemoryMB, req.MemoryLimitMB)
	}
	if e.limits.MaxMemoryMB > 0 && req.MemoryLimitMB > e.limits.MaxMemoryMB {
		return fmt.Errorf("memory limit %d MB exceeds maximum of %d MB", req.MemoryLimitMB, e.limits.MaxMemoryMB)
	}
	return nil
}

// structuredPeakMemory asks the runtime for peak memory in MB, returning 0
// when unsupported or unavailable
func (e *Executor) structuredPeakMemory(ctx context.Context, sess *Session) float64 {
	reporter, ok := e.runtime.(UsageReporter)
	if !ok {
		return 0
	}

	peak, err := reporter.PeakMemoryBytes(ctx, sess.Container)
	if err != nil {
		e.logger.Debug("structured memory usage unavailable", zap.String("session_id", sess.ID), zap.Error(err))
		return 0
	}
	return float64(peak) / BytesPerMB
}

func (e *Executor) internalError(ctx context.Context, sess *Session, stage string, err error) ExecutionResult {
	result := failure(OutcomeInternalError, fmt.Sprintf("%s: %v", stage, err))
	if ctx.Err() != nil {
		result.ErrMessage = "request canceled"
	}
	if sess != nil {
		result.SessionID = sess.ID
	}

	e.logger.Error(stage, zap.String("session_id", result.SessionID), zap.Error(err))
	return result
}
