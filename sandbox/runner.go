package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrHostTimeout is returned when the guard band expires before the run
// stage reports back
var ErrHostTimeout = errors.New("host timeout: guard band expired")

// Exit code reported by timeout(1) when the limit elapsed
const exitCodeTimeout = 124

const (
	timeBinary = "/usr/bin/time"
	killGrace  = time.Second
)

// stdinScript redirects the session input into the wrapped command. Every
// variable part reaches it as a positional argument.
const stdinScript = `exec "$@" < ` + InputFileName

// CompileOutcome is the result of the compile stage
type CompileOutcome struct {
	OK         bool
	TimedOut   bool
	Diagnostic string
	Truncated  bool
}

// RawRun is the unclassified result of the run stage
type RawRun struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
}

// Runner issues resource-limited compile and run invocations in a session
type Runner struct {
	runtime       Runtime
	compileBudget time.Duration
	guardBand     time.Duration
}

// NewRunner creates a Runner
func NewRunner(runtime Runtime, compileBudget, guardBand time.Duration) *Runner {
	return &Runner{
		runtime:       runtime,
		compileBudget: compileBudget,
		guardBand:     guardBand,
	}
}

// CompileArgs returns the argument vector of the compile stage
func (r *Runner) CompileArgs(profile Profile) []string {
	args := []string{"timeout", "-k", formatSeconds(killGrace), formatSeconds(r.compileBudget)}
	return append(args, profile.CompileArgs...)
}

// RunArgs returns the argument vector of the run stage. timeout(1) is the
// direct parent of the program so its signals reach the program's process
// group, and /usr/bin/time outlives it to report usage for the whole tree.
func (*Runner) RunArgs(profile Profile, timeLimit time.Duration) []string {
	args := []string{
		"sh", "-c", stdinScript, "sh",
		timeBinary, "-v",
		"timeout", "-k", formatSeconds(killGrace), formatSeconds(timeLimit),
	}
	return append(args, profile.RunArgs...)
}

// Compile runs the profile's compiler. A non-nil error means the stage could
// not be carried out at all.
func (r *Runner) Compile(ctx context.Context, sess *Session, profile Profile) (CompileOutcome, error) {
	sess.setState(StateCompiling)

	out, err := r.runtime.Exec(ctx, ExecSpec{
		Container: sess.Container,
		Workdir:   sess.Workdir,
		Args:      r.CompileArgs(profile),
		Timeout:   r.compileBudget + killGrace,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return CompileOutcome{TimedOut: true, Diagnostic: "compilation exceeded its time budget"}, nil
		}
		return CompileOutcome{}, fmt.Errorf("compile stage failed: %w", err)
	}

	outcome := CompileOutcome{Diagnostic: out.Stdout + out.Stderr, Truncated: out.Truncated}
	switch out.ExitCode {
	case 0:
		outcome.OK = true
	case exitCodeTimeout:
		outcome.TimedOut = true
	}
	return outcome, nil
}

// Run executes the program with the session input as stdin. The host waits
// for at most timeLimit plus the guard band.
func (r *Runner) Run(ctx context.Context, sess *Session, profile Profile, timeLimit time.Duration) (RawRun, error) {
	sess.setState(StateRunning)

	out, err := r.runtime.Exec(ctx, ExecSpec{
		Container: sess.Container,
		Workdir:   sess.Workdir,
		Args:      r.RunArgs(profile, timeLimit),
		Timeout:   timeLimit + r.guardBand,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return RawRun{}, ErrHostTimeout
		}
		return RawRun{}, fmt.Errorf("run stage failed: %w", err)
	}

	return RawRun{ExitCode: out.ExitCode, Stdout: out.Stdout, Stderr: out.Stderr, Truncated: out.Truncated}, nil
}

// formatSeconds renders d in the duration syntax accepted by timeout(1)
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
