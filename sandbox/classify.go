package sandbox

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Exit code of a process killed by SIGKILL, which is how the kernel enforces
// the memory ceiling
const exitCodeKilled = 137

var (
	userTimePattern   = regexp.MustCompile(`User time \(seconds\):\s*([0-9]+(?:\.[0-9]+)?)`)
	systemTimePattern = regexp.MustCompile(`System time \(seconds\):\s*([0-9]+(?:\.[0-9]+)?)`)
	maxRSSPattern     = regexp.MustCompile(`Maximum resident set size \(kbytes\):\s*([0-9]+)`)
	wallClockPattern  = regexp.MustCompile(`Elapsed \(wall clock\) time \([^)]*\):\s*([0-9:.]+)`)
)

const (
	reportHeader   = "Command being timed:"
	exitedPrefix   = "Command exited with non-zero status"
	signaledPrefix = "Command terminated by signal"
)

// Classification is the structured view of a finished run
type Classification struct {
	Kind           OutcomeKind
	ElapsedSeconds float64
	PeakMemoryMB   float64
	Stderr         string
}

// Classify turns the exit code and raw stderr of a run into an outcome.
// Resource usage is extracted before the instrumentation report is stripped
// from stderr.
func Classify(exitCode int, rawStderr string, timeLimit time.Duration) Classification {
	c := Classification{
		ElapsedSeconds: parseFloat(userTimePattern, rawStderr) + parseFloat(systemTimePattern, rawStderr),
		PeakMemoryMB:   parseFloat(maxRSSPattern, rawStderr) / BytesPerKB,
		Stderr:         StripInstrumentation(rawStderr),
	}

	switch exitCode {
	case 0:
		c.Kind = OutcomeSuccess
	case exitCodeTimeout:
		c.Kind = OutcomeTimeLimitExceeded
		// The killed process never reports, so the usage is at least the limit
		if limit := timeLimit.Seconds(); c.ElapsedSeconds < limit {
			c.ElapsedSeconds = limit
		}
	case exitCodeKilled:
		c.Kind = OutcomeMemoryLimitExceeded
		// timeout(1) escalates to SIGKILL when the program ignores SIGTERM;
		// a kill after the full window is the time limit
		if limit := timeLimit.Seconds(); limit > 0 && parseWallClock(rawStderr) >= limit {
			c.Kind = OutcomeTimeLimitExceeded
			c.ElapsedSeconds = max(c.ElapsedSeconds, limit)
		}
	default:
		c.Kind = OutcomeRuntimeError
	}

	return c
}

// StripInstrumentation removes the /usr/bin/time report, and the status line
// it prints before it, from the end of stderr. The program's last line may
// lack a newline, so cuts are made at the prefixes rather than at lines.
func StripInstrumentation(stderr string) string {
	idx := strings.LastIndex(stderr, reportHeader)
	if idx < 0 {
		return stderr
	}

	head := strings.TrimRight(stderr[:idx], "\t ")

	status := max(strings.LastIndex(head, exitedPrefix), strings.LastIndex(head, signaledPrefix))
	if status >= 0 && !strings.Contains(strings.TrimSuffix(head[status:], "\n"), "\n") {
		head = head[:status]
	}

	return head
}

func parseFloat(pattern *regexp.Regexp, text string) float64 {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0
	}
	return v
}

// parseWallClock reads the "h:mm:ss" or "m:ss.ss" wall clock of the last
// report, in seconds
func parseWallClock(text string) float64 {
	matches := wallClockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}

	var seconds float64
	for _, part := range strings.Split(matches[len(matches)-1][1], ":") {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + v
	}
	return seconds
}
