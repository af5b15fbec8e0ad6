package sandbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const timeReport = `	Command being timed: "./main"
	User time (seconds): 0.42
	System time (seconds): 0.08
	Percent of CPU this job got: 99%
	Elapsed (wall clock) time (h:mm:ss or m:ss): 0:00.50
	Maximum resident set size (kbytes): 20480
	Exit status: 0
`

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		stderr   string
		limit    time.Duration
		kind     OutcomeKind
		elapsed  float64
		peakMB   float64
		cleanErr string
	}{
		{
			name:     "Success",
			exitCode: 0,
			stderr:   timeReport,
			limit:    2 * time.Second,
			kind:     OutcomeSuccess,
			elapsed:  0.5,
			peakMB:   20,
			cleanErr: "",
		},
		{
			name:     "RuntimeErrorKeepsProgramStderr",
			exitCode: 7,
			stderr:   "boom\nCommand exited with non-zero status 7\n" + timeReport,
			limit:    2 * time.Second,
			kind:     OutcomeRuntimeError,
			elapsed:  0.5,
			peakMB:   20,
			cleanErr: "boom\n",
		},
		{
			name:     "TimeLimitWithoutReport",
			exitCode: 124,
			stderr:   "",
			limit:    2 * time.Second,
			kind:     OutcomeTimeLimitExceeded,
			elapsed:  2,
		},
		{
			name:     "MemoryLimitWithoutReport",
			exitCode: 137,
			stderr:   "",
			limit:    time.Second,
			kind:     OutcomeMemoryLimitExceeded,
		},
		{
			name:     "MemoryLimitWithSignalReport",
			exitCode: 137,
			stderr:   "Command terminated by signal 9\n" + timeReport,
			limit:    time.Second,
			kind:     OutcomeMemoryLimitExceeded,
			elapsed:  0.5,
			peakMB:   20,
			cleanErr: "",
		},
		{
			name:     "ForcedKillAfterWindowIsTimeLimit",
			exitCode: 137,
			stderr:   "Command exited with non-zero status 137\n" + strings.Replace(timeReport, "0:00.50", "0:03.01", 1),
			limit:    2 * time.Second,
			kind:     OutcomeTimeLimitExceeded,
			elapsed:  2,
			peakMB:   20,
			cleanErr: "",
		},
		{
			name:     "UnparseableReportDefaultsToZero",
			exitCode: 1,
			stderr:   "segfault\n",
			limit:    time.Second,
			kind:     OutcomeRuntimeError,
			cleanErr: "segfault\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.exitCode, tt.stderr, tt.limit)
			assert.Equal(t, tt.kind, c.Kind)
			assert.InDelta(t, tt.elapsed, c.ElapsedSeconds, 1e-9)
			assert.InDelta(t, tt.peakMB, c.PeakMemoryMB, 1e-9)
			assert.Equal(t, tt.cleanErr, c.Stderr)
		})
	}
}

func TestStripInstrumentation(t *testing.T) {
	t.Run("NoReport", func(t *testing.T) {
		assert.Equal(t, "plain error\n", StripInstrumentation("plain error\n"))
	})

	t.Run("UsesLastReport", func(t *testing.T) {
		// A program printing the header text itself must not lose later output
		stderr := "Command being timed: fake\nreal error\n" + timeReport
		assert.Equal(t, "Command being timed: fake\nreal error\n", StripInstrumentation(stderr))
	})

	t.Run("OnlyReport", func(t *testing.T) {
		assert.Equal(t, "", StripInstrumentation(timeReport))
	})

	t.Run("StatusAfterUnterminatedLine", func(t *testing.T) {
		stderr := "fatal: bad inputCommand exited with non-zero status 3\n" + timeReport
		assert.Equal(t, "fatal: bad input", StripInstrumentation(stderr))
	})

	t.Run("SignalAfterUnterminatedLine", func(t *testing.T) {
		stderr := "partialCommand terminated by signal 9\n" + timeReport
		assert.Equal(t, "partial", StripInstrumentation(stderr))
	})

	t.Run("ReportAfterUnterminatedLine", func(t *testing.T) {
		assert.Equal(t, "no newline", StripInstrumentation("no newline"+timeReport))
	})

	t.Run("EarlierStatusTextIsProgramOutput", func(t *testing.T) {
		stderr := "Command exited with non-zero status 1\nstill running\n" + timeReport
		assert.Equal(t, "Command exited with non-zero status 1\nstill running\n", StripInstrumentation(stderr))
	})

	t.Run("WallClock", func(t *testing.T) {
		assert.InDelta(t, 0.5, parseWallClock(timeReport), 1e-9)
		assert.InDelta(t, 3723.5, parseWallClock("Elapsed (wall clock) time (h:mm:ss or m:ss): 1:02:03.5"), 1e-9)
		assert.InDelta(t, 0.0, parseWallClock("no report"), 1e-9)
	})
}
