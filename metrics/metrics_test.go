package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/judgebox/sandbox"
)

var _ sandbox.Recorder = (*Metrics)(nil)

func TestMetricsRecording(t *testing.T) {
	m := New()

	m.ObserveExecution("python", "Success", 300*time.Millisecond)
	m.ObserveExecution("python", "Success", time.Second)
	m.ObserveExecution("c", "CompileError", 100*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.executions.WithLabelValues("python", "Success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executions.WithLabelValues("c", "CompileError")), 1e-9)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeSessions), 1e-9)

	m.ImageBuilt()
	assert.InDelta(t, 1, testutil.ToFloat64(m.builds), 1e-9)
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.ObserveExecution("c++", "MemoryLimitExceeded", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `judgebox_executions_total{language="c++",outcome="MemoryLimitExceeded"} 1`)
	assert.Contains(t, body, "judgebox_execution_duration_seconds_bucket")
	assert.Contains(t, body, "judgebox_active_sessions 0")
}

func TestServerLifecycle(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		s := NewServer(zaptest.NewLogger(t), New(), 0)
		require.NoError(t, s.Start(context.Background()))
		require.NoError(t, s.Stop(context.Background()))
		assert.Empty(t, s.Addr())
	})

	t.Run("ServesMetrics", func(t *testing.T) {
		s := NewServer(zaptest.NewLogger(t), New(), 0)
		s.server = &http.Server{Addr: "127.0.0.1:0", Handler: New().Handler(), ReadHeaderTimeout: time.Second}

		require.NoError(t, s.Start(context.Background()))
		defer func() {
			require.NoError(t, s.Stop(context.Background()))
		}()

		resp, err := http.Get("http://" + s.Addr() + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "judgebox_provision_builds_total"))
	})
}
