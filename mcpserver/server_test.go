package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/judgebox/config"
	"github.com/isdmx/judgebox/sandbox"
)

// MockExecutor implements Executor for testing
type MockExecutor struct {
	result   sandbox.ExecutionResult
	requests []sandbox.ExecutionRequest
}

func (m *MockExecutor) Execute(_ context.Context, req sandbox.ExecutionRequest) sandbox.ExecutionResult {
	m.requests = append(m.requests, req)
	return m.result
}

func (*MockExecutor) Languages() []sandbox.Language {
	return []sandbox.Language{sandbox.C, sandbox.CPP, sandbox.Python}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Transport: "stdio", HTTPPort: 8080},
		Sandbox: config.SandboxConfig{
			Backend:         "docker",
			Image:           "judgebox-sandbox:latest",
			DefaultTimeSec:  2,
			DefaultMemoryMB: 256,
		},
		Safety:  config.SafetyConfig{Mode: "pattern"},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Name = name
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	mockExecutor := &MockExecutor{}

	server, err := New(cfg, logger, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, mockExecutor, server.executor)
	assert.NotNil(t, server.GetMCPServer())
}

func TestHandleExecuteCode(t *testing.T) {
	exitCode := 0
	mockExecutor := &MockExecutor{result: sandbox.ExecutionResult{
		Outcome:        sandbox.OutcomeSuccess,
		Stdout:         "Hello, World!\n",
		ExitCode:       &exitCode,
		ElapsedSeconds: 0.01,
		SessionID:      "abc",
	}}
	server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
	require.NoError(t, err)

	t.Run("AppliesDefaults", func(t *testing.T) {
		result, err := server.handleExecuteCode(context.Background(), callRequest("execute_code", map[string]any{
			"language": "python",
			"code":     "print(f'Hello, {input()}!')",
			"stdin":    "World",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		var decoded sandbox.ExecutionResult
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
		assert.Equal(t, sandbox.OutcomeSuccess, decoded.Outcome)
		assert.Equal(t, "Hello, World!\n", decoded.Stdout)

		req := mockExecutor.requests[len(mockExecutor.requests)-1]
		assert.Equal(t, "World", req.Stdin)
		assert.Equal(t, 2.0, req.TimeLimitSeconds)
		assert.Equal(t, 256, req.MemoryLimitMB)
	})

	t.Run("ExplicitLimits", func(t *testing.T) {
		_, err := server.handleExecuteCode(context.Background(), callRequest("execute_code", map[string]any{
			"language":        "c",
			"code":            "int main(){}",
			"time_limit_sec":  1.5,
			"memory_limit_mb": 64,
		}))
		require.NoError(t, err)

		req := mockExecutor.requests[len(mockExecutor.requests)-1]
		assert.Equal(t, 1.5, req.TimeLimitSeconds)
		assert.Equal(t, 64, req.MemoryLimitMB)
	})

	t.Run("MissingCode", func(t *testing.T) {
		result, err := server.handleExecuteCode(context.Background(), callRequest("execute_code", map[string]any{
			"language": "c",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestHandleExecuteCodeInfrastructureError(t *testing.T) {
	mockExecutor := &MockExecutor{result: sandbox.ExecutionResult{
		Outcome:    sandbox.OutcomeInfrastructureError,
		ErrMessage: "container runtime unavailable",
	}}
	server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
	require.NoError(t, err)

	result, err := server.handleExecuteCode(context.Background(), callRequest("execute_code", map[string]any{
		"language": "python",
		"code":     "print(1)",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "container runtime unavailable")
}

func TestHandleListLanguages(t *testing.T) {
	server, err := New(testConfig(), zaptest.NewLogger(t), &MockExecutor{})
	require.NoError(t, err)

	result, err := server.handleListLanguages(context.Background(), callRequest("list_languages", nil))
	require.NoError(t, err)
	assert.Equal(t, "c\nc++\npython", resultText(t, result))
}
