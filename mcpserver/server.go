package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/judgebox/config"
	"github.com/isdmx/judgebox/sandbox"
)

// Executor runs execution requests
type Executor interface {
	Execute(ctx context.Context, req sandbox.ExecutionRequest) sandbox.ExecutionResult
	Languages() []sandbox.Language
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("server.metrics_port", s.config.Server.MetricsPort),
		zap.String("sandbox.backend", s.config.Sandbox.Backend),
		zap.String("sandbox.image", s.config.Sandbox.Image),
		zap.Float64("sandbox.default_time_sec", s.config.Sandbox.DefaultTimeSec),
		zap.Int("sandbox.default_memory_mb", s.config.Sandbox.DefaultMemoryMB),
		zap.Float64("sandbox.guard_band_sec", s.config.Sandbox.GuardBandSec),
		zap.Bool("sandbox.network_enabled", s.config.Sandbox.NetworkEnabled),
		zap.String("safety.mode", s.config.Safety.Mode),
	)

	s.mcpServer = server.NewMCPServer("judgebox", "Sandboxed code execution and judging server")

	s.registerExecuteCodeTool()
	s.registerListLanguagesTool()

	return s, nil
}

func (s *MCPServer) languageNames() []string {
	langs := s.executor.Languages()
	names := make([]string, len(langs))
	for i, lang := range langs {
		names[i] = string(lang)
	}
	return names
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Compile and run untrusted code with time and memory limits and return a structured verdict",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Source language",
					"enum":        s.languageNames(),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided source code",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input fed to the program (optional)",
				},
				"time_limit_sec": map[string]any{
					"type":        "number",
					"description": fmt.Sprintf("CPU time limit in seconds (default %v)", s.config.Sandbox.DefaultTimeSec),
				},
				"memory_limit_mb": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Memory limit in megabytes (default %d)", s.config.Sandbox.DefaultMemoryMB),
				},
			},
			Required: []string{"language", "code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// registerListLanguagesTool registers the list_languages tool
func (s *MCPServer) registerListLanguagesTool() {
	tool := mcp.Tool{
		Name:        "list_languages",
		Description: "List the languages accepted by execute_code",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListLanguages)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	language, err := request.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("language parameter is required: %v", err)), nil
	}

	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("code parameter is required: %v", err)), nil
	}

	req := sandbox.ExecutionRequest{
		Language:         language,
		SourceCode:       code,
		Stdin:            request.GetString("stdin", ""),
		TimeLimitSeconds: request.GetFloat("time_limit_sec", s.config.Sandbox.DefaultTimeSec),
		MemoryLimitMB:    request.GetInt("memory_limit_mb", s.config.Sandbox.DefaultMemoryMB),
	}

	s.logger.Info("executing code in sandbox",
		zap.String("language", language),
		zap.Int("code_len", len(code)),
		zap.Float64("time_limit_sec", req.TimeLimitSeconds),
		zap.Int("memory_limit_mb", req.MemoryLimitMB))

	result := s.executor.Execute(ctx, req)

	s.logger.Info("code execution completed",
		zap.String("language", language),
		zap.String("outcome", string(result.Outcome)),
		zap.String("session_id", result.SessionID),
		zap.Int("stdout_len", len(result.Stdout)),
		zap.Int("stderr_len", len(result.Stderr)))

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	toolResult := mcp.NewToolResultText(string(resultJSON))
	switch result.Outcome {
	case sandbox.OutcomeInternalError, sandbox.OutcomeInfrastructureError:
		toolResult.IsError = true
	}
	return toolResult, nil
}

// handleListLanguages handles the list_languages tool
func (s *MCPServer) handleListLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(strings.Join(s.languageNames(), "\n")), nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
