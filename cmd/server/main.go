package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/judgebox/config"
	"github.com/isdmx/judgebox/logger"
	"github.com/isdmx/judgebox/mcpserver"
	"github.com/isdmx/judgebox/metrics"
	"github.com/isdmx/judgebox/sandbox"
)

const provisionTimeout = 15 * time.Minute

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Prometheus metrics, also used as the executor's recorder
			metrics.New,
			func(m *metrics.Metrics) sandbox.Recorder { return m },
			func(log *zap.Logger, m *metrics.Metrics, cfg *config.Config) *metrics.Server {
				return metrics.NewServer(log, m, cfg.Server.MetricsPort)
			},

			// Sandbox executor based on config
			sandbox.NewFromConfig,
			func(e *sandbox.Executor) mcpserver.Executor { return e },

			// MCP Server
			mcpserver.New,
		),

		fx.Invoke(registerExecutor, registerMetricsServer, registerProvisioning, registerTransport),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// registerExecutor releases the runtime client once everything using it stopped
func registerExecutor(lc fx.Lifecycle, executor *sandbox.Executor) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return executor.Close()
		},
	})
}

func registerMetricsServer(lc fx.Lifecycle, server *metrics.Server) {
	lc.Append(fx.Hook{
		OnStart: server.Start,
		OnStop:  server.Stop,
	})
}

// registerProvisioning warms the execution environment in the background so a
// slow image build does not hold up startup
func registerProvisioning(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, executor *sandbox.Executor) {
	if !cfg.Sandbox.ProvisionOnStart {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				provisionCtx, provisionCancel := context.WithTimeout(ctx, provisionTimeout)
				defer provisionCancel()

				if err := executor.Provision(provisionCtx); err != nil {
					log.Error("failed to provision execution environment", zap.Error(err))
					return
				}
				log.Info("execution environment ready", zap.String("image", cfg.Sandbox.Image))
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// registerTransport starts the configured MCP transport
func registerTransport(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				var err error
				switch cfg.Server.Transport {
				case "stdio":
					err = server.ServeStdio()
				case "http":
					err = server.ServeHTTP()
				default:
					log.Error("unsupported transport", zap.String("transport", cfg.Server.Transport))
				}
				if err != nil {
					log.Error("MCP transport stopped", zap.Error(err))
				}
				if shutdownErr := shutdowner.Shutdown(); shutdownErr != nil {
					log.Error("failed to shut down", zap.Error(shutdownErr))
				}
			}()
			return nil
		},
	})
}
