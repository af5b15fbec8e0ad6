// Package logger provides structured logging capabilities.
//
// The logger package builds the zap logger shared by the executor, the
// runtime backends and the MCP front end. Every entry carries a "service"
// field so logs from several judge hosts can be merged.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("executor ready", zap.String("backend", "docker"))
package logger
