// Package main is the entry point for the Judgebox MCP server.
//
// The Judgebox server compiles and runs untrusted programs (Python, C, C++)
// in ephemeral, resource-limited containers and reports a structured verdict
// such as success, compile error, time or memory limit exceeded. It speaks the
// Model Context Protocol over stdio or HTTP and exposes Prometheus metrics on
// a separate port.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
