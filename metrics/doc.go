// Package metrics exposes execution telemetry in the Prometheus format.
//
// Metrics implements sandbox.Recorder on its own registry, so several
// instances can coexist in tests. Server serves the registry over HTTP.
package metrics
