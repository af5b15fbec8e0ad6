// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and JUDGEBOX_* environment variables. It covers
// the front-end server, the execution sandbox (runtime backend, environment
// recipe, compile budget and guard band), the safety gate and the per-language
// command templates.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config
