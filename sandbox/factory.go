package sandbox

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/judgebox/config"
	"github.com/isdmx/judgebox/safety"
)

// NewRuntime creates the isolation runtime named by backend. Each captured
// output stream is capped at maxOutputBytes.
func NewRuntime(logger *zap.Logger, backend string, maxOutputBytes int64) (Runtime, error) {
	switch backend {
	case "docker", "podman":
		return NewCLIRuntime(logger, backend, WithCommandRunner(RealCommandRunner{MaxOutputBytes: maxOutputBytes})), nil
	case "docker-api":
		return NewAPIRuntime(logger, maxOutputBytes)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewFromConfig creates an Executor based on the configuration
func NewFromConfig(logger *zap.Logger, cfg *config.Config, recorder Recorder) (*Executor, error) {
	runtime, err := NewRuntime(logger, cfg.Sandbox.Backend, cfg.Sandbox.MaxOutputBytes)
	if err != nil {
		return nil, err
	}

	return newFromConfig(logger, cfg, runtime, recorder)
}

func newFromConfig(logger *zap.Logger, cfg *config.Config, runtime Runtime, recorder Recorder) (*Executor, error) {
	recipe := DefaultRecipe(cfg.Sandbox.Image, cfg.Sandbox.Workdir)
	if cfg.Sandbox.RecipeFile != "" {
		loaded, err := LoadRecipe(cfg.Sandbox.RecipeFile, cfg.Sandbox.Image, cfg.Sandbox.Workdir)
		if err != nil {
			return nil, err
		}
		recipe = loaded
	}

	templates := make(map[string]LanguageTemplate, len(cfg.Languages))
	for name, lang := range cfg.Languages {
		templates[name] = LanguageTemplate{CompileCmd: lang.CompileCmd, RunCmd: lang.RunCmd}
	}
	profiles, err := NewProfiles(templates)
	if err != nil {
		return nil, fmt.Errorf("invalid language configuration: %w", err)
	}

	gate, err := safety.New(cfg.Safety.Mode, cfg.Safety.ExtraPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid safety configuration: %w", err)
	}

	executorConfig := ExecutorConfig{
		Recipe: recipe,
		Session: SessionOptions{
			Image:          recipe.Image,
			Workdir:        recipe.Workdir,
			Keepalive:      time.Duration(cfg.Sandbox.KeepaliveSec) * time.Second,
			PidsLimit:      cfg.Sandbox.PidsLimit,
			User:           cfg.Sandbox.User,
			NetworkEnabled: cfg.Sandbox.NetworkEnabled,
		},
		CompileBudget: cfg.CompileBudget(),
		GuardBand:     cfg.GuardBand(),
		Limits: Limits{
			MaxTimeSeconds: cfg.Sandbox.MaxTimeSec,
			MaxMemoryMB:    cfg.Sandbox.MaxMemoryMB,
		},
	}

	opts := []ExecutorOption{WithProfiles(profiles), WithGate(gate)}
	if recorder != nil {
		opts = append(opts, WithRecorder(recorder))
	}

	logger.Info("sandbox executor configured",
		zap.String("backend", cfg.Sandbox.Backend),
		zap.String("image", recipe.Image),
		zap.String("safety_mode", cfg.Safety.Mode))

	return NewExecutor(logger, runtime, executorConfig, opts...), nil
}
