package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Upper bound of a shared build, which outlives the request that started it
const provisionTimeout = 15 * time.Minute

// Provisioner ensures the base environment image exists, building it once
type Provisioner struct {
	logger  *zap.Logger
	runtime Runtime

	group  singleflight.Group
	mu     sync.Mutex
	ready  map[string]bool
	builds atomic.Int64

	onBuild func()
}

// ProvisionerOption defines a functional option for Provisioner
type ProvisionerOption func(*Provisioner)

// WithBuildHook registers a callback invoked after every successful build
func WithBuildHook(fn func()) ProvisionerOption {
	return func(p *Provisioner) {
		p.onBuild = fn
	}
}

// NewProvisioner creates a Provisioner on top of runtime
func NewProvisioner(logger *zap.Logger, runtime Runtime, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		logger:  logger,
		runtime: runtime,
		ready:   make(map[string]bool),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// EnsureReady makes sure the recipe's image exists. Once an image is known to
// be ready no further runtime calls are made for it. Concurrent callers share
// one build; each stops waiting when its own ctx ends.
func (p *Provisioner) EnsureReady(ctx context.Context, recipe Recipe) error {
	if p.isReady(recipe.Image) {
		return nil
	}

	ch := p.group.DoChan(recipe.Image, func() (any, error) {
		if p.isReady(recipe.Image) {
			return nil, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provisionTimeout)
		defer cancel()
		return nil, p.provision(buildCtx, recipe)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("waiting for environment %s: %w", recipe.Image, ctx.Err())
	}
}

// Builds returns the number of image builds performed
func (p *Provisioner) Builds() int64 {
	return p.builds.Load()
}

func (p *Provisioner) isReady(image string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready[image]
}

func (p *Provisioner) markReady(image string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready[image] = true
}

func (p *Provisioner) provision(ctx context.Context, recipe Recipe) error {
	if err := p.runtime.Ping(ctx); err != nil {
		return err
	}

	exists, err := p.runtime.ImageExists(ctx, recipe.Image)
	if err != nil {
		return fmt.Errorf("failed to check image: %w", err)
	}
	if exists {
		p.markReady(recipe.Image)
		return nil
	}

	dockerfile, err := recipe.Dockerfile()
	if err != nil {
		return err
	}

	p.logger.Info("building execution environment",
		zap.String("image", recipe.Image),
		zap.String("base_image", recipe.BaseImage),
		zap.Strings("packages", recipe.Packages))

	if err := p.runtime.BuildImage(ctx, recipe.Image, dockerfile); err != nil {
		return fmt.Errorf("failed to build environment: %w", err)
	}

	p.builds.Add(1)
	if p.onBuild != nil {
		p.onBuild()
	}
	p.markReady(recipe.Image)
	return nil
}
