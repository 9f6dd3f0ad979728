package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/pipetree/internal/runtime"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/provider"
)

// loadPipeline rebuilds a persisted pipeline and makes it current.
func (d *Driver) loadPipeline(ctx context.Context, c domain.LoadPipeline) (domain.CommandResult, error) {
	if d.persistence == nil {
		return domain.CommandResult{}, fmt.Errorf("%w: no persistence configured", domain.ErrConfiguration)
	}
	state, err := d.persistence.LoadInstanceState(ctx, c.FuncCallID)
	if err != nil {
		return domain.CommandResult{}, fmt.Errorf("failed to load pipeline %s: %w", c.FuncCallID, err)
	}

	cfg := c.Config
	if cfg == nil {
		cfg, err = d.resolve(ctx, state.Provider, state.Version)
		if err != nil {
			return domain.CommandResult{}, err
		}
	} else {
		cfg = cfg.Clone()
		if cfg.Provider == "" {
			cfg.Provider = state.Provider
		}
		if err := provider.Normalize(cfg); err != nil {
			return domain.CommandResult{}, err
		}
	}

	tree, err := runtime.NewFromInstanceState(state, cfg, d.treeOptions(runtime.WithReadonly(c.Readonly))...)
	if err != nil {
		return domain.CommandResult{}, err
	}
	if _, err := tree.InitFuncCalls(ctx); err != nil {
		tree.Close()
		return domain.CommandResult{}, err
	}
	if err := d.install(ctx, tree); err != nil {
		return domain.CommandResult{}, err
	}
	return domain.CommandResult{UUID: tree.RootUUID(), DBID: c.FuncCallID}, nil
}

// initPipeline builds a fresh pipeline from a provider and makes it current.
func (d *Driver) initPipeline(ctx context.Context, c domain.InitPipeline) (domain.CommandResult, error) {
	cfg, err := d.resolve(ctx, c.Provider, c.Version)
	if err != nil {
		return domain.CommandResult{}, err
	}
	tree, err := runtime.NewFromConfig(cfg, d.treeOptions()...)
	if err != nil {
		return domain.CommandResult{}, err
	}
	if _, err := tree.InitAll(ctx); err != nil {
		tree.Close()
		return domain.CommandResult{}, err
	}
	if err := d.install(ctx, tree); err != nil {
		return domain.CommandResult{}, err
	}
	return domain.CommandResult{UUID: tree.RootUUID()}, nil
}

func (d *Driver) resolve(ctx context.Context, name string, version *int) (*domain.PipelineConfiguration, error) {
	if d.provider == nil {
		return nil, fmt.Errorf("%w: no configuration provider", domain.ErrConfiguration)
	}
	cfg, err := d.provider.Resolve(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if err := provider.Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *Driver) treeOptions(extra ...runtime.Option) []runtime.Option {
	opts := []runtime.Option{
		runtime.WithExecutor(d.executor),
		runtime.WithValidator(d.validator),
		runtime.WithLifecycleHooks(d.hooks),
		runtime.WithLogger(d.logger),
		runtime.WithMockMode(d.mockMode),
	}
	if d.persistence != nil {
		opts = append(opts, runtime.WithPersistence(d.persistence))
	}
	return append(opts, extra...)
}

// install wires the tree's signals into the projections and swaps it in.
// The previous tree is disposed after the swap.
func (d *Driver) install(ctx context.Context, tree *runtime.Tree) error {
	tree.OnChange(func() {
		if d.holder.Current() == tree {
			d.dirty.Store(true)
		}
	})
	tree.WatchLocked(func(locked bool) {
		if d.holder.Current() == tree {
			d.emit(func() { d.locked.Publish(locked) })
		}
	})
	if err := d.holder.Swap(tree); err != nil {
		return err
	}
	d.dirty.Store(true)
	d.emit(func() { d.locked.Publish(tree.Locked()) })

	cfg := tree.Config()
	d.logger.Info("Pipeline ready", "pipeline", cfg.ID, "provider", cfg.Provider, "nodes", tree.Len())
	if d.hooks.OnTreeSwap != nil {
		d.hooks.OnTreeSwap(ctx, &domain.TreeEvent{
			EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventTreeSwap},
			RootItemID: cfg.ID,
			Provider:   cfg.Provider,
			Nodes:      tree.Len(),
		})
	}
	return nil
}
