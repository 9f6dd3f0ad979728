package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/pkg/domain"
	"golang.org/x/sync/singleflight"
)

// ProviderFunc produces the raw configuration of one provider version.
type ProviderFunc func(ctx context.Context) (*domain.PipelineConfiguration, error)

// Registry implements ports.ConfigProvider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]map[int]ProviderFunc
	cache     map[string]*domain.PipelineConfiguration
	group     singleflight.Group
	logger    *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty provider registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		providers: make(map[string]map[int]ProviderFunc),
		cache:     make(map[string]*domain.PipelineConfiguration),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds (or replaces) one version of a provider.
func (r *Registry) Register(name string, version int, fn ProviderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.providers[name]
	if !ok {
		versions = make(map[int]ProviderFunc)
		r.providers[name] = versions
	}
	versions[version] = fn
	delete(r.cache, cacheKey(name, version))
}

// RegisterConfig registers a static configuration under its own provider name and version.
// A missing version registers version 1.
func (r *Registry) RegisterConfig(cfg *domain.PipelineConfiguration) error {
	if cfg.Provider == "" {
		return fmt.Errorf("%w: configuration has no provider name", domain.ErrConfiguration)
	}
	version := 1
	if cfg.Version != nil {
		version = *cfg.Version
	}
	r.Register(cfg.Provider, version, Static(cfg))
	return nil
}

// Versions returns the registered versions of a provider in ascending order.
func (r *Registry) Versions(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.providers[name]))
	for v := range r.providers[name] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the normalized configuration of a provider.
// A nil version selects the latest registered one. The returned value is a
// copy the caller may keep.
func (r *Registry) Resolve(ctx context.Context, name string, version *int) (*domain.PipelineConfiguration, error) {
	fn, resolved, err := r.lookup(name, version)
	if err != nil {
		return nil, err
	}
	key := cacheKey(name, resolved)

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		raw, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: provider %s: %w", domain.ErrConfiguration, key, err)
		}
		cfg := raw.Clone()
		cfg.Provider = name
		cfg.Version = &resolved
		if err := Normalize(cfg); err != nil {
			return nil, fmt.Errorf("provider %s: %w", key, err)
		}

		r.mu.Lock()
		r.cache[key] = cfg
		r.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Provider resolved", "provider", name, "version", resolved, "shared", shared)
	return v.(*domain.PipelineConfiguration).Clone(), nil
}

func (r *Registry) lookup(name string, version *int) (ProviderFunc, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.providers[name]
	if !ok || len(versions) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
	}
	if version != nil {
		fn, ok := versions[*version]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s version %d", domain.ErrProviderNotFound, name, *version)
		}
		return fn, *version, nil
	}

	latest, first := 0, true
	for v := range versions {
		if first || v > latest {
			latest, first = v, false
		}
	}
	return versions[latest], latest, nil
}

func cacheKey(name string, version int) string {
	return name + "@" + strconv.Itoa(version)
}
