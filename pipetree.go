package pipetree

import (
	"context"
	"log/slog"

	"github.com/aretw0/pipetree/internal/driver"
	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/internal/metrics"
	"github.com/aretw0/pipetree/pkg/adapters/memory"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/persistence"
	"github.com/aretw0/pipetree/pkg/persistence/middleware"
	"github.com/aretw0/pipetree/pkg/ports"
	"github.com/aretw0/pipetree/pkg/provider"
	"github.com/aretw0/pipetree/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the high-level entry point for the pipetree library.
// It wires a command driver to a record store, configuration providers and
// the functions steps run.
type Engine struct {
	driver      *driver.Driver
	persistence *persistence.Adapter
	providers   ports.ConfigProvider
	functions   ports.FuncExecutor

	store       ports.RecordStore
	middlewares []middleware.Middleware
	locker      ports.DistributedLocker
	validators  ports.Validator
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	mockMode    bool
	metricsReg  prometheus.Registerer
}

var _ ports.Engine = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the record store pipelines are saved to (default: in memory).
func WithStore(store ports.RecordStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithStoreMiddleware wraps the record store, e.g. with encryption or PII masking.
// The first middleware is the outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) {
		e.middlewares = append(e.middlewares, mws...)
	}
}

// WithLocker serializes saves across engine replicas sharing a store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithProviders sets the source of pipeline configurations.
func WithProviders(p ports.ConfigProvider) Option {
	return func(e *Engine) {
		e.providers = p
	}
}

// WithFunctions sets the functions steps are bound to.
// When it also implements ports.Validator it provides the validators too.
func WithFunctions(exec ports.FuncExecutor) Option {
	return func(e *Engine) {
		e.functions = exec
	}
}

// WithValidators sets the validators steps refer to.
func WithValidators(v ports.Validator) Option {
	return func(e *Engine) {
		e.validators = v
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMockMode lets runStep commands carry mock results instead of running functions.
func WithMockMode(enabled bool) Option {
	return func(e *Engine) {
		e.mockMode = enabled
	}
}

// WithMetrics registers Prometheus collectors for commands, step runs and tree swaps.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metricsReg = reg
	}
}

// New initializes a new Engine. Without options it keeps pipelines in memory,
// has an empty provider registry and only the Core builtin functions.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.providers == nil {
		e.providers = provider.NewRegistry(provider.WithLogger(e.logger))
	}
	if e.functions == nil {
		reg := registry.NewRegistry()
		registry.RegisterBuiltins(reg)
		e.functions = reg
	}
	if e.validators == nil {
		if v, ok := e.functions.(ports.Validator); ok {
			e.validators = v
		}
	}

	hooks := e.hooks
	if e.metricsReg != nil {
		collector, err := metrics.New(e.metricsReg)
		if err != nil {
			return nil, err
		}
		hooks = domain.ChainHooks(hooks, collector.Hooks())
	}

	persistOpts := []persistence.Option{persistence.WithLogger(e.logger)}
	if e.locker != nil {
		persistOpts = append(persistOpts, persistence.WithLocker(e.locker))
	}
	e.persistence = persistence.New(middleware.Chain(e.store, e.middlewares...), persistOpts...)

	e.driver = driver.New(
		driver.WithProvider(e.providers),
		driver.WithPersistence(e.persistence),
		driver.WithExecutor(e.functions),
		driver.WithValidator(e.validators),
		driver.WithLifecycleHooks(hooks),
		driver.WithLogger(e.logger),
		driver.WithMockMode(e.mockMode),
	)
	return e, nil
}

// Send queues a command without waiting for it.
func (e *Engine) Send(cmd domain.Command) error {
	return e.driver.Send(cmd)
}

// Do submits a command and waits until it has been processed.
func (e *Engine) Do(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	return e.driver.Do(ctx, cmd)
}

// DoRaw decodes a generic message (decoded JSON, YAML or tool arguments) and submits it.
func (e *Engine) DoRaw(ctx context.Context, raw map[string]any) (domain.CommandResult, error) {
	cmd, err := domain.DecodeCommand(raw)
	if err != nil {
		event, _ := raw["event"].(string)
		return domain.CommandResult{Event: event, Err: err}, err
	}
	return e.driver.Do(ctx, cmd)
}

// Projections returns the latest published projections.
func (e *Engine) Projections() domain.Projections {
	return e.driver.Projections()
}

// Locked reports whether the current tree has a structural mutation or run in flight.
func (e *Engine) Locked() bool {
	return e.driver.Locked()
}

// Subscribe streams published projections until cancel is called.
func (e *Engine) Subscribe() (<-chan domain.Projections, func()) {
	return e.driver.Subscribe()
}

// SubscribeLocked streams the lock flag until cancel is called.
func (e *Engine) SubscribeLocked() (<-chan bool, func()) {
	return e.driver.SubscribeLocked()
}

// Persistence exposes the persistence adapter, e.g. to list saved pipelines.
func (e *Engine) Persistence() *persistence.Adapter {
	return e.persistence
}

// Providers returns the configuration source the engine resolves pipelines with.
func (e *Engine) Providers() ports.ConfigProvider {
	return e.providers
}

// Close disposes the current tree and stops accepting commands.
func (e *Engine) Close() {
	e.driver.Close()
}
