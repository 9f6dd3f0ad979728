package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/pipetree"
	"github.com/aretw0/pipetree/pkg/adapters/file"
	"github.com/aretw0/pipetree/pkg/adapters/memory"
	"github.com/aretw0/pipetree/pkg/adapters/process"
	"github.com/aretw0/pipetree/pkg/adapters/redis"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/persistence/middleware"
	"github.com/aretw0/pipetree/pkg/ports"
	"github.com/aretw0/pipetree/pkg/provider"
	"github.com/aretw0/pipetree/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
)

// Store backends selectable from the command line.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// EngineOptions are the command-line settings an engine is built from.
type EngineOptions struct {
	// Providers is a directory of pipeline configuration files.
	Providers string
	// Functions is a functions.yaml describing process-backed step functions.
	Functions string

	Store     string
	Dir       string
	RedisAddr string

	// EncryptionKey is a hex encoded AES-256 key sealing saved inputs and outputs.
	EncryptionKey string
	// Mask holds regular expressions of input and output names masked before saving.
	Mask []string

	Mock    bool
	Metrics prometheus.Registerer
}

// CreateEngine builds an engine following the CLI conventions.
// The returned cleanup releases the engine and any backend connection.
func CreateEngine(opts EngineOptions, logger *slog.Logger) (*pipetree.Engine, func(), error) {
	providers := provider.NewRegistry(provider.WithLogger(logger))
	if opts.Providers != "" {
		n, err := providers.LoadDir(opts.Providers)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading providers: %w", err)
		}
		logger.Debug("Providers loaded", "dir", opts.Providers, "count", n)
	}

	functions, err := createFunctions(opts.Functions)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, locker, err := createStore(opts)
	if err != nil {
		return nil, nil, err
	}

	mws, err := createMiddlewares(opts)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	engineOpts := []pipetree.Option{
		pipetree.WithLogger(logger),
		pipetree.WithProviders(providers),
		pipetree.WithFunctions(functions),
		pipetree.WithStore(store),
		pipetree.WithStoreMiddleware(mws...),
		pipetree.WithMockMode(opts.Mock),
	}
	if locker != nil {
		engineOpts = append(engineOpts, pipetree.WithLocker(locker))
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, pipetree.WithMetrics(opts.Metrics))
	}

	engine, err := pipetree.New(engineOpts...)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}

	return engine, func() {
		engine.Close()
		closeStore()
	}, nil
}

// createFunctions mounts the process functions of a functions.yaml next to the builtins.
func createFunctions(path string) (*registry.Registry, error) {
	reg := registry.NewRegistry()
	registry.RegisterBuiltins(reg)
	if path == "" {
		return reg, nil
	}

	configs, err := process.LoadFunctions(path)
	if err != nil {
		return nil, err
	}
	reg.Mount(process.NewRunner(
		process.WithRegistry(configs),
		process.WithBaseDir(filepath.Dir(path)),
	))
	return reg, nil
}

func createStore(opts EngineOptions) (ports.RecordStore, func(), ports.DistributedLocker, error) {
	switch opts.Store {
	case "", StoreMemory:
		return memory.NewStore(), func() {}, nil, nil
	case StoreFile:
		dir := opts.Dir
		if dir == "" {
			dir = ".pipetree"
		}
		return file.New(dir), func() {}, nil, nil
	case StoreRedis:
		if opts.RedisAddr == "" {
			return nil, nil, nil, fmt.Errorf("%w: redis store requires --redis-addr", domain.ErrConfiguration)
		}
		client := backend.NewClient(&backend.Options{Addr: opts.RedisAddr})
		closeClient := func() { _ = client.Close() }
		return redis.NewFromClient(client), closeClient, redis.NewLocker(client, "pipetree:"), nil
	}
	return nil, nil, nil, fmt.Errorf("%w: unknown store %q (memory, file, redis)", domain.ErrConfiguration, opts.Store)
}

// createMiddlewares orders masking before encryption so masked values are sealed too.
func createMiddlewares(opts EngineOptions) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(opts.Mask) > 0 {
		mw, err := middleware.NewPIIMiddleware(opts.Mask)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if opts.EncryptionKey != "" {
		key, err := hex.DecodeString(opts.EncryptionKey)
		if err != nil {
			return nil, errors.Join(domain.ErrConfiguration, fmt.Errorf("encryption key must be hex encoded: %w", err))
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}
