package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
)

// Func is the implementation of a step function.
// It receives a context and the step inputs, and returns the step outputs.
type Func func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// ValidatorFunc checks step inputs and reports results keyed by parameter name.
type ValidatorFunc func(ctx context.Context, inputs map[string]any) map[string]domain.ValidationResult

// Registry manages the functions and validators steps can be bound to.
// It implements ports.FuncExecutor and ports.Validator.
type Registry struct {
	mu         sync.RWMutex
	funcs      map[string]Func
	validators map[string]ValidatorFunc
	fallbacks  []ports.FuncExecutor
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs:      make(map[string]Func),
		validators: make(map[string]ValidatorFunc),
	}
}

// Register adds a function to the registry.
// If a function with the same name exists, it is overwritten.
func (r *Registry) Register(nqName string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[nqName] = fn
}

// RegisterValidator adds a named validator.
func (r *Registry) RegisterValidator(name string, fn ValidatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[name] = fn
}

// Mount appends an executor consulted for names the registry does not know,
// such as external processes.
func (r *Registry) Mount(exec ports.FuncExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, exec)
}

// Has reports whether nqName resolves to a function.
func (r *Registry) Has(nqName string) bool {
	_, exec := r.lookup(nqName)
	return exec != nil
}

func (r *Registry) lookup(nqName string) (Func, ports.FuncExecutor) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.funcs[nqName]; ok {
		return fn, r
	}
	for _, fb := range r.fallbacks {
		if fb.Has(nqName) {
			return nil, fb
		}
	}
	return nil, nil
}

// Execute looks up a function by name and executes it.
// Returns domain.ErrFunctionNotFound if no function or mounted executor knows the name.
func (r *Registry) Execute(ctx context.Context, nqName string, inputs map[string]any) (map[string]any, error) {
	fn, exec := r.lookup(nqName)
	switch {
	case fn != nil:
		return fn(ctx, inputs)
	case exec != nil:
		return exec.Execute(ctx, nqName, inputs)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrFunctionNotFound, nqName)
}

// Validate runs the named validator. Unknown validators are a configuration error.
func (r *Registry) Validate(ctx context.Context, name string, inputs map[string]any) (map[string]domain.ValidationResult, error) {
	r.mu.RLock()
	fn, ok := r.validators[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: validator %s", domain.ErrConfiguration, name)
	}
	return fn(ctx, inputs), nil
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
