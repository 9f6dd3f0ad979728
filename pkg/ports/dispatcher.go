package ports

import (
	"context"

	"github.com/aretw0/pipetree/pkg/domain"
)

// FuncExecutor defines how the function bound to a step is invoked.
type FuncExecutor interface {
	// Execute runs the named function against the given inputs and returns its outputs.
	Execute(ctx context.Context, nqName string, inputs map[string]any) (map[string]any, error)

	// Has reports whether the function is known, so calls can be bound before running.
	Has(nqName string) bool
}

// Validator checks the inputs of a step. Results are keyed by parameter name.
type Validator interface {
	Validate(ctx context.Context, name string, inputs map[string]any) (map[string]domain.ValidationResult, error)
}
