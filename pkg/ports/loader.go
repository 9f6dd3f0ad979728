package ports

import (
	"context"

	"github.com/aretw0/pipetree/pkg/domain"
)

// ConfigProvider resolves a named provider into a pipeline configuration.
// A nil version selects the latest one. Implementations must be idempotent
// for a given (name, version) so results can be cached.
type ConfigProvider interface {
	Resolve(ctx context.Context, name string, version *int) (*domain.PipelineConfiguration, error)
}
