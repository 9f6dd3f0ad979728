package ports

import (
	"context"

	"github.com/aretw0/pipetree/pkg/domain"
)

// Engine defines the view-facing surface of a pipeline engine.
// This is the interface used by adapters (HTTP, MCP, CLI) to issue commands and observe projections.
type Engine interface {
	// Do submits a command and waits until it has been processed.
	Do(ctx context.Context, cmd domain.Command) (domain.CommandResult, error)

	// Projections returns the latest published projections.
	Projections() domain.Projections

	// Locked reports whether the current tree has a structural mutation or run in flight.
	Locked() bool

	// Subscribe streams every published projection record until cancel is called.
	Subscribe() (<-chan domain.Projections, func())
}
