package ports

import (
	"context"

	"github.com/aretw0/pipetree/pkg/domain"
)

// RecordStore defines how tree records are persisted.
// Records form a parent-linked chain; Children returns them ordered by Position.
type RecordStore interface {
	// Save inserts or replaces the record with the same ID.
	Save(ctx context.Context, rec *domain.Record) error

	// Load retrieves a record by ID.
	// Returns domain.ErrRecordNotFound if the record does not exist.
	Load(ctx context.Context, id string) (*domain.Record, error)

	// Children returns the records whose ParentID is parentID, ordered by Position.
	Children(ctx context.Context, parentID string) ([]*domain.Record, error)

	// Delete removes a single record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all wrapper records.
	List(ctx context.Context) ([]string, error)
}
