package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed lock is held if the owner dies.
const DefaultLockTTL = 30 * time.Second

// Adapter saves and loads record trees on top of a ports.RecordStore.
type Adapter struct {
	store   ports.RecordStore
	locks   *keyedMutex
	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithLocker enables distributed locking of saves.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Adapter) {
		a.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(a *Adapter) {
		a.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// New creates an Adapter over the given store.
func New(store ports.RecordStore, opts ...Option) *Adapter {
	a := &Adapter{
		store:   store,
		locks:   newKeyedMutex(),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying record store.
func (a *Adapter) Store() ports.RecordStore {
	return a.store
}

// SaveTree persists root and all its descendants.
//
// Records without an ID get a fresh one, written back into the tree so the
// caller can pick up the assigned ids. Children are linked to their parent and
// positioned by their index. Records previously stored under a saved node but
// no longer present in the tree are deleted, so saving twice is a no-op.
func (a *Adapter) SaveTree(ctx context.Context, root *domain.RecordTree) error {
	if root == nil {
		return fmt.Errorf("%w: nothing to save", domain.ErrPrecondition)
	}
	assignIDs(root)

	return a.withLock(ctx, root.Record.ID, func(ctx context.Context) error {
		now := a.now()
		var saveErr error
		root.Walk(func(node, parent *domain.RecordTree) {
			if saveErr != nil {
				return
			}
			if parent != nil {
				node.Record.ParentID = parent.Record.ID
			}
			node.Record.UpdatedAt = now
			if err := a.store.Save(ctx, &node.Record); err != nil {
				saveErr = fmt.Errorf("failed to save record %s: %w", node.Record.ID, err)
			}
		})
		if saveErr != nil {
			return saveErr
		}
		if err := a.reorderSiblings(ctx, root); err != nil {
			return err
		}
		return a.prune(ctx, root)
	})
}

// reorderSiblings renumbers the stored children of root's parent after
// root.SiblingOrder. Stored siblings missing from the order keep their
// relative order after the listed ones.
func (a *Adapter) reorderSiblings(ctx context.Context, root *domain.RecordTree) error {
	if root.Record.ParentID == "" || len(root.SiblingOrder) == 0 {
		return nil
	}
	rank := make(map[string]int, len(root.SiblingOrder))
	for i, id := range root.SiblingOrder {
		rank[id] = i
	}
	stored, err := a.store.Children(ctx, root.Record.ParentID)
	if err != nil {
		return fmt.Errorf("failed to list siblings of %s: %w", root.Record.ID, err)
	}

	next := len(root.SiblingOrder)
	for _, rec := range stored {
		pos, listed := rank[rec.ID]
		if !listed {
			pos = next
			next++
		}
		if rec.ID == root.Record.ID {
			root.Record.Position = pos
		}
		if rec.Position == pos {
			continue
		}
		rec.Position = pos
		if err := a.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to reposition record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func assignIDs(root *domain.RecordTree) {
	root.Walk(func(node, _ *domain.RecordTree) {
		if node.Record.ID == "" {
			node.Record.ID = uuid.NewString()
		}
		for i, child := range node.Children {
			child.Record.Position = i
		}
	})
}

// prune removes stored children that are no longer part of the tree.
func (a *Adapter) prune(ctx context.Context, root *domain.RecordTree) error {
	var pruneErr error
	root.Walk(func(node, _ *domain.RecordTree) {
		if pruneErr != nil {
			return
		}
		keep := make(map[string]struct{}, len(node.Children))
		for _, child := range node.Children {
			keep[child.Record.ID] = struct{}{}
		}
		stored, err := a.store.Children(ctx, node.Record.ID)
		if err != nil {
			pruneErr = fmt.Errorf("failed to list children of %s: %w", node.Record.ID, err)
			return
		}
		for _, rec := range stored {
			if _, ok := keep[rec.ID]; ok {
				continue
			}
			a.logger.Debug("Pruning stale record", "record_id", rec.ID, "parent_id", node.Record.ID)
			if err := a.deleteTree(ctx, rec.ID); err != nil {
				pruneErr = err
				return
			}
		}
	})
	return pruneErr
}

// LoadTree reads the record id and all its descendants.
func (a *Adapter) LoadTree(ctx context.Context, id string) (*domain.RecordTree, error) {
	rec, err := a.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: record %s: %w", domain.ErrNotFound, id, err)
		}
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	node := &domain.RecordTree{Record: *rec}
	if err := a.loadChildren(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (a *Adapter) loadChildren(ctx context.Context, node *domain.RecordTree) error {
	children, err := a.store.Children(ctx, node.Record.ID)
	if err != nil {
		return fmt.Errorf("failed to list children of %s: %w", node.Record.ID, err)
	}
	for _, rec := range children {
		child := &domain.RecordTree{Record: *rec}
		if err := a.loadChildren(ctx, child); err != nil {
			return err
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

// LoadInstanceState reads a saved pipeline by the id of its wrapper record.
// The wrapper must carry a provider reference.
func (a *Adapter) LoadInstanceState(ctx context.Context, id string) (*domain.InstanceState, error) {
	root, err := a.LoadTree(ctx, id)
	if err != nil {
		return nil, err
	}
	if root.Record.Kind != domain.RecordWrapper {
		return nil, fmt.Errorf("%w: wrong pipeline config: record %s is not a pipeline", domain.ErrConfiguration, id)
	}
	if root.Record.Provider == "" {
		return nil, fmt.Errorf("%w: pipeline %s", domain.ErrMissingProvider, id)
	}
	return &domain.InstanceState{
		Provider: root.Record.Provider,
		Version:  root.Record.Version,
		Root:     root,
	}, nil
}

// DeleteTree removes the record id and all its descendants.
func (a *Adapter) DeleteTree(ctx context.Context, id string) error {
	return a.withLock(ctx, id, func(ctx context.Context) error {
		return a.deleteTree(ctx, id)
	})
}

func (a *Adapter) deleteTree(ctx context.Context, id string) error {
	children, err := a.store.Children(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list children of %s: %w", id, err)
	}
	for _, child := range children {
		if err := a.deleteTree(ctx, child.ID); err != nil {
			return err
		}
	}
	if err := a.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// List returns the ids of saved pipelines.
func (a *Adapter) List(ctx context.Context) ([]string, error) {
	return a.store.List(ctx)
}
