package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/google/uuid"
)

// Save persists the node id (the root when id is empty) and its descendants,
// and returns its persisted id. Unsaved nodes get ids assigned; saving again
// reuses them.
func (t *Tree) Save(ctx context.Context, id string) (string, error) {
	if t.persistence == nil {
		return "", fmt.Errorf("%w: no persistence configured", domain.ErrConfiguration)
	}
	done := t.begin()
	defer done()

	t.mu.RLock()
	target := t.root
	var err error
	if id != "" {
		target, err = t.lookup(id)
	} else if t.closed {
		err = domain.ErrTreeClosed
	}
	if err != nil {
		t.mu.RUnlock()
		return "", err
	}
	records, nodes := t.toRecords(target)
	t.mu.RUnlock()

	if err := t.persistence.SaveTree(ctx, records); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", target.cfg.ID, err)
	}

	t.mu.Lock()
	i := 0
	records.Walk(func(rec, _ *domain.RecordTree) {
		nodes[i].dbID = rec.Record.ID
		i++
	})
	t.mu.Unlock()

	t.logger.Debug("Saved", "item_id", target.cfg.ID, "db_id", records.Record.ID)
	t.changed()
	return records.Record.ID, nil
}

// toRecords converts a subtree into records, returning the nodes in the same
// pre-order as RecordTree.Walk. The caller holds t.mu.
func (t *Tree) toRecords(target *node) (*domain.RecordTree, []*node) {
	var nodes []*node
	var build func(n *node) *domain.RecordTree
	build = func(n *node) *domain.RecordTree {
		nodes = append(nodes, n)
		rec := domain.Record{
			ID:       n.dbID,
			Kind:     domain.RecordStep,
			UUID:     n.uuid,
			ItemID:   n.cfg.ID,
			Type:     n.cfg.Type,
			NodeKind: n.kind,
			NqName:   n.cfg.NqName,
		}
		if n == t.root {
			rec.Kind = domain.RecordWrapper
			rec.Provider = t.config.Provider
			rec.Version = t.config.Version
		}
		if n.runnable() {
			rec.Inputs = domain.CloneMap(n.call.inputs)
			rec.Outputs = domain.CloneMap(n.call.outputs)
			rec.Status = n.call.status
			rec.Error = n.call.err
			rec.RunCount = n.call.runCount
			rec.Completed = n.state == domain.StateConsistent
		}
		tree := &domain.RecordTree{Record: rec}
		for _, child := range n.children {
			tree.Children = append(tree.Children, build(child))
		}
		return tree
	}

	records := build(target)
	if target.parent != nil {
		records.Record.ParentID = target.parent.dbID
		records.Record.Position = target.index()
		if target.parent.dbID != "" {
			if records.Record.ID == "" {
				records.Record.ID = uuid.NewString()
			}
			for _, sibling := range target.parent.children {
				switch {
				case sibling == target:
					records.SiblingOrder = append(records.SiblingOrder, records.Record.ID)
				case sibling.dbID != "":
					records.SiblingOrder = append(records.SiblingOrder, sibling.dbID)
				}
			}
		}
	}
	return records, nodes
}
