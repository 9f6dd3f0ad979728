package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/pipetree/pkg/domain"
)

// AddSubTree inserts a fresh dynamic item under parentUUID at position
// (appended when position is past the last child) and returns its uuid.
func (t *Tree) AddSubTree(ctx context.Context, parentUUID, itemID string, position int) (string, error) {
	done := t.begin()
	defer done()

	t.mu.Lock()
	parent, tpl, err := t.dynamicParent(parentUUID, itemID, position)
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	n, err := t.buildFresh(tpl, domain.KindDynamic, parent)
	if err == nil {
		err = t.checkFunctions(n)
	}
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	t.insert(parent, n, position)
	steps := stepsOf(n)
	t.mu.Unlock()

	t.logger.Debug("Dynamic item added", "uuid", n.uuid, "item_id", itemID, "parent", parentUUID)
	t.validate(ctx, steps...)
	t.changed()
	return n.uuid, nil
}

// LoadSubTree attaches a copy of a persisted item under parentUUID.
// The copy keeps the persisted results but gets fresh persisted ids when saved.
func (t *Tree) LoadSubTree(ctx context.Context, parentUUID, dbID, itemID string, position int, readonly bool) (string, error) {
	done := t.begin()
	defer done()

	t.mu.RLock()
	_, _, err := t.dynamicParent(parentUUID, itemID, position)
	t.mu.RUnlock()
	if err != nil {
		return "", err
	}
	if t.persistence == nil {
		return "", fmt.Errorf("%w: no persistence configured", domain.ErrConfiguration)
	}

	records, err := t.persistence.LoadTree(ctx, dbID)
	if err != nil {
		return "", err
	}
	if records.Record.ItemID != itemID {
		return "", fmt.Errorf("%w: record %s holds item %q, expected %q",
			domain.ErrSchemaMismatch, dbID, records.Record.ItemID, itemID)
	}

	t.mu.Lock()
	// The parent may have gone while the records were loading.
	parent, tpl, err := t.dynamicParent(parentUUID, itemID, position)
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	n, err := t.buildFromRecords(tpl, domain.KindDynamic, records, readonly || parent.readonly, nil)
	if err == nil {
		err = t.checkFunctions(n)
	}
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	n.walk(func(c *node) { c.dbID = "" })
	n.parent = parent
	t.insert(parent, n, position)
	steps := stepsOf(n)
	t.mu.Unlock()

	t.logger.Debug("Dynamic item loaded", "uuid", n.uuid, "db_id", dbID, "readonly", readonly)
	t.validate(ctx, steps...)
	t.changed()
	return n.uuid, nil
}

// dynamicParent checks that itemID may be inserted under parentUUID. The caller holds t.mu.
func (t *Tree) dynamicParent(parentUUID, itemID string, position int) (*node, *domain.ItemConfig, error) {
	parent, err := t.lookup(parentUUID)
	if err != nil {
		return nil, nil, err
	}
	if parent.cfg.Type != domain.ItemTypeSequential {
		return nil, nil, fmt.Errorf("%w: %q does not accept dynamic items", domain.ErrUnknownItem, parent.cfg.ID)
	}
	if parent.readonly {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrReadonly, parentUUID)
	}
	tpl, ok := templateFor(parent.cfg, itemID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q under %q", domain.ErrUnknownItem, itemID, parent.cfg.ID)
	}
	if position < 0 {
		return nil, nil, fmt.Errorf("%w: %d", domain.ErrInvalidPosition, position)
	}
	return parent, tpl, nil
}

// insert attaches a detached subtree and applies the consistency cascade. The caller holds t.mu.
func (t *Tree) insert(parent, n *node, position int) {
	if position > len(parent.children) {
		position = len(parent.children)
	}
	parent.children = append(parent.children, nil)
	copy(parent.children[position+1:], parent.children[position:])
	parent.children[position] = n
	t.attachIndex(n)

	t.invalidateFollowing(n, false)
	t.refreshEnablement()
}

// RemoveSubTree detaches and disposes a dynamic item and its descendants.
func (t *Tree) RemoveSubTree(ctx context.Context, id string) error {
	done := t.begin()
	defer done()

	t.mu.Lock()
	n, err := t.editable(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.invalidateFollowing(n, false)

	parent := n.parent
	idx := n.index()
	parent.children = append(parent.children[:idx], parent.children[idx+1:]...)
	n.parent = nil
	t.detachIndex(n)
	t.refreshEnablement()
	t.mu.Unlock()

	t.logger.Debug("Dynamic item removed", "uuid", id)
	t.changed()
	return nil
}

// MoveSubTree moves a dynamic item to position among its siblings.
func (t *Tree) MoveSubTree(ctx context.Context, id string, position int) error {
	done := t.begin()
	defer done()

	t.mu.Lock()
	n, err := t.editable(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	siblings := n.parent.children
	if position < 0 || position >= len(siblings) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0, %d)", domain.ErrInvalidPosition, position, len(siblings))
	}
	from := n.index()
	if from == position {
		t.mu.Unlock()
		return nil
	}

	siblings = append(siblings[:from], siblings[from+1:]...)
	siblings = append(siblings, nil)
	copy(siblings[position+1:], siblings[position:])
	siblings[position] = n
	n.parent.children = siblings

	t.invalidateFollowing(siblings[min(from, position)], true)
	t.refreshEnablement()
	t.mu.Unlock()

	t.logger.Debug("Dynamic item moved", "uuid", id, "from", from, "to", position)
	t.changed()
	return nil
}

// editable resolves a node that structural edits may target. The caller holds t.mu.
func (t *Tree) editable(id string) (*node, error) {
	n, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	if n.parent == nil || n.kind != domain.KindDynamic {
		return nil, fmt.Errorf("%w: %s", domain.ErrStaticNode, id)
	}
	if n.parent.readonly {
		return nil, fmt.Errorf("%w: parent of %s", domain.ErrReadonly, id)
	}
	return n, nil
}

// UpdateInputs merges inputs into a step's call. Changing the inputs of a step
// that already produced outputs invalidates it and everything after it.
func (t *Tree) UpdateInputs(ctx context.Context, id string, inputs map[string]any) error {
	t.mu.Lock()
	n, err := t.lookup(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if !n.runnable() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotRunnable, id)
	}
	if n.readonly {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrReadonly, id)
	}
	for k, v := range inputs {
		n.call.inputs[k] = domain.CloneValue(v)
	}
	changed := t.markInputsChanged(n)
	if changed {
		t.refreshEnablement()
	}
	t.mu.Unlock()

	if !changed {
		return nil
	}
	t.validate(ctx, n)
	t.changed()
	return nil
}

func stepsOf(root *node) []*node {
	var steps []*node
	root.walk(func(n *node) {
		if n.runnable() {
			steps = append(steps, n)
		}
	})
	return steps
}
