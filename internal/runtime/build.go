package runtime

import (
	"fmt"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/google/uuid"
)

// buildFresh creates the nodes of cfg without history. Sequential pipelines
// instantiate their configured steps as initial dynamic items.
func (t *Tree) buildFresh(cfg *domain.ItemConfig, kind domain.NodeKind, parent *node) (*node, error) {
	n := &node{
		uuid:     uuid.NewString(),
		cfg:      cfg,
		kind:     kind,
		parent:   parent,
		readonly: t.readonly,
		state:    domain.StatePending,
	}
	if cfg.IsRunnable() {
		n.call = newCall(cfg.Inputs)
	}

	childKind := domain.KindStatic
	if cfg.Type == domain.ItemTypeSequential {
		childKind = domain.KindDynamic
	}
	for i := range cfg.Steps {
		child, err := t.buildFresh(&cfg.Steps[i], childKind, n)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}
	return n, nil
}

// buildFromRecords rehydrates cfg from a persisted record tree.
// Static steps missing from the records are created fresh; persisted dynamic
// items must match one of the templates of their sequential parent.
func (t *Tree) buildFromRecords(cfg *domain.ItemConfig, kind domain.NodeKind, rec *domain.RecordTree, readonly bool, parentPending map[string]struct{}) (*node, error) {
	pending := parentPending
	if pending == nil {
		pending = make(map[string]struct{})
	}
	r := &rec.Record
	if r.Type != "" && r.Type != cfg.Type {
		return nil, fmt.Errorf("%w: record %s is a %s, configuration %q expects a %s",
			domain.ErrSchemaMismatch, r.ID, r.Type, cfg.ID, cfg.Type)
	}

	n := &node{
		uuid:     t.newUUID(r.UUID, pending),
		cfg:      cfg,
		kind:     kind,
		dbID:     r.ID,
		readonly: readonly,
		state:    domain.StatePending,
	}
	pending[n.uuid] = struct{}{}

	if cfg.IsRunnable() {
		inputs := r.Inputs
		if inputs == nil {
			inputs = cfg.Inputs
		}
		n.call = newCall(inputs)
		n.call.outputs = domain.CloneMap(r.Outputs)
		n.call.err = r.Error
		n.call.runCount = r.RunCount
		n.call.status = r.Status
		if n.call.status == "" || n.call.status == domain.RunRunning {
			n.call.status = domain.RunIdle
		}
		switch {
		case r.Completed:
			n.state = domain.StateConsistent
		case n.call.outputs != nil:
			n.state = domain.StateInconsistent
		}
	}

	switch cfg.Type {
	case domain.ItemTypeStatic:
		used := make(map[*domain.RecordTree]bool, len(rec.Children))
		for i := range cfg.Steps {
			step := &cfg.Steps[i]
			var child *node
			var err error
			if match := findRecord(rec.Children, step.ID, used); match != nil {
				child, err = t.buildFromRecords(step, domain.KindStatic, match, readonly, pending)
			} else {
				child, err = t.buildFresh(step, domain.KindStatic, n)
				if child != nil {
					child.walk(func(c *node) { c.readonly = readonly })
				}
			}
			if err != nil {
				return nil, err
			}
			child.parent = n
			n.children = append(n.children, child)
		}
		for _, childRec := range rec.Children {
			if !used[childRec] {
				t.logger.Debug("Ignoring persisted record without configuration",
					"record_id", childRec.Record.ID, "item_id", childRec.Record.ItemID)
			}
		}
	case domain.ItemTypeSequential:
		for _, childRec := range rec.Children {
			tpl, ok := templateFor(cfg, childRec.Record.ItemID)
			if !ok {
				return nil, fmt.Errorf("%w: item %q is not allowed under %q",
					domain.ErrSchemaMismatch, childRec.Record.ItemID, cfg.ID)
			}
			child, err := t.buildFromRecords(tpl, domain.KindDynamic, childRec, readonly, pending)
			if err != nil {
				return nil, err
			}
			child.parent = n
			n.children = append(n.children, child)
		}
	}
	return n, nil
}

func findRecord(records []*domain.RecordTree, itemID string, used map[*domain.RecordTree]bool) *domain.RecordTree {
	for _, rec := range records {
		if !used[rec] && rec.Record.ItemID == itemID {
			used[rec] = true
			return rec
		}
	}
	return nil
}

// templateFor returns the configuration of a dynamic item allowed under a sequential pipeline.
func templateFor(cfg *domain.ItemConfig, itemID string) (*domain.ItemConfig, bool) {
	if cfg.Type != domain.ItemTypeSequential {
		return nil, false
	}
	if tpl, ok := cfg.FindItem(itemID); ok {
		return tpl, true
	}
	return cfg.FindStep(itemID)
}
