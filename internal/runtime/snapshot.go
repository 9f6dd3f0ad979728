package runtime

import "github.com/aretw0/pipetree/pkg/domain"

// ToState returns an immutable snapshot of the whole tree.
func (t *Tree) ToState() *domain.PipelineState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(t.root)
}

func (t *Tree) snapshot(n *node) *domain.PipelineState {
	s := &domain.PipelineState{
		UUID:         n.uuid,
		ItemID:       n.cfg.ID,
		Type:         n.cfg.Type,
		Kind:         n.kind,
		NqName:       n.cfg.NqName,
		FriendlyName: n.label(),
		DBID:         n.dbID,
		Readonly:     n.readonly,
	}
	if n == t.root {
		s.Provider = t.config.Provider
		if t.config.Version != nil {
			v := *t.config.Version
			s.Version = &v
		}
	}
	if n.runnable() {
		s.Inputs = domain.CloneMap(n.call.inputs)
		s.Outputs = domain.CloneMap(n.call.outputs)
	}
	for _, child := range n.children {
		s.Children = append(s.Children, t.snapshot(child))
	}
	return s
}

// Consistency returns the consistency info of every step, keyed by uuid.
func (t *Tree) Consistency() map[string]domain.ConsistencyInfo {
	return t.Projections().Consistency
}

// Validations returns the validation results of every step, keyed by uuid then parameter.
func (t *Tree) Validations() map[string]map[string]domain.ValidationResult {
	return t.Projections().Validations
}

// CallStates returns the run state of every step, keyed by uuid.
func (t *Tree) CallStates() map[string]domain.CallState {
	return t.Projections().CallStates
}

// Projections derives the snapshot and the three per-step maps from one traversal.
func (t *Tree) Projections() domain.Projections {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p := domain.EmptyProjections()
	p.State = t.snapshot(t.root)
	t.root.walk(func(n *node) {
		if !n.runnable() {
			return
		}
		p.Consistency[n.uuid] = n.consistencyInfo()
		p.CallStates[n.uuid] = domain.CallState{
			Status:     n.call.status,
			IsOutdated: n.state == domain.StateInconsistent,
			RunCount:   n.call.runCount,
			Error:      n.call.err,
		}
		if n.validations != nil {
			p.Validations[n.uuid] = cloneValidations(n.validations)
		}
	})
	return p
}

func cloneValidations(in map[string]domain.ValidationResult) map[string]domain.ValidationResult {
	out := make(map[string]domain.ValidationResult, len(in))
	for param, r := range in {
		out[param] = domain.ValidationResult{
			Errors:        append([]domain.Advice{}, r.Errors...),
			Warnings:      append([]domain.Advice{}, r.Warnings...),
			Notifications: append([]domain.Advice{}, r.Notifications...),
		}
	}
	return out
}
