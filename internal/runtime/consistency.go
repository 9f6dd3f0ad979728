package runtime

import "github.com/aretw0/pipetree/pkg/domain"

// The chain is the pre-order sequence of steps. A step is enabled while every
// step before it is consistent, so at most one non-consistent step is enabled:
// completing it unlocks exactly the next one.

// chain returns the runnable nodes in pre-order. The caller holds t.mu.
func (t *Tree) chain() []*node {
	var steps []*node
	t.root.walk(func(n *node) {
		if n.runnable() {
			steps = append(steps, n)
		}
	})
	return steps
}

// refreshEnablement recomputes the enabled flag of every step.
func (t *Tree) refreshEnablement() {
	open := true
	for _, n := range t.chain() {
		n.enabled = open
		if n.state != domain.StateConsistent {
			open = false
		}
	}
}

// invalidateFollowing marks every step positioned after target (and target's
// own subtree when includeTarget is set) as no longer reflecting its upstream.
func (t *Tree) invalidateFollowing(target *node, includeTarget bool) {
	after := false
	var visit func(n *node)
	visit = func(n *node) {
		if n == target {
			if includeTarget {
				n.walk(invalidate)
			}
			after = true
			return
		}
		if after {
			invalidate(n)
		}
		for _, child := range n.children {
			visit(child)
		}
	}
	visit(t.root)
}

// invalidate demotes a consistent step with outputs. Steps that never ran stay pending.
func invalidate(n *node) {
	if !n.runnable() {
		return
	}
	if n.hasOutput() {
		n.state = domain.StateInconsistent
	} else {
		n.state = domain.StatePending
	}
}

// markSucceeded records a successful run of n and invalidates its successors.
func (t *Tree) markSucceeded(n *node) {
	n.state = domain.StateConsistent
	t.invalidateFollowing(n, false)
}

// markInputsChanged applies the input-change cascade. It reports whether the
// inputs actually changed; edits that leave the content identical are ignored.
func (t *Tree) markInputsChanged(n *node) bool {
	fp := fingerprint(n.call.inputs)
	if fp == n.call.inputsFP {
		return false
	}
	n.call.inputsFP = fp
	if n.hasOutput() {
		n.state = domain.StateInconsistent
		t.invalidateFollowing(n, false)
	}
	return true
}

func (n *node) consistencyInfo() domain.ConsistencyInfo {
	return domain.ConsistencyInfo{
		State:    n.state,
		Enabled:  n.enabled,
		Readonly: n.readonly,
	}
}
