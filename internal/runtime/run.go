package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/provider"
)

// RunStep executes the function bound to a step against its current inputs.
//
// Only preconditions are returned as errors. A failing function is recorded
// on the step (run status and error) and RunStep returns nil. mock replaces
// the execution with fixed results after a delay and requires mock mode.
func (t *Tree) RunStep(ctx context.Context, id string, mock *domain.MockRun) error {
	if mock != nil && !t.mockMode {
		return fmt.Errorf("%w: mock results require mock mode", domain.ErrProtocol)
	}

	t.mu.Lock()
	n, err := t.lookup(id)
	if err == nil {
		err = runnableCheck(n)
	}
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if mock == nil && t.executor == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrFunctionNotFound, n.cfg.NqName)
	}
	inputs := domain.CloneMap(n.call.inputs)
	inputsFP := n.call.inputsFP
	nqName := n.cfg.NqName
	n.call.status = domain.RunRunning
	t.mu.Unlock()

	done := t.begin()
	defer done()

	start := time.Now()
	outputs, runErr := t.execute(ctx, nqName, inputs, mock)
	duration := time.Since(start)

	t.mu.Lock()
	if _, live := t.index[id]; !live || t.closed {
		t.mu.Unlock()
		t.logger.Debug("Discarding result of a disposed step", "uuid", id)
		return nil
	}
	n.call.runCount++
	if runErr != nil {
		n.call.status = domain.RunFailed
		n.call.err = runErr.Error()
	} else {
		n.call.status = domain.RunSucceeded
		n.call.err = ""
		n.call.outputs = outputs
		if n.call.outputs == nil {
			n.call.outputs = map[string]any{}
		}
		if n.call.inputsFP == inputsFP {
			t.markSucceeded(n)
		} else {
			// Inputs were edited while the step ran; the result is already stale.
			n.state = domain.StateInconsistent
			t.invalidateFollowing(n, false)
		}
	}
	linked := t.applyLinks(n)
	t.refreshEnablement()
	t.mu.Unlock()

	if runErr != nil {
		t.logger.Warn("Step execution failed", "step", n.cfg.ID, "nq_name", nqName, "err", runErr)
	} else {
		t.logger.Debug("Step executed", "step", n.cfg.ID, "nq_name", nqName, "duration", duration)
	}
	if t.hooks.OnStepRun != nil {
		t.hooks.OnStepRun(ctx, &domain.StepEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStepRun},
			NodeID:    id,
			NqName:    nqName,
			Mock:      mock != nil,
			Duration:  duration,
			Err:       runErr,
		})
	}

	t.validate(ctx, append([]*node{n}, linked...)...)
	t.changed()
	return nil
}

func runnableCheck(n *node) error {
	switch {
	case !n.runnable():
		return fmt.Errorf("%w: %s", domain.ErrNotRunnable, n.uuid)
	case n.readonly:
		return fmt.Errorf("%w: %s", domain.ErrReadonly, n.uuid)
	case !n.enabled:
		return fmt.Errorf("%w: %s", domain.ErrStepDisabled, n.uuid)
	case n.call.status == domain.RunRunning:
		return fmt.Errorf("%w: step %s is already running", domain.ErrPrecondition, n.uuid)
	}
	return nil
}

func (t *Tree) execute(ctx context.Context, nqName string, inputs map[string]any, mock *domain.MockRun) (map[string]any, error) {
	if mock != nil {
		if mock.Delay > 0 {
			timer := time.NewTimer(mock.Delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		return domain.CloneMap(mock.Results), nil
	}

	outputs, err := t.executor.Execute(ctx, nqName, inputs)
	if err != nil {
		return nil, err
	}
	return domain.CloneMap(outputs), nil
}

// applyLinks copies outputs of n into the inputs of later siblings as
// declared by the parent's links. It returns the steps whose inputs changed.
// The caller holds t.mu.
func (t *Tree) applyLinks(n *node) []*node {
	if n.parent == nil || !n.hasOutput() || n.call.status != domain.RunSucceeded {
		return nil
	}
	var changed []*node
	for _, link := range n.parent.cfg.Links {
		fromStep, fromIO, _ := provider.SplitLinkEnd(link.From)
		toStep, toIO, _ := provider.SplitLinkEnd(link.To)
		if fromStep != n.cfg.ID {
			continue
		}
		value, ok := n.call.outputs[fromIO]
		if !ok {
			continue
		}
		after := false
		for _, sibling := range n.parent.children {
			if sibling == n {
				after = true
				continue
			}
			if !after || sibling.cfg.ID != toStep || !sibling.runnable() || sibling.readonly {
				continue
			}
			sibling.call.inputs[toIO] = domain.CloneValue(value)
			if t.markInputsChanged(sibling) {
				changed = append(changed, sibling)
			}
		}
	}
	return changed
}
