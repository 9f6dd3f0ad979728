package runtime

import (
	"context"

	"github.com/aretw0/pipetree/pkg/domain"
)

// validatorErrorKey holds results of validators that failed to run.
const validatorErrorKey = "_validators"

// validate runs the configured validators of each step against its current
// inputs. Failures are reported as validation errors, never returned.
func (t *Tree) validate(ctx context.Context, steps ...*node) {
	for _, n := range steps {
		t.mu.RLock()
		if t.closed || !n.runnable() || len(n.cfg.Validators) == 0 {
			t.mu.RUnlock()
			continue
		}
		names := n.cfg.Validators
		inputs := domain.CloneMap(n.call.inputs)
		t.mu.RUnlock()

		results := make(map[string]domain.ValidationResult)
		for _, name := range names {
			if t.validator == nil {
				addAdvice(results, validatorErrorKey, domain.NewValidationResult([]string{"no validator available for " + name}, nil, nil))
				continue
			}
			res, err := t.validator.Validate(ctx, name, inputs)
			if err != nil {
				t.logger.Warn("Validator failed", "validator", name, "step", n.cfg.ID, "err", err)
				addAdvice(results, validatorErrorKey, domain.NewValidationResult([]string{name + ": " + err.Error()}, nil, nil))
				continue
			}
			for param, r := range res {
				addAdvice(results, param, r)
			}
		}

		t.mu.Lock()
		if _, live := t.index[n.uuid]; live && !t.closed {
			n.validations = results
		}
		t.mu.Unlock()
	}
}

func addAdvice(results map[string]domain.ValidationResult, param string, r domain.ValidationResult) {
	cur, ok := results[param]
	if !ok {
		cur = domain.NewValidationResult(nil, nil, nil)
	}
	cur.Errors = append(cur.Errors, r.Errors...)
	cur.Warnings = append(cur.Warnings, r.Warnings...)
	cur.Notifications = append(cur.Notifications, r.Notifications...)
	results[param] = cur
}
