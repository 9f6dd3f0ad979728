package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
)

// RegisterBuiltins adds a small set of general purpose functions and validators
// under the "Core:" namespace.
func RegisterBuiltins(r *Registry) {
	r.Register("Core:Echo", func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		return domain.CloneMap(inputs), nil
	})

	r.Register("Core:Sum", func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		var total float64
		for k, v := range inputs {
			n, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("input %q is not a number", k)
			}
			total += n
		}
		return map[string]any{"sum": total}, nil
	})

	r.Register("Core:Fail", func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		msg, _ := inputs["message"].(string)
		if msg == "" {
			msg = "step failed"
		}
		return nil, fmt.Errorf("%s", msg)
	})

	r.RegisterValidator("Core:Required", func(_ context.Context, inputs map[string]any) map[string]domain.ValidationResult {
		res := make(map[string]domain.ValidationResult, len(inputs))
		for k, v := range inputs {
			var errs []string
			if v == nil {
				errs = append(errs, "value is required")
			} else if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				errs = append(errs, "value is required")
			}
			res[k] = domain.NewValidationResult(errs, nil, nil)
		}
		return res
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
