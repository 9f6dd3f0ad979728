package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
)

const maskedValue = "***"

type piiMiddleware struct {
	next     ports.RecordStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks input and output values
// whose keys match any of the patterns before they reach the store.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid mask pattern %q: %v", domain.ErrConfiguration, p, err)
		}
		patterns[i] = re
	}
	return func(next ports.RecordStore) ports.RecordStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, rec *domain.Record) error {
	// Mask a copy; the caller's record backs the live tree.
	cloned := rec.Clone()
	maskMap(cloned.Inputs, m.patterns)
	maskMap(cloned.Outputs, m.patterns)
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.Record, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Children(ctx context.Context, parentID string) ([]*domain.Record, error) {
	return m.next.Children(ctx, parentID)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = maskedValue
				masked = true
				break
			}
		}
		if masked {
			continue
		}

		switch t := v.(type) {
		case map[string]any:
			maskMap(t, patterns)
		case []any:
			for _, item := range t {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
