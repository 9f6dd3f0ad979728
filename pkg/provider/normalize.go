package provider

import (
	"fmt"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
)

// Normalize validates a configuration in place and fills defaults.
//
// Item types are inferred when omitted: items with static steps are static
// pipelines, items declaring templates are sequential pipelines, and anything
// else is a step. Steps need a function name, sibling ids must be unique, and
// links must connect two direct children of the pipeline that declares them.
func Normalize(cfg *domain.PipelineConfiguration) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty configuration", domain.ErrConfiguration)
	}
	if cfg.Provider == "" {
		return fmt.Errorf("%w: configuration has no provider name", domain.ErrConfiguration)
	}
	if cfg.Type == "" && len(cfg.Items) == 0 {
		cfg.Type = domain.ItemTypeStatic
	}
	if cfg.Type == domain.ItemTypeStep {
		return fmt.Errorf("%w: pipeline root %q must be a pipeline, not a step", domain.ErrConfiguration, cfg.ID)
	}
	return normalizeItem(&cfg.ItemConfig, cfg.ID)
}

func normalizeItem(item *domain.ItemConfig, path string) error {
	if item.ID == "" {
		return fmt.Errorf("%w: item at %s has no id", domain.ErrConfiguration, path)
	}
	if strings.Contains(item.ID, "/") {
		return fmt.Errorf("%w: item id %q must not contain '/'", domain.ErrConfiguration, item.ID)
	}

	if item.Type == "" {
		switch {
		case len(item.Items) > 0:
			item.Type = domain.ItemTypeSequential
		case len(item.Steps) > 0:
			item.Type = domain.ItemTypeStatic
		default:
			item.Type = domain.ItemTypeStep
		}
	}

	switch item.Type {
	case domain.ItemTypeStep:
		if item.NqName == "" {
			return fmt.Errorf("%w: step %s has no nqName", domain.ErrConfiguration, path)
		}
		if len(item.Steps) > 0 || len(item.Items) > 0 {
			return fmt.Errorf("%w: step %s cannot have children", domain.ErrConfiguration, path)
		}
	case domain.ItemTypeStatic, domain.ItemTypeSequential:
	default:
		return fmt.Errorf("%w: item %s has unknown type %q", domain.ErrConfiguration, path, item.Type)
	}
	if item.Type == domain.ItemTypeStatic && len(item.Items) > 0 {
		return fmt.Errorf("%w: static pipeline %s cannot declare dynamic items", domain.ErrConfiguration, path)
	}

	seen := make(map[string]struct{}, len(item.Steps))
	for i := range item.Steps {
		child := &item.Steps[i]
		if _, dup := seen[child.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q under %s", domain.ErrConfiguration, child.ID, path)
		}
		seen[child.ID] = struct{}{}
		if err := normalizeItem(child, path+"/"+child.ID); err != nil {
			return err
		}
	}

	templates := make(map[string]struct{}, len(item.Items))
	for i := range item.Items {
		tpl := &item.Items[i]
		if _, dup := templates[tpl.ID]; dup {
			return fmt.Errorf("%w: duplicate item template %q under %s", domain.ErrConfiguration, tpl.ID, path)
		}
		templates[tpl.ID] = struct{}{}
		if err := normalizeItem(tpl, path+"/"+tpl.ID); err != nil {
			return err
		}
	}

	for i := range item.Links {
		link := &item.Links[i]
		if link.ID == "" {
			link.ID = link.From + "->" + link.To
		}
		for _, end := range []string{link.From, link.To} {
			stepID, _, ok := SplitLinkEnd(end)
			if !ok {
				return fmt.Errorf("%w: link %q under %s: %q is not <stepId>/<io>", domain.ErrConfiguration, link.ID, path, end)
			}
			if _, known := seen[stepID]; !known {
				return fmt.Errorf("%w: link %q under %s references unknown step %q", domain.ErrConfiguration, link.ID, path, stepID)
			}
		}
	}
	return nil
}

// SplitLinkEnd splits "<stepId>/<io>" into its parts.
func SplitLinkEnd(end string) (stepID, io string, ok bool) {
	stepID, io, ok = strings.Cut(end, "/")
	if !ok || stepID == "" || io == "" {
		return "", "", false
	}
	return stepID, io, true
}
