package domain

// CloneValue deep-copies JSON-like values (maps, slices and scalars).
// Other values are returned as-is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// CloneMap deep-copies a JSON-like map. A nil map stays nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Inputs = CloneMap(r.Inputs)
	c.Outputs = CloneMap(r.Outputs)
	if r.Version != nil {
		v := *r.Version
		c.Version = &v
	}
	return &c
}

// Clone returns a deep copy of the record tree.
func (t *RecordTree) Clone() *RecordTree {
	c := &RecordTree{Record: *t.Record.Clone()}
	if t.SiblingOrder != nil {
		c.SiblingOrder = append([]string(nil), t.SiblingOrder...)
	}
	for _, child := range t.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

// Clone returns a deep copy of the item configuration.
func (c *ItemConfig) Clone() *ItemConfig {
	out := *c
	out.Inputs = CloneMap(c.Inputs)
	if c.Validators != nil {
		out.Validators = append([]string(nil), c.Validators...)
	}
	if c.Links != nil {
		out.Links = append([]LinkConfig(nil), c.Links...)
	}
	out.Steps = cloneItems(c.Steps)
	out.Items = cloneItems(c.Items)
	return &out
}

func cloneItems(items []ItemConfig) []ItemConfig {
	if items == nil {
		return nil
	}
	out := make([]ItemConfig, len(items))
	for i := range items {
		out[i] = *items[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the pipeline configuration.
func (c *PipelineConfiguration) Clone() *PipelineConfiguration {
	out := &PipelineConfiguration{
		Provider:   c.Provider,
		ItemConfig: *c.ItemConfig.Clone(),
	}
	if c.Version != nil {
		v := *c.Version
		out.Version = &v
	}
	return out
}
