package domain

// ItemType defines how a configured item behaves inside the tree.
type ItemType string

const (
	// ItemTypeStep is a leaf bound to one function invocation.
	ItemTypeStep ItemType = "step"
	// ItemTypeStatic is a pipeline whose children are fixed by configuration.
	ItemTypeStatic ItemType = "static"
	// ItemTypeSequential is a pipeline whose children are dynamic items added at runtime.
	ItemTypeSequential ItemType = "sequential"
)

// ItemConfig describes one configured item: a step or a nested pipeline.
type ItemConfig struct {
	ID           string         `json:"id" yaml:"id" mapstructure:"id"`
	Type         ItemType       `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	NqName       string         `json:"nqName,omitempty" yaml:"nqName,omitempty" mapstructure:"nqName"`
	FriendlyName string         `json:"friendlyName,omitempty" yaml:"friendlyName,omitempty" mapstructure:"friendlyName"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Inputs       map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty" mapstructure:"inputs"`

	// Validators are names of registered validators run against the step inputs.
	Validators []string `json:"validators,omitempty" yaml:"validators,omitempty" mapstructure:"validators"`

	// Steps are the static children (static pipelines) or the initial items (sequential pipelines).
	Steps []ItemConfig `json:"steps,omitempty" yaml:"steps,omitempty" mapstructure:"steps"`

	// Items are the templates a sequential pipeline accepts as dynamic children.
	Items []ItemConfig `json:"items,omitempty" yaml:"items,omitempty" mapstructure:"items"`

	// Links copy outputs of one direct child into inputs of another after a run.
	Links []LinkConfig `json:"links,omitempty" yaml:"links,omitempty" mapstructure:"links"`
}

// IsRunnable reports whether the item is bound to a function.
func (c *ItemConfig) IsRunnable() bool {
	return c.Type == ItemTypeStep
}

// FindItem returns the template for a dynamic child with the given id.
func (c *ItemConfig) FindItem(id string) (*ItemConfig, bool) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// FindStep returns the static child configuration with the given id.
func (c *ItemConfig) FindStep(id string) (*ItemConfig, bool) {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

// LinkConfig wires an output of one sibling to an input of another.
// Both ends use the "<stepId>/<ioName>" form.
type LinkConfig struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	From string `json:"from" yaml:"from" mapstructure:"from"`
	To   string `json:"to" yaml:"to" mapstructure:"to"`
}

// PipelineConfiguration is the structural configuration returned by a provider.
type PipelineConfiguration struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Version  *int   `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`

	ItemConfig `yaml:",inline" mapstructure:",squash"`
}
