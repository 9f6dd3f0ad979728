package domain

// NodeKind distinguishes nodes fixed by configuration from runtime items.
type NodeKind string

const (
	KindStatic  NodeKind = "static"
	KindDynamic NodeKind = "dynamic"
)

// ConsistencyState tells whether a step's outputs still reflect its inputs.
type ConsistencyState string

const (
	StateConsistent   ConsistencyState = "consistent"
	StateInconsistent ConsistencyState = "inconsistent"
	StatePending      ConsistencyState = "pending"
)

// ConsistencyInfo is the per-step consistency projection.
type ConsistencyInfo struct {
	State ConsistencyState `json:"state"`
	// Enabled is false while an earlier step has not produced a consistent result.
	Enabled bool `json:"enabled"`
	// Readonly steps are shown but cannot be edited or run.
	Readonly bool `json:"readonly,omitempty"`
}

// RunStatus is the lifecycle of a bound call.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// CallState is the per-step run-state projection.
type CallState struct {
	Status     RunStatus `json:"status"`
	IsOutdated bool      `json:"isOutdated"`
	RunCount   int       `json:"runCount"`
	Error      string    `json:"error,omitempty"`
}

// Advice is one validation message.
type Advice struct {
	Description string `json:"description"`
}

// ValidationResult is what a validator reports for one parameter.
type ValidationResult struct {
	Errors        []Advice `json:"errors"`
	Warnings      []Advice `json:"warnings"`
	Notifications []Advice `json:"notifications"`
}

// NewValidationResult builds a result from plain messages.
func NewValidationResult(errs, warnings, notifications []string) ValidationResult {
	toAdvice := func(msgs []string) []Advice {
		res := make([]Advice, 0, len(msgs))
		for _, m := range msgs {
			res = append(res, Advice{Description: m})
		}
		return res
	}
	return ValidationResult{
		Errors:        toAdvice(errs),
		Warnings:      toAdvice(warnings),
		Notifications: toAdvice(notifications),
	}
}

// HasErrors reports whether any blocking validation error is present.
func (v ValidationResult) HasErrors() bool {
	return len(v.Errors) > 0
}

// PipelineState is an immutable snapshot of one tree node and its descendants.
type PipelineState struct {
	UUID         string           `json:"uuid"`
	ItemID       string           `json:"itemId"`
	Type         ItemType         `json:"type"`
	Kind         NodeKind         `json:"kind"`
	NqName       string           `json:"nqName,omitempty"`
	FriendlyName string           `json:"friendlyName,omitempty"`
	DBID         string           `json:"dbId,omitempty"`
	Readonly     bool             `json:"readonly,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	Version      *int             `json:"version,omitempty"`
	Inputs       map[string]any   `json:"inputs,omitempty"`
	Outputs      map[string]any   `json:"outputs,omitempty"`
	Children     []*PipelineState `json:"children,omitempty"`
}

// Walk visits the snapshot in pre-order. Returning false stops descending into that node.
func (s *PipelineState) Walk(fn func(node *PipelineState, depth int) bool) {
	var walk func(node *PipelineState, depth int)
	walk = func(node *PipelineState, depth int) {
		if !fn(node, depth) {
			return
		}
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	walk(s, 0)
}

// Projections is the record republished by the driver after every state change.
// All four maps are derived from one traversal of the same tree.
type Projections struct {
	State       *PipelineState                         `json:"state"`
	Consistency map[string]ConsistencyInfo             `json:"consistency"`
	Validations map[string]map[string]ValidationResult `json:"validations"`
	CallStates  map[string]CallState                   `json:"callStates"`
}

// EmptyProjections is what observers see when no tree is current.
func EmptyProjections() Projections {
	return Projections{
		Consistency: map[string]ConsistencyInfo{},
		Validations: map[string]map[string]ValidationResult{},
		CallStates:  map[string]CallState{},
	}
}
