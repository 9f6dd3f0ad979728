package domain

import "time"

// RecordKind distinguishes the pipeline wrapper from per-step records.
type RecordKind string

const (
	RecordWrapper RecordKind = "wrapper"
	RecordStep    RecordKind = "step"
)

// Record is the persisted shape of one tree node.
// A saved pipeline is one wrapper record plus one record per descendant,
// each linked to its parent through ParentID.
type Record struct {
	ID       string     `json:"id"`
	ParentID string     `json:"parent_id,omitempty"`
	Kind     RecordKind `json:"kind"`
	Position int        `json:"position"`

	UUID     string   `json:"uuid"`
	ItemID   string   `json:"item_id"`
	Type     ItemType `json:"type"`
	NodeKind NodeKind `json:"node_kind"`
	NqName   string   `json:"nq_name,omitempty"`

	// Provider and Version are only set on wrapper records.
	Provider string `json:"provider,omitempty"`
	Version  *int   `json:"version,omitempty"`

	Inputs   map[string]any `json:"inputs,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Status   RunStatus      `json:"status,omitempty"`
	Error    string         `json:"error,omitempty"`
	RunCount int            `json:"run_count,omitempty"`
	// Completed is true when the outputs reflect the stored inputs.
	Completed bool `json:"completed,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// RecordTree is a record together with its ordered persisted children.
type RecordTree struct {
	Record   Record
	Children []*RecordTree

	// SiblingOrder is set when a subtree is saved under an already persisted
	// parent: the persisted ids of the parent's children in their live order,
	// including Record.ID. Stored siblings are renumbered to match it.
	SiblingOrder []string
}

// Walk visits the tree in pre-order, passing the parent record (nil for the root).
func (t *RecordTree) Walk(fn func(node *RecordTree, parent *RecordTree)) {
	var walk func(node, parent *RecordTree)
	walk = func(node, parent *RecordTree) {
		fn(node, parent)
		for _, child := range node.Children {
			walk(child, node)
		}
	}
	walk(t, nil)
}

// InstanceState is a persisted pipeline as returned by the persistence adapter.
type InstanceState struct {
	Provider string
	Version  *int
	Root     *RecordTree
}
