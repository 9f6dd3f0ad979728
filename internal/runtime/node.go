package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aretw0/pipetree/pkg/domain"
)

// node is one entry of the tree. Containers (static and sequential pipelines)
// have no call; steps have exactly one.
type node struct {
	uuid     string
	cfg      *domain.ItemConfig
	kind     domain.NodeKind
	parent   *node
	children []*node
	dbID     string
	readonly bool

	call        *call
	state       domain.ConsistencyState
	enabled     bool
	validations map[string]domain.ValidationResult
}

// call is the binding of a step to its function.
type call struct {
	inputs   map[string]any
	outputs  map[string]any
	status   domain.RunStatus
	err      string
	runCount int
	// inputsFP fingerprints inputs as last observed, so no-op edits are ignored.
	inputsFP string
}

func newCall(inputs map[string]any) *call {
	c := &call{
		inputs: domain.CloneMap(inputs),
		status: domain.RunIdle,
	}
	if c.inputs == nil {
		c.inputs = map[string]any{}
	}
	c.inputsFP = fingerprint(c.inputs)
	return c
}

func (n *node) runnable() bool {
	return n.call != nil
}

// hasOutput reports whether the step ever produced a result.
func (n *node) hasOutput() bool {
	return n.call != nil && n.call.outputs != nil
}

func (n *node) index() int {
	if n.parent == nil {
		return 0
	}
	for i, sibling := range n.parent.children {
		if sibling == n {
			return i
		}
	}
	return -1
}

// walk visits n and its descendants in pre-order.
func (n *node) walk(fn func(*node)) {
	fn(n)
	for _, child := range n.children {
		child.walk(fn)
	}
}

func (n *node) label() string {
	if n.cfg.FriendlyName != "" {
		return n.cfg.FriendlyName
	}
	return n.cfg.ID
}

// fingerprint hashes the canonical JSON encoding of v. encoding/json sorts map
// keys, so equal nested content always yields the same digest.
func fingerprint(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
