package driver

import (
	"sync"

	"github.com/aretw0/pipetree/internal/runtime"
	"github.com/aretw0/pipetree/pkg/domain"
)

// Holder owns the current state tree. Replacing the tree and disposing the
// previous one is a single operation.
type Holder struct {
	mu     sync.Mutex
	tree   *runtime.Tree
	closed bool
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the current tree, or nil.
func (h *Holder) Current() *runtime.Tree {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tree
}

// Swap makes next the current tree and then closes the previous one.
// Once the holder is closed, next is closed instead and ErrDriverClosed is returned.
func (h *Holder) Swap(next *runtime.Tree) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		if next != nil {
			next.Close()
		}
		return domain.ErrDriverClosed
	}
	prev := h.tree
	h.tree = next
	h.mu.Unlock()

	if prev != nil && prev != next {
		prev.Close()
	}
	return nil
}

// Close disposes the current tree and rejects further swaps.
func (h *Holder) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	prev := h.tree
	h.tree = nil
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}
