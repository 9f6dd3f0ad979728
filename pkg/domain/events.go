package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCommandDone   EventType = "command_done"
	EventCommandFailed EventType = "command_failed"
	EventStepRun       EventType = "step_run"
	EventTreeSwap      EventType = "tree_swap"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// CommandEvent is emitted once per processed command.
type CommandEvent struct {
	EventBase
	Command  string        `json:"command"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// StepEvent is emitted after a step execution finished, successfully or not.
type StepEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NqName   string        `json:"nq_name"`
	Mock     bool          `json:"mock,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// TreeEvent is emitted when the driver swaps in a new tree.
type TreeEvent struct {
	EventBase
	RootItemID string `json:"root_item_id"`
	Provider   string `json:"provider,omitempty"`
	Nodes      int    `json:"nodes"`
}

// LifecycleHooks defines callbacks for engine observability.
// OnCommandFailed is how failures are reported to the user; the driver keeps draining afterwards.
type LifecycleHooks struct {
	OnCommandDone   func(context.Context, *CommandEvent)
	OnCommandFailed func(context.Context, *CommandEvent)
	OnStepRun       func(context.Context, *StepEvent)
	OnTreeSwap      func(context.Context, *TreeEvent)
}

// ChainHooks merges several hook sets; each callback fans out in order.
func ChainHooks(sets ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range sets {
		out.OnCommandDone = chain(out.OnCommandDone, h.OnCommandDone)
		out.OnCommandFailed = chain(out.OnCommandFailed, h.OnCommandFailed)
		out.OnStepRun = chain(out.OnStepRun, h.OnStepRun)
		out.OnTreeSwap = chain(out.OnTreeSwap, h.OnTreeSwap)
	}
	return out
}

func chain[E any](first, next func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return next
	case next == nil:
		return first
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		next(ctx, e)
	}
}
