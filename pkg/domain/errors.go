package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap one of these, so callers can match
// either the precise condition or its class with errors.Is.
var (
	// ErrProtocol is returned for malformed or unknown commands.
	ErrProtocol = errors.New("protocol error")
	// ErrPrecondition is returned when a command cannot run against the current tree.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConfiguration is returned when a pipeline configuration cannot be resolved or is invalid.
	ErrConfiguration = errors.New("configuration error")
)

var (
	// ErrNoTree is returned when a command requires a state tree and none is current.
	ErrNoTree = fmt.Errorf("%w: no state tree", ErrPrecondition)
	// ErrNotFound is returned when a node uuid or persisted id does not resolve.
	ErrNotFound = fmt.Errorf("%w: not found", ErrPrecondition)
	// ErrInvalidPosition is returned when a move targets a position outside the sibling list.
	ErrInvalidPosition = fmt.Errorf("%w: invalid position", ErrPrecondition)
	// ErrSchemaMismatch is returned when a persisted subtree does not match the expected item.
	ErrSchemaMismatch = fmt.Errorf("%w: schema mismatch", ErrPrecondition)
	// ErrUnknownItem is returned when an item id is not allowed under the target parent.
	ErrUnknownItem = fmt.Errorf("%w: unknown item", ErrPrecondition)
	// ErrStaticNode is returned when a structural edit targets a node fixed by configuration.
	ErrStaticNode = fmt.Errorf("%w: node is static", ErrPrecondition)
	// ErrReadonly is returned when a mutation targets a readonly node.
	ErrReadonly = fmt.Errorf("%w: node is readonly", ErrPrecondition)
	// ErrStepDisabled is returned when running a step that is not yet enabled.
	ErrStepDisabled = fmt.Errorf("%w: step is disabled", ErrPrecondition)
	// ErrNotRunnable is returned when running a node that has no bound function.
	ErrNotRunnable = fmt.Errorf("%w: node is not runnable", ErrPrecondition)
	// ErrTreeClosed is returned for any operation on a disposed tree.
	ErrTreeClosed = fmt.Errorf("%w: state tree is closed", ErrPrecondition)
	// ErrDriverClosed is returned for commands sent after the driver was closed.
	ErrDriverClosed = fmt.Errorf("%w: driver is closed", ErrPrecondition)
)

var (
	// ErrMissingProvider is returned when persisted state carries no provider reference.
	ErrMissingProvider = fmt.Errorf("%w: missing provider", ErrConfiguration)
	// ErrProviderNotFound is returned when a provider name (or version) is not registered.
	ErrProviderNotFound = fmt.Errorf("%w: provider not found", ErrConfiguration)
	// ErrFunctionNotFound is returned when a step references an unregistered function.
	ErrFunctionNotFound = fmt.Errorf("%w: function not found", ErrConfiguration)
)

// ErrUnknownCommand is returned when a command event is not part of the protocol.
var ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrProtocol)

// ErrRecordNotFound is returned by record stores when an id cannot be found.
var ErrRecordNotFound = errors.New("record not found")
