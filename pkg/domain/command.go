package domain

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Command is one message of the closed protocol accepted by the driver.
type Command interface {
	Event() string
}

// AddDynamicItem inserts a fresh dynamic item under ParentUUID.
type AddDynamicItem struct {
	ParentUUID string `json:"parentUuid" mapstructure:"parentUuid"`
	ItemID     string `json:"itemId" mapstructure:"itemId"`
	Position   int    `json:"position" mapstructure:"position"`
}

// LoadDynamicItem attaches a persisted subtree under ParentUUID.
type LoadDynamicItem struct {
	ParentUUID string `json:"parentUuid" mapstructure:"parentUuid"`
	DBID       string `json:"dbId" mapstructure:"dbId"`
	ItemID     string `json:"itemId" mapstructure:"itemId"`
	Position   int    `json:"position" mapstructure:"position"`
	Readonly   bool   `json:"readonly,omitempty" mapstructure:"readonly"`
}

// SaveDynamicItem persists one node and its descendants.
type SaveDynamicItem struct {
	UUID string `json:"uuid" mapstructure:"uuid"`
}

// RemoveDynamicItem detaches and disposes a node and its descendants.
type RemoveDynamicItem struct {
	UUID string `json:"uuid" mapstructure:"uuid"`
}

// MoveDynamicItem reorders a node among its siblings.
type MoveDynamicItem struct {
	UUID     string `json:"uuid" mapstructure:"uuid"`
	Position int    `json:"position" mapstructure:"position"`
}

// RunStep executes the bound function of a step.
// MockResults and MockDelay replace the real execution and are only honoured in mock mode.
type RunStep struct {
	UUID        string         `json:"uuid" mapstructure:"uuid"`
	MockResults map[string]any `json:"mockResults,omitempty" mapstructure:"mockResults"`
	// MockDelay is expressed in milliseconds on the wire.
	MockDelay int `json:"mockDelay,omitempty" mapstructure:"mockDelay"`
}

// Mock returns the mock run requested by the command, if any.
func (c RunStep) Mock() *MockRun {
	if c.MockResults == nil {
		return nil
	}
	return &MockRun{
		Results: c.MockResults,
		Delay:   time.Duration(c.MockDelay) * time.Millisecond,
	}
}

// MockRun is a deterministic, delay-injected replacement for a step execution.
type MockRun struct {
	Results map[string]any
	Delay   time.Duration
}

// SavePipeline persists the whole tree from its root.
type SavePipeline struct{}

// LoadPipeline replaces the current tree with a persisted pipeline.
type LoadPipeline struct {
	FuncCallID string                 `json:"funcCallId" mapstructure:"funcCallId"`
	Config     *PipelineConfiguration `json:"config,omitempty" mapstructure:"config"`
	Readonly   bool                   `json:"readonly,omitempty" mapstructure:"readonly"`
}

// InitPipeline replaces the current tree with a fresh one built from a provider.
type InitPipeline struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Version  *int   `json:"version,omitempty" mapstructure:"version"`
}

// UpdateInputs merges new input values into a step's call.
type UpdateInputs struct {
	UUID   string         `json:"uuid" mapstructure:"uuid"`
	Inputs map[string]any `json:"inputs" mapstructure:"inputs"`
}

func (AddDynamicItem) Event() string    { return EventAddDynamicItem }
func (LoadDynamicItem) Event() string   { return EventLoadDynamicItem }
func (SaveDynamicItem) Event() string   { return EventSaveDynamicItem }
func (RemoveDynamicItem) Event() string { return EventRemoveDynamicItem }
func (MoveDynamicItem) Event() string   { return EventMoveDynamicItem }
func (RunStep) Event() string           { return EventRunStep }
func (SavePipeline) Event() string      { return EventSavePipeline }
func (LoadPipeline) Event() string      { return EventLoadPipeline }
func (InitPipeline) Event() string      { return EventInitPipeline }
func (UpdateInputs) Event() string      { return EventUpdateInputs }

// RequiresTree reports whether the command needs a current state tree.
func RequiresTree(cmd Command) bool {
	switch cmd.(type) {
	case LoadPipeline, InitPipeline:
		return false
	}
	return true
}

// CommandResult is reported back to the sender once a command completed.
type CommandResult struct {
	Event string `json:"event"`
	// UUID is the node created or affected by the command, when there is one.
	UUID string `json:"uuid,omitempty"`
	// DBID is the persisted id assigned by save commands.
	DBID string `json:"dbId,omitempty"`
	Err  error  `json:"-"`
}

// DecodeCommand turns a generic message (decoded JSON, YAML or tool arguments)
// into a typed command. The "event" key selects the command type.
func DecodeCommand(raw map[string]any) (Command, error) {
	event, _ := raw["event"].(string)
	if event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrProtocol)
	}

	var cmd Command
	var err error
	switch event {
	case EventAddDynamicItem:
		cmd, err = decodeInto[AddDynamicItem](raw)
	case EventLoadDynamicItem:
		cmd, err = decodeInto[LoadDynamicItem](raw)
	case EventSaveDynamicItem:
		cmd, err = decodeInto[SaveDynamicItem](raw)
	case EventRemoveDynamicItem:
		cmd, err = decodeInto[RemoveDynamicItem](raw)
	case EventMoveDynamicItem:
		cmd, err = decodeInto[MoveDynamicItem](raw)
	case EventRunStep:
		cmd, err = decodeInto[RunStep](raw)
	case EventSavePipeline:
		cmd = SavePipeline{}
	case EventLoadPipeline:
		cmd, err = decodeInto[LoadPipeline](raw)
	case EventInitPipeline:
		cmd, err = decodeInto[InitPipeline](raw)
	case EventUpdateInputs:
		cmd, err = decodeInto[UpdateInputs](raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, event)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateCommand(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeInto[T any](raw map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return out, nil
}

// ValidateCommand checks the required payload fields of a command.
func ValidateCommand(cmd Command) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s requires %s", ErrProtocol, cmd.Event(), field)
	}
	switch c := cmd.(type) {
	case AddDynamicItem:
		if c.ParentUUID == "" {
			return missing("parentUuid")
		}
		if c.ItemID == "" {
			return missing("itemId")
		}
	case LoadDynamicItem:
		if c.ParentUUID == "" {
			return missing("parentUuid")
		}
		if c.DBID == "" {
			return missing("dbId")
		}
		if c.ItemID == "" {
			return missing("itemId")
		}
	case SaveDynamicItem:
		if c.UUID == "" {
			return missing("uuid")
		}
	case RemoveDynamicItem:
		if c.UUID == "" {
			return missing("uuid")
		}
	case MoveDynamicItem:
		if c.UUID == "" {
			return missing("uuid")
		}
	case RunStep:
		if c.UUID == "" {
			return missing("uuid")
		}
		if c.MockDelay < 0 {
			return fmt.Errorf("%w: mockDelay must not be negative", ErrProtocol)
		}
	case LoadPipeline:
		if c.FuncCallID == "" {
			return missing("funcCallId")
		}
	case InitPipeline:
		if c.Provider == "" {
			return missing("provider")
		}
	case UpdateInputs:
		if c.UUID == "" {
			return missing("uuid")
		}
	case SavePipeline:
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return nil
}
