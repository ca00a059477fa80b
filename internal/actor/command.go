// Package actor implements C6, the Thread Actor: the single-threaded
// cooperative loop owning a backend driver handle, multiplexing an
// inbound command channel against the backend event stream, and routing
// events to C5 submission states (spec.md §4.6).
package actor

import (
	"encoding/json"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
)

// Command is the sealed inbound-command interface: the spec.md §4.6.2
// variants plus RewireCmd and ResolvePermissionCmd. Each concrete type carries its own one-shot response
// channel; the actor sends a result exactly once per command.
type Command interface {
	isCommand()
}

// LoadCmd loads (or confirms) a session by id.
type LoadCmd struct {
	SessionID string
	Resp      chan LoadResult
}

func (LoadCmd) isCommand() {}

// LoadResult is LoadCmd's response.
type LoadResult struct {
	ConfigOptions []acpwire.ConfigOption
	Err           *acpwire.Error
}

// GetConfigOptionsCmd requests the current config-options projection.
type GetConfigOptionsCmd struct {
	Resp chan []acpwire.ConfigOption
}

func (GetConfigOptionsCmd) isCommand() {}

// PromptCmd submits a new prompt.
type PromptCmd struct {
	Blocks []acpwire.ContentBlock
	Resp   chan PromptResult
}

func (PromptCmd) isCommand() {}

// PromptResult is the prompt-completion signal (spec.md §3, §8).
type PromptResult struct {
	StopReason acpwire.StopReason
	Err        *acpwire.Error
}

// SetModeCmd changes the approval preset.
type SetModeCmd struct {
	Preset string
	Resp   chan SetResult
}

func (SetModeCmd) isCommand() {}

// SetModelCmd changes model/reasoning-effort.
type SetModelCmd struct {
	Model   string
	Effort  string
	Resp    chan SetResult
}

func (SetModelCmd) isCommand() {}

// SetConfigOptionCmd changes an arbitrary config option by id.
type SetConfigOptionCmd struct {
	ID    string
	Value string
	Resp  chan SetResult
}

func (SetConfigOptionCmd) isCommand() {}

// SetResult is the common response for the three set-* commands.
type SetResult struct {
	Err *acpwire.Error
}

// CancelCmd interrupts the active submission(s).
type CancelCmd struct {
	Resp chan struct{}
}

func (CancelCmd) isCommand() {}

// RewireCmd points a running Actor at a new Driver/child session id after
// a backend switch, processed inside the actor's own loop so Driver and
// SessionID are never mutated from outside it (spec.md §4.6, §5).
type RewireCmd struct {
	Driver    backend.Driver
	SessionID string
	Resp      chan struct{}
}

func (RewireCmd) isCommand() {}

// ResolvePermissionCmd resolves a pending exec-approval, apply-patch
// approval, or MCP elicitation request chosen by the client.
type ResolvePermissionCmd struct {
	Kind      string // exec | patch | elicitation
	CallID    string
	OptionID  string
	Cancelled bool
	Resp      chan struct{}
}

func (ResolvePermissionCmd) isCommand() {}

// ReplayHistoryCmd replays a rollout's history as client notifications.
type ReplayHistoryCmd struct {
	Items []RolloutItem
	Resp  chan struct{}
}

func (ReplayHistoryCmd) isCommand() {}

// RolloutItem is one entry of a replayed rollout (spec.md §4.6.2).
type RolloutItem struct {
	Kind       string // user_message | assistant_message | reasoning | tool_call
	Text       string
	ToolName   string
	ToolCallID string
	RawInput   json.RawMessage
	PatchFiles []PatchFileRef
}

// PatchFileRef names one file of a replayed apply-patch tool call.
type PatchFileRef struct {
	Path string
	Diff string
}
