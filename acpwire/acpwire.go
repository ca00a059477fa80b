// Package acpwire holds the Agent Protocol wire shapes and error taxonomy
// that C10's request handler and C6's notification emission speak in.
// The framed JSON-RPC transport itself is an out-of-scope collaborator
// (spec.md §1); this package only fixes the message shapes so the rest
// of the module has something concrete to compile and test against.
package acpwire

import "fmt"

// ErrorCode is the closed error taxonomy of spec.md §7.
type ErrorCode string

const (
	ErrInvalidParams    ErrorCode = "invalid_params"
	ErrResourceNotFound ErrorCode = "resource_not_found"
	ErrInternal         ErrorCode = "internal_error"
	ErrAuthRequired     ErrorCode = "auth_required"
	ErrBackendTurn      ErrorCode = "backend_turn_error"
)

// Error is the typed error every request handler and submission
// completion signal returns, modeled on the teacher's ExitError/RPCError
// pair: a code, a human message, and an optional structured Data payload
// surfaced verbatim in the wire response's "data" field.
type Error struct {
	Code    ErrorCode
	Message string
	Data    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("acpwire: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("acpwire: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error with no Data and no wrapped cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Internalf wraps cause as an internal-error with a data field carrying
// the underlying message, per spec.md §7 item 3.
func Internalf(cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Code:    ErrInternal,
		Message: msg,
		Data:    map[string]any{"underlying": cause.Error()},
		Cause:   cause,
	}
}

// BackendTurn wraps an in-turn backend error per spec.md §7 item 5: it is
// delivered through the submission's completion signal, never through the
// wire error path directly.
func BackendTurn(message string, codexErrorInfo map[string]any) *Error {
	return &Error{
		Code:    ErrBackendTurn,
		Message: message,
		Data:    map[string]any{"codex_error_info": codexErrorInfo},
	}
}

// StopReason is the terminal outcome of a submission (spec.md §3,
// Submission; §8's "exactly one subsequent client-visible terminal
// outcome" property).
type StopReason string

const (
	StopEndTurn    StopReason = "end_turn"
	StopCancelled  StopReason = "cancelled"
	StopRefusal    StopReason = "refusal"
	StopMaxTurns   StopReason = "max_turn_requests"
)

// UpdateKind discriminates the outbound session/update notification
// variants of spec.md §6.1.
type UpdateKind string

const (
	UpdateAssistantMessageChunk UpdateKind = "assistant_message_chunk"
	UpdateUserMessageChunk      UpdateKind = "user_message_chunk"
	UpdateAgentThoughtChunk     UpdateKind = "agent_thought_chunk"
	UpdatePlan                  UpdateKind = "plan"
	UpdateToolCall              UpdateKind = "tool_call"
	UpdateToolCallUpdate        UpdateKind = "tool_call_update"
	UpdateConfigOptionUpdate    UpdateKind = "config_option_update"
	UpdateAvailableCommands     UpdateKind = "available_commands_update"
)

// ContentBlock mirrors the Agent Protocol's prompt content-block shapes
// consumed by C3 (spec.md §4.3).
type ContentBlock struct {
	Type string // text | image | audio | resource_link | resource
	Text string
	URI  string
	Name string
	Mime string
	Data string // base64 payload for image/audio/embedded resource
}

// PlanEntryUpdate is one entry of an outbound plan notification.
type PlanEntryUpdate struct {
	Step     string
	Status   string // pending | in_progress | completed
	Priority string // always "medium" per spec.md §4.5.1
}

// ToolCallLocation names a file/line a tool call touched, used to build
// the "locations" field of tool-call notifications.
type ToolCallLocation struct {
	Path string
	Line int
}

// ToolCallUpdate is the payload of both UpdateToolCall and
// UpdateToolCallUpdate. The former creates the call, usually with
// Status=in_progress; view-image and replayed tool calls are created
// already completed.
type ToolCallUpdate struct {
	ToolCallID string
	Title      string
	Kind       string // read | edit | execute | fetch | other
	Status     string // in_progress | completed | failed
	Content    []ContentBlock
	Locations  []ToolCallLocation
	RawInput   []byte
	RawOutput  []byte
	Meta       map[string]any // carries terminal_output / terminal_exit metadata updates
}

// PermissionOption is one choice offered by a permission request.
type PermissionOption struct {
	OptionID string
	Kind     string // allow_always | allow_once | reject_once | accept | decline_but_continue | cancel
	Name     string
}

// PermissionRequest is emitted for exec-approval, apply-patch-approval,
// and MCP elicitation events (spec.md §4.5.1).
type PermissionRequest struct {
	ToolCallID string
	Title      string
	Content    []ContentBlock
	Options    []PermissionOption
}

// ConfigOption is one entry of the config-options projection (C6.4.5).
type ConfigOption struct {
	ID      string
	Label   string
	Kind    string // select | toggle
	Value   string
	Choices []string
}

// Update is the outbound session notification envelope. Exactly one of
// the kind-specific fields is populated, selected by Kind.
type Update struct {
	SessionID string
	Kind      UpdateKind

	Text string // assistant/user/thought chunk text

	Plan        []PlanEntryUpdate
	Explanation string

	ToolCall *ToolCallUpdate

	ConfigOptions []ConfigOption

	Commands []CommandSpec
}

// CommandSpec is one entry of the available-commands-update list
// (C6.4.4's built-in catalog plus discovered custom prompts).
type CommandSpec struct {
	Name        string
	Description string
	InputHint   string
}

// PermissionReply is what the client returns in answer to a
// PermissionRequest.
type PermissionReply struct {
	ToolCallID string
	OptionID   string
	Cancelled  bool
}

// ClientCapabilities is the capability set the client advertises at
// initialize time. C5's exec-begin handling consults LiveTerminal to
// decide whether to stream terminal_output/terminal_exit metadata
// updates instead of buffering (spec.md §4.5.1).
type ClientCapabilities struct {
	LiveTerminal bool
}

// AgentCapabilities is the fixed capability set C10 returns from
// initialize (spec.md §4.10): embedded-context and image content,
// MCP-over-HTTP, and session listing are always true; LoadSession is
// true only when the active backend advertises supports_load_session.
type AgentCapabilities struct {
	EmbeddedContext bool
	Image           bool
	McpOverHTTP     bool
	SessionListing  bool
	LoadSession     bool
}

// FixedAgentCapabilities returns the always-true portion of
// AgentCapabilities with LoadSession set per loadSessionSupported.
func FixedAgentCapabilities(loadSessionSupported bool) AgentCapabilities {
	return AgentCapabilities{
		EmbeddedContext: true,
		Image:           true,
		McpOverHTTP:     true,
		SessionListing:  true,
		LoadSession:     loadSessionSupported,
	}
}
