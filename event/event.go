// Package event defines the backend event vocabulary the Thread Actor
// (internal/actor) and its Submission state machines (internal/submission)
// consume. Event is a flat struct in the teacher's Message idiom
// (agentrun.Message): one discriminated-by-Kind type with optional,
// kind-specific fields, rather than an interface-per-kind hierarchy.
package event

import (
	"encoding/json"
	"time"
)

// Kind discriminates the backend event stream. The catalog mirrors the
// roughly forty event kinds spec.md §2 attributes to the embedded
// backend; Submission state machines dispatch on Kind family (see
// IsReasoningDelta and IsWebSearch below) rather than exhaustively
// switching on every value, the same way the teacher's update.go
// dispatches its own wire discriminator through a small map.
type Kind string

const (
	KindAssistantMessageDelta Kind = "assistant_message_delta"
	KindAssistantMessageFinal Kind = "assistant_message_final"
	KindReasoningDelta        Kind = "reasoning_delta"
	KindReasoningSummaryDelta Kind = "reasoning_summary_delta"
	KindReasoningFinal        Kind = "reasoning_final"
	KindReasoningSectionBreak Kind = "reasoning_section_break"
	KindUserMessageChunk      Kind = "user_message_chunk"

	KindPlanUpdate Kind = "plan_update"

	KindWebSearchBegin Kind = "web_search_begin"
	KindWebSearchEnd   Kind = "web_search_end"

	KindExecApprovalRequest Kind = "exec_approval_request"
	KindExecBegin           Kind = "exec_begin"
	KindExecDelta           Kind = "exec_delta"
	KindExecEnd             Kind = "exec_end"

	KindMcpToolCallBegin Kind = "mcp_tool_call_begin"
	KindMcpToolCallEnd   Kind = "mcp_tool_call_end"

	KindApplyPatchApprovalRequest Kind = "apply_patch_approval_request"
	KindPatchApplyBegin           Kind = "patch_apply_begin"
	KindPatchApplyEnd             Kind = "patch_apply_end"

	KindViewImageToolCall Kind = "view_image_tool_call"

	KindElicitationRequest Kind = "elicitation_request"

	KindReviewModeEnter Kind = "review_mode_enter"
	KindReviewModeExit  Kind = "review_mode_exit"

	KindTurnComplete     Kind = "turn_complete"
	KindTurnAborted      Kind = "turn_aborted"
	KindShutdownComplete Kind = "shutdown_complete"

	KindError       Kind = "error"
	KindStreamError Kind = "stream_error"

	KindTokenCount Kind = "token_count"
	KindTurnDiff   Kind = "turn_diff"

	KindBackgroundEvent             Kind = "background_event"
	KindRawResponseItem             Kind = "raw_response_item"
	KindCollaborationAgentLifecycle Kind = "collaboration_agent_lifecycle"

	KindContextCompacted Kind = "context_compacted"

	KindListMcpToolsResponse     Kind = "list_mcp_tools_response"
	KindListSkillsResponse       Kind = "list_skills_response"
	KindListCustomPromptsResponse Kind = "list_custom_prompts_response"
	KindListSessionsResponse     Kind = "list_sessions_response"
)

// IsReasoningDelta reports whether k is either of the two reasoning delta
// stream kinds (spec.md §4.5.1, "reasoning delta (either of two stream
// kinds)").
func IsReasoningDelta(k Kind) bool {
	return k == KindReasoningDelta || k == KindReasoningSummaryDelta
}

// IsWebSearch reports whether k belongs to the web-search begin/end pair.
func IsWebSearch(k Kind) bool {
	return k == KindWebSearchBegin || k == KindWebSearchEnd
}

// ParsedCommand is the backend's structured breakdown of a shell command,
// used to compute a human-readable exec tool-call title and locations.
type ParsedCommand struct {
	Program      string
	Args         []string
	Cwd          string
	TerminalHint bool // true when the command's intent is a long-lived terminal pane
	FileExt      string
}

// PlanEntry is one step of a backend plan update.
type PlanEntry struct {
	Step   string
	Status string // pending | in_progress | completed
}

// ApprovalOption is one choice offered in a permission request.
type ApprovalOption struct {
	ID   string
	Kind string // allow-always | allow-once | reject-once | accept | decline-but-continue | cancel
}

// PatchFileChange is one file touched by a proposed apply-patch.
type PatchFileChange struct {
	Path    string
	Diff    string
	Kind    string // add | modify | delete
}

// ContentBlock is a generic content element returned by an MCP tool call
// or a review finding.
type ContentBlock struct {
	Type string
	Text string
	URI  string
}

// ReviewFinding is one item in a review-mode-exit summary.
type ReviewFinding struct {
	Title       string
	Description string
	Location    string
}

// TokenUsage carries the evidence backing a token_count event.
type TokenUsage struct {
	TotalTokens   int
	ContextWindow int
}

// McpToolInfo, SkillInfo, CustomPromptInfo and SessionInfo back the
// OneShot/CustomPrompts listing responses (C5.4.3/4.5.4).
type McpToolInfo struct {
	Server string
	Tool   string
	Desc   string
}

type SkillInfo struct {
	Name    string
	Scope   string
	Enabled bool
	Summary string
}

type CustomPromptInfo struct {
	Name    string
	Content string
}

type SessionInfo struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// Event is a single item from a backend's event stream. Only the fields
// relevant to Kind are populated; the rest are zero. This mirrors the
// teacher's agentrun.Message: a flat struct rather than a sum type, kept
// flat because Go has no ergonomic sum types and the Submission state
// machines already dispatch on Kind.
type Event struct {
	Kind         Kind
	SubmissionID string
	Timestamp    time.Time

	// Content chunks (assistant/reasoning/user deltas and finals).
	Text string

	// Tool/call correlation (exec, mcp, patch, web-search, view-image).
	CallID    string
	Title     string
	Status    string // in_progress | completed | failed
	ToolKind  string // read | edit | fetch | execute | other
	Locations []string
	RawInput  json.RawMessage
	RawOutput json.RawMessage
	ExitCode  int
	Command   *ParsedCommand
	Query     string // web-search query (end event)

	// Plan update.
	Plan        []PlanEntry
	Explanation string

	// Permission / elicitation requests.
	ApprovalOptions []ApprovalOption
	PatchFiles      []PatchFileChange

	// MCP tool call identity.
	Server string
	Tool   string
	Content []ContentBlock

	// Review mode.
	ReviewFindings []ReviewFinding

	// Turn completion / errors.
	StopReason string
	ErrMessage string
	ErrInfo    map[string]any

	// Token accounting.
	Usage *TokenUsage

	// Listing responses.
	McpTools      []McpToolInfo
	Skills        []SkillInfo
	CustomPrompts []CustomPromptInfo
	Sessions      []SessionInfo

	// Raw is the unparsed backend payload, carried for canonical logging.
	Raw json.RawMessage
}
