// Package backend defines the Driver contract that internal/actor and
// internal/router submit operations through, and the closed set of
// backend kinds (spec.md §3, original_source/backend.rs's BackendKind).
// Concrete drivers live in the backend/codex, backend/cliexec,
// backend/claude and backend/gemini subpackages; this package holds only
// the shared vocabulary so none of those subpackages import each other.
package backend

import (
	"context"
	"fmt"

	"github.com/haegyung/xsfire-camp/event"
)

// Kind is the closed set of backend identities. It is a string type, not
// an int enum, because it round-trips through the Agent Protocol wire
// ("backend" config option values) and through process environment
// variables (XSFIRE_DEFAULT_BACKEND) verbatim.
type Kind string

const (
	Codex      Kind = "codex"
	ClaudeCode Kind = "claude-code"
	Gemini     Kind = "gemini"
	Multi      Kind = "multi"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Parse resolves a backend kind from any of its accepted wire aliases.
// Grounded on original_source/backend.rs: "claude-code"/"claude" both
// resolve to ClaudeCode, "gemini"/"gemini-cli" both resolve to Gemini,
// "multi"/"all" both resolve to Multi.
func Parse(s string) (Kind, error) {
	switch s {
	case "codex":
		return Codex, nil
	case "claude-code", "claude":
		return ClaudeCode, nil
	case "gemini", "gemini-cli":
		return Gemini, nil
	case "multi", "all":
		return Multi, nil
	default:
		return "", fmt.Errorf("backend: unknown backend kind %q", s)
	}
}

// Routable reports whether k names a concrete driver (as opposed to the
// virtual Multi kind, which the router resolves to a concrete kind
// before ever reaching a Driver).
func (k Kind) Routable() bool {
	return k == Codex || k == ClaudeCode || k == Gemini
}

// SubmissionID is the opaque id a Driver mints for a submitted Operation;
// backend events that correlate to that submission carry it back in
// event.Event.SubmissionID.
type SubmissionID string

// OpKind discriminates Operation the way event.Kind discriminates Event.
type OpKind string

const (
	OpUserInput            OpKind = "user_input"
	OpInterrupt            OpKind = "interrupt"
	OpCompact              OpKind = "compact"
	OpUndo                 OpKind = "undo"
	OpReview               OpKind = "review"
	OpOverrideTurnContext  OpKind = "override_turn_context"
	OpListMcpTools         OpKind = "list_mcp_tools"
	OpListSkills           OpKind = "list_skills"
	OpListCustomPrompts    OpKind = "list_custom_prompts"
	OpExecApprovalResolve  OpKind = "exec_approval_resolve"
	OpPatchApprovalResolve OpKind = "patch_approval_resolve"
	OpElicitationResolve   OpKind = "elicitation_resolve"
)

// InputItem is one piece of a user_input Operation: either plain text or
// an attached resource (image, file reference), matching spec.md §4.4's
// prompt content-block shapes after C3 translation has run.
type InputItem struct {
	Text string
	URI  string
	Kind string // text | image | resource
}

// ReviewTarget names what a review Operation scopes to (spec.md §4.6.3).
type ReviewTarget struct {
	Kind         string // uncommitted | custom | commit | branch
	Instructions string // free-form text, populated when Kind is "custom"
	Commit       string
	Branch       string
}

// TurnContextOverride carries the fields a set_session_config_option or
// equivalent override can change mid-turn (spec.md §4.6.2).
type TurnContextOverride struct {
	Model           *string
	ReasoningEffort *string
	ApprovalPreset  *string
	Personality     *string
}

// Operation is what internal/actor and internal/router submit to a
// Driver. Like event.Event it is a flat, Kind-discriminated struct
// rather than a sum type — the teacher's own Process/Message pairing
// follows the same shape (one submission type, one event type).
type Operation struct {
	Kind OpKind

	Items  []InputItem
	Review *ReviewTarget
	Turn   *TurnContextOverride

	ForceReload bool // list_skills: bypass the manifest cache

	// Resolution fields, populated when Kind is one of the *Resolve kinds.
	CallID       string
	ResolutionID string // the chosen ApprovalOption.ID / elicitation option
}

// Driver is the black-box contract spec.md §2 attributes to an embedded
// backend: submit an Operation and get back a SubmissionID, and consume
// an asynchronous stream of Events. Concrete drivers additionally
// implement whichever of the capability interfaces below they support;
// internal/router and internal/actor probe for these via type assertion,
// the same pattern the teacher's engine/cli package uses for
// Spawner/Parser/Resumer/Streamer.
type Driver interface {
	// Submit enqueues op against the child session sessionID and returns
	// the id correlating future Events.
	Submit(ctx context.Context, sessionID string, op Operation) (SubmissionID, error)

	// Events returns the driver's single event stream, shared by every
	// session the driver is currently handling; callers dispatch on
	// event.Event.SubmissionID.
	Events() <-chan event.Event

	// Close releases any subprocess or connection the driver holds.
	Close() error
}

// SessionSpawner is implemented by drivers that support creating a new
// child session (spec.md §4.9's new_session dispatch).
type SessionSpawner interface {
	NewSession(ctx context.Context, cwd string, mcpServers []string, meta []byte) (string, error)
}

// SessionLoader is implemented by backend/codex and by cliexec.Engine
// (which fails for backends without Resumable); the router loads
// sessions through codex only.
type SessionLoader interface {
	LoadSession(ctx context.Context, sessionID string) error
}

// Authenticator is implemented by drivers exposing Agent-Protocol auth
// methods; the router aggregates AuthMethods() across every backend and
// dispatches Authenticate by method id (spec.md §4.9).
type Authenticator interface {
	AuthMethods() []string
	Authenticate(ctx context.Context, methodID string) error
}

// Factory constructs a Driver for a given backend kind. internal/router
// holds one Factory per routable Kind, invoked lazily on first use
// (ensure_backend_session, spec.md §4.9).
type Factory func(ctx context.Context) (Driver, error)
