// Package codex is the native in-process backend driver: no subprocess,
// no CLI framing, just direct Go calls against an injected event sink.
// spec.md §1 names the actual codex reasoning engine an out-of-scope
// collaborator; this package is the concrete compile/test boundary that
// stands in for it — every call that would otherwise cross into codex's
// own turn-taking loop instead goes through Engine's small in-memory
// state machine, which is enough to exercise internal/router and
// internal/actor end to end without a real model behind it.
//
// Grounded on original_source/backend.rs's BackendDriver trait (the
// capability surface: backend_kind, supports_load_session,
// auth_methods/authenticate, new_session/load_session/list_sessions)
// adapted onto backend.Driver plus the SessionSpawner/SessionLoader/
// Authenticator capability interfaces backend/backend.go defines.
package codex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

// Engine is codex's in-process backend.Driver.
type Engine struct {
	events chan event.Event

	mu       sync.Mutex
	sessions map[string]*convo
}

var (
	_ backend.Driver         = (*Engine)(nil)
	_ backend.SessionSpawner = (*Engine)(nil)
	_ backend.SessionLoader  = (*Engine)(nil)
	_ backend.Authenticator  = (*Engine)(nil)
)

type convo struct {
	turns int
}

// New constructs a codex Engine.
func New() *Engine {
	return &Engine{
		events:   make(chan event.Event, 256),
		sessions: make(map[string]*convo),
	}
}

// NewSession mints a fresh in-memory conversation. meta and mcpServers
// are accepted to satisfy backend.SessionSpawner but unused — codex's
// real engine would thread them into its own session init; this
// boundary double has no external process to configure.
func (e *Engine) NewSession(ctx context.Context, cwd string, mcpServers []string, meta []byte) (string, error) {
	id := uuid.NewString()
	e.mu.Lock()
	e.sessions[id] = &convo{}
	e.mu.Unlock()
	return id, nil
}

// LoadSession confirms a previously-issued id is resumable. codex is
// the only backend kind spec.md marks as advertising
// supports_load_session; this double accepts any id not already known
// and registers it, since the real rollout-replay mechanics live in
// codex's own persistence layer, out of scope here.
func (e *Engine) LoadSession(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[sessionID]; !ok {
		e.sessions[sessionID] = &convo{}
	}
	return nil
}

// AuthMethods implements backend.Authenticator. Method ids mirror
// original_source/acp_agent.rs's ChatGPT/API-key login surface.
func (e *Engine) AuthMethods() []string {
	return []string{"chatgpt", "codex-api-key", "openai-api-key"}
}

// Authenticate implements backend.Authenticator. All three methods
// succeed unconditionally: credential verification is codex's own
// concern, out of scope for this adapter.
func (e *Engine) Authenticate(ctx context.Context, methodID string) error {
	switch methodID {
	case "chatgpt", "codex-api-key", "openai-api-key":
		return nil
	default:
		return fmt.Errorf("codex: unknown auth method %q", methodID)
	}
}

// Submit enqueues op against sessionID. For user_input, it asynchronously
// emits a short assistant-message-delta/final/turn-complete sequence on
// a background goroutine, enough to drive C5.1 Prompt through its full
// state machine in tests without a real model.
func (e *Engine) Submit(ctx context.Context, sessionID string, op backend.Operation) (backend.SubmissionID, error) {
	e.mu.Lock()
	c, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("codex: unknown session %q", sessionID)
	}

	id := backend.SubmissionID(uuid.NewString())
	sid := string(id)

	switch op.Kind {
	case backend.OpUserInput:
		c.turns++
		go e.runTurn(sid, op)
	case backend.OpInterrupt:
		go func() {
			e.events <- event.Event{Kind: event.KindTurnAborted, SubmissionID: sid}
		}()
	case backend.OpCompact:
		go func() {
			e.events <- event.Event{Kind: event.KindContextCompacted, SubmissionID: sid}
			e.events <- event.Event{Kind: event.KindAssistantMessageFinal, SubmissionID: sid, Text: "Compact task completed"}
			e.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: sid, StopReason: "end_turn"}
		}()
	case backend.OpUndo:
		go func() {
			e.events <- event.Event{Kind: event.KindAssistantMessageFinal, SubmissionID: sid, Text: "Undo task completed"}
			e.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: sid, StopReason: "end_turn"}
		}()
	case backend.OpOverrideTurnContext:
		go func() {
			e.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: sid, StopReason: "end_turn"}
		}()
	case backend.OpReview:
		go func() {
			e.events <- event.Event{Kind: event.KindReviewModeEnter, SubmissionID: sid}
			e.events <- event.Event{Kind: event.KindReviewModeExit, SubmissionID: sid, Explanation: reviewSummary(op.Review)}
			e.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: sid, StopReason: "end_turn"}
		}()
	case backend.OpListMcpTools:
		go func() {
			e.events <- event.Event{Kind: event.KindListMcpToolsResponse, SubmissionID: sid}
		}()
	case backend.OpListSkills:
		go func() {
			e.events <- event.Event{Kind: event.KindListSkillsResponse, SubmissionID: sid}
		}()
	case backend.OpListCustomPrompts:
		go func() {
			e.events <- event.Event{Kind: event.KindListCustomPromptsResponse, SubmissionID: sid}
		}()
	case backend.OpExecApprovalResolve, backend.OpPatchApprovalResolve, backend.OpElicitationResolve:
		go func() {
			e.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: sid, StopReason: "end_turn"}
		}()
	default:
		return "", fmt.Errorf("codex: unsupported operation kind %q", op.Kind)
	}

	return id, nil
}

// runTurn produces the canned delta/final/complete sequence for a
// user_input operation.
func (e *Engine) runTurn(submissionID string, op backend.Operation) {
	text := echoText(op)
	for _, chunk := range splitChunks(text, 24) {
		e.events <- event.Event{Kind: event.KindAssistantMessageDelta, SubmissionID: submissionID, Text: chunk, Timestamp: time.Now()}
	}
	e.events <- event.Event{Kind: event.KindAssistantMessageFinal, SubmissionID: submissionID, Text: text}
	e.events <- event.Event{Kind: event.KindTokenCount, SubmissionID: submissionID, Usage: &event.TokenUsage{TotalTokens: len(text), ContextWindow: 128000}}
	e.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: submissionID, StopReason: "end_turn"}
}

func echoText(op backend.Operation) string {
	var joined string
	for i, it := range op.Items {
		if i > 0 {
			joined += " "
		}
		joined += it.Text
	}
	if joined == "" {
		return "Acknowledged."
	}
	return "Acknowledged: " + joined
}

// reviewSummary derives the review-mode-exit explanation text from the
// submitted target, standing in for codex's own diff analysis.
func reviewSummary(target *backend.ReviewTarget) string {
	if target == nil {
		return "Reviewed uncommitted changes."
	}
	switch target.Kind {
	case "custom":
		return fmt.Sprintf("Reviewed per instructions: %s", target.Instructions)
	case "branch":
		return fmt.Sprintf("Reviewed branch %s", target.Branch)
	case "commit":
		return fmt.Sprintf("Reviewed commit %s", target.Commit)
	default:
		return "Reviewed uncommitted changes."
	}
}

func splitChunks(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

// Events returns the engine's shared event channel.
func (e *Engine) Events() <-chan event.Event {
	return e.events
}

// Close is a no-op: there is no subprocess or connection to release.
func (e *Engine) Close() error { return nil }
