// Package gemini adapts the Gemini CLI to the cliexec.Backend contract.
// Structurally grounded on the same dmora-agentrun engine/cli/claude
// pattern claude.Backend follows (functional options, stream-json
// style framing); the flag names below are this backend's
// own (Gemini CLI has no --permission-mode equivalent, so approval
// posture here maps to --approval-mode instead — see DESIGN.md).
package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/backend/cliexec"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/errfmt"
	"github.com/haegyung/xsfire-camp/internal/jsonutil"
)

const defaultBinary = "gemini"

// Backend is a Gemini CLI backend.
type Backend struct {
	binary       string
	approvalMode string // default | auto_edit | yolo
}

var _ cliexec.Backend = (*Backend)(nil)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the gemini CLI binary path.
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// WithApprovalMode sets the --approval-mode flag value.
func WithApprovalMode(mode string) Option {
	return func(b *Backend) {
		if mode != "" {
			b.approvalMode = mode
		}
	}
}

// New constructs a Gemini CLI backend.
func New(opts ...Option) *Backend {
	b := &Backend{binary: defaultBinary, approvalMode: "default"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Binary implements cliexec.Backend.
func (b *Backend) Binary() string { return b.binary }

// StreamArgs builds the long-lived streaming-session argument list.
func (b *Backend) StreamArgs(cwd string) []string {
	args := []string{"--output-format", "stream-json", "--input-format", "stream-json"}
	if b.approvalMode != "" && b.approvalMode != "default" {
		args = append(args, "--approval-mode", b.approvalMode)
	}
	return args
}

// FormatOperation encodes op for delivery over the Gemini subprocess's
// stdin, using the same user/control message shape claude.Backend
// uses: both CLIs speak a stream-json dialect, and the wire shape this
// adapter controls (its own stdin framing) is free to stay uniform
// across backend kinds even where the two CLIs' actual flags diverge.
func (b *Backend) FormatOperation(op backend.Operation) ([]byte, bool, error) {
	switch op.Kind {
	case backend.OpUserInput:
		return encodeUserMessage(joinItems(op.Items))
	case backend.OpInterrupt:
		return encodeControl("interrupt", nil)
	case backend.OpCompact:
		return encodeUserMessage("/compress")
	case backend.OpExecApprovalResolve, backend.OpPatchApprovalResolve:
		return encodeControl("approval_response", map[string]any{
			"call_id":    op.CallID,
			"resolution": op.ResolutionID,
		})
	default:
		return nil, false, nil
	}
}

func joinItems(items []backend.InputItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		if it.Kind == "text" || it.Kind == "" {
			b.WriteString(it.Text)
		} else {
			b.WriteString(it.URI)
		}
	}
	return b.String()
}

func encodeUserMessage(text string) ([]byte, bool, error) {
	if jsonutil.ContainsNull(text) {
		return nil, false, fmt.Errorf("gemini: message contains null bytes")
	}
	msg := map[string]any{"type": "user", "message": map[string]any{"role": "user", "content": text}}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false, fmt.Errorf("gemini: marshal stdin: %w", err)
	}
	return append(data, '\n'), true, nil
}

func encodeControl(kind string, payload map[string]any) ([]byte, bool, error) {
	msg := map[string]any{"type": "control", "control_type": kind}
	for k, v := range payload {
		msg[k] = v
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false, fmt.Errorf("gemini: marshal control: %w", err)
	}
	return append(data, '\n'), true, nil
}

// ParseLine decodes one line of Gemini's stream-json output into an
// event.Event. The "type" discriminator and content shape mirror
// claude.Backend.ParseLine closely since both CLIs emit an
// Anthropic-Messages-shaped assistant envelope; Gemini has no
// "thinking" content blocks, so KindReasoningFinal is never produced
// here.
func (b *Backend) ParseLine(line []byte) (event.Event, error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return event.Event{}, cliexec.ErrSkipLine
	}
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return event.Event{}, fmt.Errorf("gemini: invalid JSON: %w", err)
	}
	typeStr := jsonutil.GetString(raw, "type")
	ev := event.Event{Raw: json.RawMessage(append([]byte(nil), line...))}

	switch typeStr {
	case "assistant":
		parseAssistantLine(raw, &ev)
	case "tool":
		ev.Kind = event.KindExecEnd
		ev.CallID = jsonutil.GetString(raw, "tool_use_id")
		ev.Status = "completed"
		ev.Text = jsonutil.GetString(raw, "content")
	case "result":
		ev.Kind = event.KindTurnComplete
		ev.StopReason = jsonutil.GetString(raw, "subtype")
	case "error":
		ev.Kind = event.KindError
		ev.ErrMessage = errfmt.Truncate(jsonutil.GetString(raw, "message"))
	default:
		ev.Kind = event.KindBackgroundEvent
	}
	return ev, nil
}

func parseAssistantLine(raw map[string]any, ev *event.Event) {
	ev.Kind = event.KindAssistantMessageFinal
	message := jsonutil.GetMap(raw, "message")
	if message == nil {
		return
	}
	contentArr := jsonutil.GetSlice(message, "content")
	var text strings.Builder
	for _, c := range contentArr {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if cm["type"] == "tool_use" {
			ev.Kind = event.KindExecBegin
			ev.CallID = jsonutil.GetString(cm, "id")
			ev.Title = jsonutil.GetString(cm, "name")
			if input, ok := cm["input"]; ok {
				if data, err := json.Marshal(input); err == nil {
					ev.RawInput = data
				}
			}
			continue
		}
		text.WriteString(jsonutil.GetString(cm, "text"))
	}
	if text.Len() > 0 {
		ev.Text = text.String()
	}
}
