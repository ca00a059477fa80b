// Package claude adapts the Claude Code CLI to the cliexec.Backend
// contract. Directly grounded on dmora-agentrun's engine/cli/claude
// package: the --resume flag, stream-json input/output framing, and
// the null-byte/resume-id validation carry over (no --permission-mode
// or --model flag is passed); FormatInput is replaced with
// FormatOperation, which additionally encodes the non-freeform
// Operation kinds (compact, undo, approval resolutions) that this
// repo's Operation vocabulary has and agentrun.Session did not.
package claude

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/backend/cliexec"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/errfmt"
	"github.com/haegyung/xsfire-camp/internal/jsonutil"
)

const defaultBinary = "claude"

// validResumeID matches safe Claude session identifiers, same
// allowlist as the teacher's claude.validResumeID.
var validResumeID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Backend is a Claude Code CLI backend.
type Backend struct {
	binary          string
	partialMessages bool
}

var (
	_ cliexec.Backend  = (*Backend)(nil)
	_ cliexec.Resumable = (*Backend)(nil)
)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the claude CLI binary path.
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// WithPartialMessages controls whether StreamArgs requests token-level
// streaming deltas. Default true.
func WithPartialMessages(enabled bool) Option {
	return func(b *Backend) { b.partialMessages = enabled }
}

// New constructs a Claude Code CLI backend.
func New(opts ...Option) *Backend {
	b := &Backend{binary: defaultBinary, partialMessages: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Binary implements cliexec.Backend.
func (b *Backend) Binary() string { return b.binary }

// StreamArgs builds the long-lived streaming-session argument list.
func (b *Backend) StreamArgs(cwd string) []string {
	args := baseArgs()
	args = append(args, "--input-format", "stream-json")
	if b.partialMessages {
		args = append(args, "--include-partial-messages")
	}
	return args
}

// ResumeArgs implements cliexec.Resumable, resuming an existing Claude
// conversation by id.
func (b *Backend) ResumeArgs(cwd, resumeID string) []string {
	args := baseArgs()
	args = append(args, "--input-format", "stream-json")
	if validResumeID.MatchString(resumeID) {
		args = append(args, "--resume", resumeID)
	}
	return args
}

func baseArgs() []string {
	return []string{"-p", "--verbose", "--output-format", "stream-json"}
}

// FormatOperation encodes op for delivery over the Claude subprocess's
// stdin, following the stream-json control-message conventions the
// teacher's FormatInput uses for plain user turns.
func (b *Backend) FormatOperation(op backend.Operation) ([]byte, bool, error) {
	switch op.Kind {
	case backend.OpUserInput:
		return encodeUserMessage(joinItems(op.Items))
	case backend.OpInterrupt:
		return encodeControl("interrupt", nil)
	case backend.OpCompact:
		return encodeUserMessage("/compact")
	case backend.OpUndo:
		return encodeUserMessage("/undo")
	case backend.OpExecApprovalResolve, backend.OpPatchApprovalResolve:
		return encodeControl("approval_response", map[string]any{
			"call_id":     op.CallID,
			"resolution":  op.ResolutionID,
		})
	case backend.OpElicitationResolve:
		return encodeControl("elicitation_response", map[string]any{
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
		switch it.Kind {
		case "image", "resource":
			b.WriteString(it.URI)
		default:
			b.WriteString(it.Text)
		}
	}
	return b.String()
}

func encodeUserMessage(text string) ([]byte, bool, error) {
	if jsonutil.ContainsNull(text) {
		return nil, false, fmt.Errorf("claude: message contains null bytes")
	}
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": text,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false, fmt.Errorf("claude: marshal stdin: %w", err)
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
		return nil, false, fmt.Errorf("claude: marshal control: %w", err)
	}
	return append(data, '\n'), true, nil
}

// ParseLine decodes one line of Claude's stream-json output into an
// event.Event, mirroring the teacher's claude.ParseLine dispatch over
// the "type" discriminator.
func (b *Backend) ParseLine(line []byte) (event.Event, error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return event.Event{}, cliexec.ErrSkipLine
	}

	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return event.Event{}, fmt.Errorf("claude: invalid JSON: %w", err)
	}

	typeStr := jsonutil.GetString(raw, "type")
	ev := event.Event{Raw: json.RawMessage(append([]byte(nil), line...))}

	switch typeStr {
	case "system":
		parseSystemLine(raw, &ev)
	case "assistant":
		parseAssistantLine(raw, &ev)
	case "tool":
		parseToolLine(raw, &ev)
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

func parseSystemLine(raw map[string]any, ev *event.Event) {
	if jsonutil.GetString(raw, "subtype") == "init" {
		ev.Kind = event.KindBackgroundEvent
		return
	}
	ev.Kind = event.KindBackgroundEvent
	ev.Text = jsonutil.GetString(raw, "message")
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
		switch cm["type"] {
		case "thinking":
			ev.Kind = event.KindReasoningFinal
			ev.Text += jsonutil.GetString(cm, "thinking")
		case "tool_use":
			ev.Kind = event.KindExecBegin
			ev.CallID = jsonutil.GetString(cm, "id")
			ev.Title = jsonutil.GetString(cm, "name")
			if input, ok := cm["input"]; ok {
				if data, err := json.Marshal(input); err == nil {
					ev.RawInput = data
				}
			}
		default:
			text.WriteString(jsonutil.GetString(cm, "text"))
		}
	}
	if text.Len() > 0 {
		ev.Text = text.String()
	}
}

func parseToolLine(raw map[string]any, ev *event.Event) {
	ev.Kind = event.KindExecEnd
	ev.CallID = jsonutil.GetString(raw, "tool_use_id")
	ev.Status = "completed"
	ev.Text = jsonutil.GetString(raw, "content")
}
