// Package submission implements C5: the four Submission state-machine
// variants (Prompt, Task, OneShot, CustomPrompts) that consume backend
// events and drive a per-submission completion signal (spec.md §4.5).
//
// Each variant's Handle method is a pure function from (state, event) to
// Effects — emitted updates, backend operations to post back, and an
// optional terminal Stop signal — so C6 (internal/actor) is the only
// place that actually calls the backend or the client facade. This
// mirrors the teacher's filter middleware: small, pure, independently
// testable transforms, composed by the actor loop.
package submission

import (
	"fmt"
	"strings"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

// Stop is the terminal outcome delivered through a Submission's
// completion signal (spec.md §3, §8).
type Stop struct {
	Reason acpwire.StopReason
	Err    *acpwire.Error
}

// Effects is what a Handle call produces: client-visible updates to
// emit, backend operations to submit back (approval resolutions), and
// an optional Stop terminating the submission.
type Effects struct {
	Updates []acpwire.Update
	Ops     []backend.Operation
	Stop    *Stop
}

func (e *Effects) emit(u acpwire.Update) { e.Updates = append(e.Updates, u) }
func (e *Effects) op(o backend.Operation) { e.Ops = append(e.Ops, o) }

// ActiveCommand tracks an in-flight shell-exec tool call (spec.md §3).
type ActiveCommand struct {
	CallID       string
	ToolCallID   string // equals CallID, spec.md §3
	LiveTerminal bool
	Buffer       strings.Builder
	FileExt      string
}

// Kind discriminates the four C5 variants for logging/diagnostics.
type Kind string

const (
	KindPrompt        Kind = "prompt"
	KindTask          Kind = "task"
	KindOneShot       Kind = "one_shot"
	KindCustomPrompts Kind = "custom_prompts"
)

// OneShotKind parameterizes the OneShot variant (spec.md §4.5.3).
type OneShotKind string

const (
	OneShotMcpTools OneShotKind = "mcp_tools"
	OneShotSkills   OneShotKind = "skills"
)

func titleForCommand(cmd *event.ParsedCommand) (string, []acpwire.ToolCallLocation) {
	if cmd == nil {
		return "Running command", nil
	}
	title := cmd.Program
	if len(cmd.Args) > 0 {
		title = fmt.Sprintf("%s %s", cmd.Program, strings.Join(cmd.Args, " "))
	}
	var locs []acpwire.ToolCallLocation
	if cmd.Cwd != "" {
		locs = append(locs, acpwire.ToolCallLocation{Path: cmd.Cwd})
	}
	return title, locs
}
