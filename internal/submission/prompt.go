package submission

import (
	"fmt"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

// Prompt is the C5 state machine that drives a single prompt turn
// (spec.md §4.5.1). Background is true for the auto-compact variant,
// which never sends a Stop via the completion signal but still becomes
// inactive once Completed is true (spec.md §4.5.1 final paragraph).
type Prompt struct {
	SessionID    string
	SubmissionID backend.SubmissionID
	Background   bool
	Caps         acpwire.ClientCapabilities

	Active          *ActiveCommand
	WebSearchCallID string // non-empty while a web-search tool call is open

	MessageDeltaSeen   bool
	ReasoningDeltaSeen bool

	Completed  bool
	EventCount int
}

// NewPrompt constructs a foreground Prompt submission.
func NewPrompt(sessionID string, id backend.SubmissionID, caps acpwire.ClientCapabilities) *Prompt {
	return &Prompt{SessionID: sessionID, SubmissionID: id, Caps: caps}
}

// NewBackgroundPrompt constructs the no-completion-signal variant used
// by auto-compact (spec.md §4.5.1 final paragraph).
func NewBackgroundPrompt(sessionID string, id backend.SubmissionID) *Prompt {
	return &Prompt{SessionID: sessionID, SubmissionID: id, Background: true}
}

// Handle processes one backend event and returns the resulting Effects.
// Inactive (Completed) submissions should not be handed further events by
// the caller, but Handle is defensive and becomes a no-op once Completed.
func (p *Prompt) Handle(e event.Event) Effects {
	if p.Completed {
		return Effects{}
	}
	p.EventCount++

	var eff Effects

	// Web-search coalescing: any non-web-search event completes an
	// outstanding web-search tool call first (spec.md §4.5.1, §8).
	if p.WebSearchCallID != "" && !event.IsWebSearch(e.Kind) {
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCallUpdate,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: p.WebSearchCallID,
				Status:     "completed",
			},
		})
		p.WebSearchCallID = ""
	}

	switch e.Kind {
	case event.KindAssistantMessageDelta:
		eff.emit(chunk(p.SessionID, acpwire.UpdateAssistantMessageChunk, e.Text))
		p.MessageDeltaSeen = true

	case event.KindAssistantMessageFinal:
		if !p.MessageDeltaSeen {
			eff.emit(chunk(p.SessionID, acpwire.UpdateAssistantMessageChunk, e.Text))
		}
		p.MessageDeltaSeen = false

	case event.KindReasoningDelta, event.KindReasoningSummaryDelta:
		eff.emit(chunk(p.SessionID, acpwire.UpdateAgentThoughtChunk, e.Text))
		p.ReasoningDeltaSeen = true

	case event.KindReasoningSectionBreak:
		eff.emit(chunk(p.SessionID, acpwire.UpdateAgentThoughtChunk, "\n\n"))
		p.ReasoningDeltaSeen = true

	case event.KindReasoningFinal:
		if !p.ReasoningDeltaSeen {
			eff.emit(chunk(p.SessionID, acpwire.UpdateAgentThoughtChunk, e.Text))
		}
		p.ReasoningDeltaSeen = false

	case event.KindPlanUpdate:
		entries := make([]acpwire.PlanEntryUpdate, 0, len(e.Plan))
		for _, pe := range e.Plan {
			entries = append(entries, acpwire.PlanEntryUpdate{Step: pe.Step, Status: pe.Status, Priority: "medium"})
		}
		eff.emit(acpwire.Update{SessionID: p.SessionID, Kind: acpwire.UpdatePlan, Plan: entries, Explanation: e.Explanation})

	case event.KindWebSearchBegin:
		p.WebSearchCallID = e.CallID
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCall,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Title:      "Searching the Web",
				Kind:       "fetch",
				Status:     "in_progress",
			},
		})

	case event.KindWebSearchEnd:
		p.WebSearchCallID = e.CallID
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCallUpdate,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Title:      fmt.Sprintf("Searching for: %s", e.Query),
				Status:     "in_progress",
			},
		})

	case event.KindExecApprovalRequest:
		title, _ := titleForCommand(e.Command)
		eff.emit(permissionUpdate(p.SessionID, e.CallID, title, []acpwire.PermissionOption{
			{OptionID: "allow-always", Kind: "allow_always", Name: "Always"},
			{OptionID: "allow-once", Kind: "allow_once", Name: "Yes"},
			{OptionID: "reject-once", Kind: "reject_once", Name: "No"},
		}))

	case event.KindExecBegin:
		title, locs := titleForCommand(e.Command)
		p.Active = &ActiveCommand{CallID: e.CallID, ToolCallID: e.CallID, FileExt: fileExt(e.Command)}
		if p.Caps.LiveTerminal && e.Command != nil && e.Command.TerminalHint {
			p.Active.LiveTerminal = true
		}
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCall,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Title:      title,
				Kind:       "execute",
				Status:     "in_progress",
				Locations:  locs,
			},
		})

	case event.KindExecDelta:
		if p.Active != nil && p.Active.LiveTerminal {
			eff.emit(acpwire.Update{
				SessionID: p.SessionID,
				Kind:      acpwire.UpdateToolCallUpdate,
				ToolCall: &acpwire.ToolCallUpdate{
					ToolCallID: e.CallID,
					Status:     "in_progress",
					Meta:       map[string]any{"terminal_id": e.CallID, "terminal_output": e.Text},
				},
			})
		} else {
			if p.Active != nil {
				p.Active.Buffer.WriteString(e.Text)
			}
			eff.emit(acpwire.Update{
				SessionID: p.SessionID,
				Kind:      acpwire.UpdateToolCallUpdate,
				ToolCall: &acpwire.ToolCallUpdate{
					ToolCallID: e.CallID,
					Status:     "in_progress",
					Content:    []acpwire.ContentBlock{{Type: "text", Text: e.Text}},
				},
			})
		}

	case event.KindExecEnd:
		status := "completed"
		if e.ExitCode != 0 {
			status = "failed"
		}
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCallUpdate,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Status:     status,
				RawOutput:  e.RawOutput,
			},
		})
		if p.Active != nil && p.Active.LiveTerminal {
			eff.emit(acpwire.Update{
				SessionID: p.SessionID,
				Kind:      acpwire.UpdateToolCallUpdate,
				ToolCall: &acpwire.ToolCallUpdate{
					ToolCallID: e.CallID,
					Meta:       map[string]any{"terminal_id": e.CallID, "terminal_exit": e.ExitCode},
				},
			})
		}
		p.Active = nil

	case event.KindMcpToolCallBegin:
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCall,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Title:      fmt.Sprintf("Tool: %s/%s", e.Server, e.Tool),
				Kind:       "other",
				Status:     "in_progress",
			},
		})

	case event.KindMcpToolCallEnd:
		status := "completed"
		if e.ErrMessage != "" {
			status = "failed"
		}
		var content []acpwire.ContentBlock
		for _, c := range e.Content {
			content = append(content, acpwire.ContentBlock{Type: c.Type, Text: c.Text, URI: c.URI})
		}
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCallUpdate,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Status:     status,
				RawOutput:  e.RawOutput,
				Content:    content,
			},
		})

	case event.KindApplyPatchApprovalRequest:
		eff.emit(permissionUpdate(p.SessionID, e.CallID, "Apply patch", []acpwire.PermissionOption{
			{OptionID: "allow-once", Kind: "allow_once", Name: "Yes"},
			{OptionID: "reject-once", Kind: "reject_once", Name: "No"},
		}))

	case event.KindPatchApplyBegin:
		p.Active = &ActiveCommand{CallID: e.CallID, ToolCallID: e.CallID}
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCall,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Title:      "Apply patch",
				Kind:       "edit",
				Status:     "in_progress",
				Content:    patchDiffBlocks(e.PatchFiles),
			},
		})

	case event.KindPatchApplyEnd:
		status := "completed"
		if e.ErrMessage != "" {
			status = "failed"
		}
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCallUpdate,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Status:     status,
				Content:    patchDiffBlocks(e.PatchFiles),
			},
		})
		p.Active = nil

	case event.KindViewImageToolCall:
		eff.emit(acpwire.Update{
			SessionID: p.SessionID,
			Kind:      acpwire.UpdateToolCall,
			ToolCall: &acpwire.ToolCallUpdate{
				ToolCallID: e.CallID,
				Title:      "View image",
				Kind:       "read",
				Status:     "completed",
				Locations:  []acpwire.ToolCallLocation{{Path: e.Text}},
				Content:    []acpwire.ContentBlock{{Type: "resource_link", URI: e.Text}},
			},
		})

	case event.KindElicitationRequest:
		eff.emit(permissionUpdate(p.SessionID, e.CallID, "Additional input requested", []acpwire.PermissionOption{
			{OptionID: "accept", Kind: "accept", Name: "Accept"},
			{OptionID: "decline", Kind: "decline_but_continue", Name: "Decline but continue"},
			{OptionID: "cancel", Kind: "cancel", Name: "Cancel"},
		}))

	case event.KindReviewModeEnter:
		// no client-visible effect beyond telemetry classification.

	case event.KindReviewModeExit:
		eff.emit(chunk(p.SessionID, acpwire.UpdateAssistantMessageChunk, formatReview(e)))

	case event.KindTurnComplete:
		p.Completed = true
		if !p.Background {
			eff.Stop = &Stop{Reason: acpwire.StopEndTurn}
		}

	case event.KindTurnAborted, event.KindShutdownComplete:
		p.Completed = true
		if !p.Background {
			eff.Stop = &Stop{Reason: acpwire.StopCancelled}
		}

	case event.KindError:
		p.Completed = true
		if !p.Background {
			eff.Stop = &Stop{Err: acpwire.BackendTurn(e.ErrMessage, e.ErrInfo)}
		}

	case event.KindStreamError:
		// logged by the caller (actor.handleEvent) only; no state transition.

	default:
		// token counts, turn diffs, background events, raw response
		// items, collaboration-agent lifecycle, and listing responses
		// belonging to OneShot/CustomPrompts are dropped here (spec.md
		// §4.5.1's final bullet).
	}

	return eff
}

// ResolveExecApproval builds the exec-approval backend operation for the
// user's chosen option, resolving Always/Yes/No to
// ApprovedForSession/Approved/Abort. Cancellation resolves to Abort
// (spec.md §4.5.1).
func ResolveExecApproval(submissionID backend.SubmissionID, callID, optionID string, cancelled bool) backend.Operation {
	resolution := "abort"
	if !cancelled {
		switch optionID {
		case "allow-always":
			resolution = "approved-for-session"
		case "allow-once":
			resolution = "approved"
		}
	}
	return backend.Operation{Kind: backend.OpExecApprovalResolve, CallID: callID, ResolutionID: resolution}
}

// ResolvePatchApproval resolves Yes/No to Approved/Abort.
func ResolvePatchApproval(callID, optionID string, cancelled bool) backend.Operation {
	resolution := "abort"
	if !cancelled && optionID == "allow-once" {
		resolution = "approved"
	}
	return backend.Operation{Kind: backend.OpPatchApprovalResolve, CallID: callID, ResolutionID: resolution}
}

// ResolveElicitation forwards the chosen elicitation action verbatim.
func ResolveElicitation(callID, optionID string, cancelled bool) backend.Operation {
	if cancelled {
		optionID = "cancel"
	}
	return backend.Operation{Kind: backend.OpElicitationResolve, CallID: callID, ResolutionID: optionID}
}

func chunk(sessionID string, kind acpwire.UpdateKind, text string) acpwire.Update {
	return acpwire.Update{SessionID: sessionID, Kind: kind, Text: text}
}

func permissionUpdate(sessionID, callID, title string, opts []acpwire.PermissionOption) acpwire.Update {
	return acpwire.Update{
		SessionID: sessionID,
		Kind:      acpwire.UpdateToolCall,
		ToolCall: &acpwire.ToolCallUpdate{
			ToolCallID: callID,
			Title:      title,
			Status:     "in_progress",
			Meta:       map[string]any{"permission_options": opts},
		},
	}
}

func fileExt(cmd *event.ParsedCommand) string {
	if cmd == nil {
		return ""
	}
	return cmd.FileExt
}

func patchDiffBlocks(files []event.PatchFileChange) []acpwire.ContentBlock {
	blocks := make([]acpwire.ContentBlock, 0, len(files))
	for _, f := range files {
		blocks = append(blocks, acpwire.ContentBlock{Type: "text", URI: f.Path, Text: f.Diff})
	}
	return blocks
}

const reviewFallback = "Review completed with no findings."

func formatReview(e event.Event) string {
	if len(e.ReviewFindings) == 0 {
		if e.Explanation != "" {
			return e.Explanation
		}
		return reviewFallback
	}
	var b []byte
	for _, f := range e.ReviewFindings {
		b = append(b, []byte(fmt.Sprintf("- **%s** (%s): %s\n", f.Title, f.Location, f.Description))...)
	}
	return string(b)
}
