package actor

import (
	"context"
	"fmt"
	"strings"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/internal/command"
	"github.com/haegyung/xsfire-camp/internal/prompttrans"
	"github.com/haegyung/xsfire-camp/internal/submission"

	"go.uber.org/zap"
)

// handlePrompt implements spec.md §4.6.2's prompt variant: token
// estimate, canonical logging, slash-command detection, and dispatch to
// one of the informational/action/lookup/submission paths.
func (a *Actor) handlePrompt(ctx context.Context, c PromptCmd) {
	estimate := prompttrans.EstimateTokens(c.Blocks)
	a.Log.Log("acp.prompt", map[string]any{
		"session_id":     a.SessionID,
		"token_estimate": estimate,
		"blocks":         prompttrans.Summarize(c.Blocks),
	})

	if a.Config.TaskOrchestration == "sequential" && a.hasActiveForegroundWork() {
		a.endTurnWithText(c, "A task is already in progress. Please wait for it to finish before starting another.")
		return
	}

	firstText := ""
	if len(c.Blocks) > 0 {
		firstText = c.Blocks[0].Text
	}

	parsed, isCmd := command.Detect(firstText)
	if !isCmd {
		a.submitFreeformPrompt(ctx, c, c.Blocks)
		return
	}

	switch parsed.Name {
	case command.Setup:
		a.emitSetupWizard(c)
	case command.Status:
		a.endTurnWithText(c, a.renderStatus())
	case command.Model, command.Personality, command.Approvals, command.Permissions, command.Experimental:
		a.endTurnWithText(c, "See Config Options for this setting.")
	case command.MCP:
		a.submitOneShot(ctx, c, backend.OpListMcpTools, submission.OneShotMcpTools, command.SkillsOptions{})
	case command.Skills:
		opts, err := command.ParseSkillsOptions(parsed.Rest)
		if err != nil {
			a.endTurnWithText(c, "usage: /skills [--reload] [--enabled|--disabled] [--scope <s>] [<keyword>]")
			return
		}
		a.submitSkills(ctx, c, opts)
	case command.Diff:
		a.submitShellCommand(ctx, c, "git diff --no-color --")
	case command.Compact:
		a.submitTask(ctx, c, backend.OpCompact, "compact")
	case command.Undo:
		a.submitTask(ctx, c, backend.OpUndo, "undo")
	case command.Review, command.ReviewBranch, command.ReviewCommit:
		a.submitReview(ctx, c, parsed)
	case command.Init:
		a.submitFreeformPrompt(ctx, c, []acpwire.ContentBlock{{Type: "text", Text: initPromptText}})
	case command.Sessions:
		a.endTurnWithText(c, "Local session list is not available without a configured backend session index.")
	case command.Load:
		a.endTurnWithText(c, fmt.Sprintf("Open session %q from the client's session picker.", parsed.Rest))
	case command.Monitor:
		a.endTurnWithText(c, a.renderMonitor(parsed.Rest))
	case command.Vector:
		a.endTurnWithText(c, a.renderVector())
	case command.New, command.NewWindow, command.Resume, command.Fork, command.Agent:
		a.endTurnWithText(c, "Please initiate this from the client's session controls.")
	case command.Mention, command.Feedback:
		a.endTurnWithText(c, "Use the client's mention/feedback affordance for this.")
	case command.Logout:
		c.Resp <- PromptResult{Err: acpwire.NewError(acpwire.ErrAuthRequired, "logged out; re-authenticate to continue")}
		close(c.Resp)
	default:
		if expansion, ok := a.expandCustomPrompt(parsed.Name, parsed.Rest); ok {
			a.submitFreeformPrompt(ctx, c, []acpwire.ContentBlock{{Type: "text", Text: expansion}})
			return
		}
		a.submitFreeformPrompt(ctx, c, c.Blocks)
	}
}

const initPromptText = "Create an AGENTS.md file documenting this project's conventions for coding agents."

func (a *Actor) hasActiveForegroundWork() bool {
	for _, en := range a.Submissions {
		if en.background {
			continue
		}
		if !en.completed() {
			return true
		}
	}
	return false
}

func (a *Actor) endTurnWithText(c PromptCmd, text string) {
	a.Facade.Emit(acpwire.Update{SessionID: a.SessionID, Kind: acpwire.UpdateAssistantMessageChunk, Text: text})
	c.Resp <- PromptResult{StopReason: acpwire.StopEndTurn}
	close(c.Resp)
}

func (a *Actor) emitSetupWizard(c PromptCmd) {
	a.Facade.Emit(acpwire.Update{SessionID: a.SessionID, Kind: acpwire.UpdateAssistantMessageChunk, Text: "Let's get you set up. Choose an approval preset to continue."})
	a.maybeEmitSetupPlan()
	c.Resp <- PromptResult{StopReason: acpwire.StopEndTurn}
	close(c.Resp)
}

func (a *Actor) renderStatus() string {
	return fmt.Sprintf(
		"model=%s effort=%s personality=%s approval=%s monitor=%s/%d%% skills_declared=%d",
		a.Config.Model, a.Config.ReasoningEffort, a.Config.Personality, a.Config.ApprovalPreset,
		a.CtxMonitor.Mode, a.CtxMonitor.TriggerPercent, a.Skills.Count(),
	)
}

func (a *Actor) expandCustomPrompt(name, rest string) (string, bool) {
	for _, cp := range a.CustomPrompts {
		if cp.Name == name {
			args := strings.Fields(rest)
			return expandPlaceholders(cp.Content, args), true
		}
	}
	return "", false
}

func expandPlaceholders(content string, args []string) string {
	out := content
	for i, arg := range args {
		placeholder := fmt.Sprintf("$%d", i+1)
		out = strings.ReplaceAll(out, placeholder, arg)
	}
	return out
}

func (a *Actor) submitFreeformPrompt(ctx context.Context, c PromptCmd, blocks []acpwire.ContentBlock) {
	items := prompttrans.Translate(blocks)
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: backend.OpUserInput, Items: items})
	if err != nil {
		c.Resp <- PromptResult{Err: acpwire.Internalf(err, "backend submit failed")}
		close(c.Resp)
		return
	}
	p := submission.NewPrompt(a.SessionID, id, a.Facade.Capabilities())
	a.Submissions[id] = &entry{id: id, prompt: p, done: c.Resp}
}

func (a *Actor) submitTask(ctx context.Context, c PromptCmd, kind backend.OpKind, label string) {
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: kind})
	if err != nil {
		c.Resp <- PromptResult{Err: acpwire.Internalf(err, "backend submit failed")}
		close(c.Resp)
		return
	}
	t := submission.NewTask(a.SessionID, id, label)
	a.Submissions[id] = &entry{id: id, task: t, done: c.Resp}
}

func (a *Actor) submitOneShot(ctx context.Context, c PromptCmd, kind backend.OpKind, osKind submission.OneShotKind, filter command.SkillsOptions) {
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: kind})
	if err != nil {
		c.Resp <- PromptResult{Err: acpwire.Internalf(err, "backend submit failed")}
		close(c.Resp)
		return
	}
	os := submission.NewOneShot(a.SessionID, id, osKind, filter)
	a.Submissions[id] = &entry{id: id, oneShot: os, done: c.Resp}
}

func (a *Actor) submitSkills(ctx context.Context, c PromptCmd, opts command.SkillsOptions) {
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: backend.OpListSkills, ForceReload: opts.Reload})
	if err != nil {
		c.Resp <- PromptResult{Err: acpwire.Internalf(err, "backend submit failed")}
		close(c.Resp)
		return
	}
	os := submission.NewOneShot(a.SessionID, id, submission.OneShotSkills, opts)
	a.Submissions[id] = &entry{id: id, oneShot: os, done: c.Resp}
}

func (a *Actor) submitShellCommand(ctx context.Context, c PromptCmd, cmdline string) {
	items := []backend.InputItem{{Kind: "text", Text: cmdline}}
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: backend.OpUserInput, Items: items})
	if err != nil {
		c.Resp <- PromptResult{Err: acpwire.Internalf(err, "backend submit failed")}
		close(c.Resp)
		return
	}
	p := submission.NewPrompt(a.SessionID, id, a.Facade.Capabilities())
	a.Submissions[id] = &entry{id: id, prompt: p, done: c.Resp}
}

func (a *Actor) submitReview(ctx context.Context, c PromptCmd, parsed command.Parsed) {
	target, err := command.ParseReview(parsed.Name, parsed.Rest)
	if err != nil {
		a.endTurnWithText(c, err.Error())
		return
	}
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{
		Kind: backend.OpReview,
		Review: &backend.ReviewTarget{
			Kind:         target.Kind,
			Instructions: target.Instructions,
			Commit:       target.Commit,
			Branch:       target.Branch,
		},
	})
	if err != nil {
		c.Resp <- PromptResult{Err: acpwire.Internalf(err, "backend submit failed")}
		close(c.Resp)
		return
	}
	p := submission.NewPrompt(a.SessionID, id, a.Facade.Capabilities())
	a.Submissions[id] = &entry{id: id, prompt: p, done: c.Resp}
}

// handleReplayHistory implements spec.md §4.6.2's replay-history
// variant: translate each rollout item into the equivalent client
// notification. Apply-patch tool calls with file data become diff
// tool-calls; shell calls become exec tool-calls; tool names prefixed
// with "functions." are normalized before dispatch.
func (a *Actor) handleReplayHistory(c ReplayHistoryCmd) {
	for _, item := range c.Items {
		switch item.Kind {
		case "user_message":
			a.Facade.Emit(acpwire.Update{SessionID: a.SessionID, Kind: acpwire.UpdateUserMessageChunk, Text: item.Text})
		case "assistant_message":
			a.Facade.Emit(acpwire.Update{SessionID: a.SessionID, Kind: acpwire.UpdateAssistantMessageChunk, Text: item.Text})
		case "reasoning":
			a.Facade.Emit(acpwire.Update{SessionID: a.SessionID, Kind: acpwire.UpdateAgentThoughtChunk, Text: item.Text})
		case "tool_call":
			a.replayToolCall(item)
		default:
			a.logger.Warn("actor: unknown rollout item kind", zap.String("kind", item.Kind))
		}
	}
	c.Resp <- struct{}{}
	close(c.Resp)
}

func (a *Actor) replayToolCall(item RolloutItem) {
	name := strings.TrimPrefix(item.ToolName, "functions.")
	kindLabel := "other"
	title := name
	var content []acpwire.ContentBlock

	switch {
	case name == "apply_patch" && len(item.PatchFiles) > 0:
		kindLabel = "edit"
		title = "Apply patch"
		for _, f := range item.PatchFiles {
			content = append(content, acpwire.ContentBlock{Type: "text", URI: f.Path, Text: f.Diff})
		}
	case name == "shell" || name == "exec":
		kindLabel = "execute"
		title = name
	default:
		title = fmt.Sprintf("Tool: %s", name)
	}

	a.Facade.Emit(acpwire.Update{
		SessionID: a.SessionID,
		Kind:      acpwire.UpdateToolCall,
		ToolCall: &acpwire.ToolCallUpdate{
			ToolCallID: item.ToolCallID,
			Title:      title,
			Kind:       kindLabel,
			Status:     "completed",
			Content:    content,
			RawInput:   item.RawInput,
		},
	})
}
