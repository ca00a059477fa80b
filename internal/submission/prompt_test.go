package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

func newTestPrompt() *Prompt {
	return NewPrompt("sess-1", backend.SubmissionID("sub-1"), acpwire.ClientCapabilities{})
}

func TestPrompt_DeltaThenFinal_EmitsOnce(t *testing.T) {
	p := newTestPrompt()

	eff := p.Handle(event.Event{Kind: event.KindAssistantMessageDelta, Text: "Hi"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, acpwire.UpdateAssistantMessageChunk, eff.Updates[0].Kind)

	eff = p.Handle(event.Event{Kind: event.KindAssistantMessageFinal, Text: "Hi"})
	assert.Empty(t, eff.Updates, "final following a delta must not re-emit")
}

func TestPrompt_FinalWithoutDelta_Emits(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindAssistantMessageFinal, Text: "Hi"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "Hi", eff.Updates[0].Text)
}

func TestPrompt_ReasoningDeltaThenFinal_DedupesLikeMessage(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindReasoningDelta, Text: "thinking"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, acpwire.UpdateAgentThoughtChunk, eff.Updates[0].Kind)

	eff = p.Handle(event.Event{Kind: event.KindReasoningFinal, Text: "thinking"})
	assert.Empty(t, eff.Updates)
}

func TestPrompt_ReasoningSectionBreak_EmitsSeparatorAndSuppressesFinal(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindReasoningSectionBreak})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "\n\n", eff.Updates[0].Text)

	eff = p.Handle(event.Event{Kind: event.KindReasoningFinal, Text: "more"})
	assert.Empty(t, eff.Updates)
}

func TestPrompt_PlanUpdate_TranslatesEntries(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{
		Kind:        event.KindPlanUpdate,
		Plan:        []event.PlanEntry{{Step: "Run tests", Status: "in_progress"}},
		Explanation: "validating the change",
	})
	require.Len(t, eff.Updates, 1)
	u := eff.Updates[0]
	assert.Equal(t, acpwire.UpdatePlan, u.Kind)
	assert.Equal(t, "validating the change", u.Explanation)
	require.Len(t, u.Plan, 1)
	assert.Equal(t, "Run tests", u.Plan[0].Step)
	assert.Equal(t, "in_progress", u.Plan[0].Status)
	assert.Equal(t, "medium", u.Plan[0].Priority)
}

func TestPrompt_WebSearch_CoalescesOnNextNonSearchEvent(t *testing.T) {
	p := newTestPrompt()

	eff := p.Handle(event.Event{Kind: event.KindWebSearchBegin, CallID: "call-1"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, acpwire.UpdateToolCall, eff.Updates[0].Kind)
	assert.Equal(t, "in_progress", eff.Updates[0].ToolCall.Status)

	eff = p.Handle(event.Event{Kind: event.KindWebSearchEnd, CallID: "call-1", Query: "golang testify"})
	require.Len(t, eff.Updates, 1)
	assert.Contains(t, eff.Updates[0].ToolCall.Title, "golang testify")

	// a following, unrelated event completes the still-open search call
	// before processing its own update.
	eff = p.Handle(event.Event{Kind: event.KindAssistantMessageDelta, Text: "done"})
	require.Len(t, eff.Updates, 2)
	assert.Equal(t, "completed", eff.Updates[0].ToolCall.Status)
	assert.Equal(t, "call-1", eff.Updates[0].ToolCall.ToolCallID)
	assert.Equal(t, acpwire.UpdateAssistantMessageChunk, eff.Updates[1].Kind)
}

func TestPrompt_ExecApprovalRequest_CarriesPermissionOptions(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{
		Kind:    event.KindExecApprovalRequest,
		CallID:  "call-1",
		Command: &event.ParsedCommand{Program: "git", Args: []string{"diff"}},
	})
	require.Len(t, eff.Updates, 1)
	u := eff.Updates[0]
	assert.Equal(t, acpwire.UpdateToolCall, u.Kind)
	require.NotNil(t, u.ToolCall)
	assert.Equal(t, "call-1", u.ToolCall.ToolCallID)
	opts, ok := u.ToolCall.Meta["permission_options"].([]acpwire.PermissionOption)
	require.True(t, ok)
	assert.Len(t, opts, 3)
}

func TestPrompt_ExecLifecycle_BeginDeltaEnd(t *testing.T) {
	p := newTestPrompt()

	eff := p.Handle(event.Event{Kind: event.KindExecBegin, CallID: "call-1", Command: &event.ParsedCommand{Program: "ls"}})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "execute", eff.Updates[0].ToolCall.Kind)
	require.NotNil(t, p.Active)
	assert.Equal(t, "call-1", p.Active.ToolCallID)

	eff = p.Handle(event.Event{Kind: event.KindExecDelta, CallID: "call-1", Text: "file.txt\n"})
	require.Len(t, eff.Updates, 1)
	require.Len(t, eff.Updates[0].ToolCall.Content, 1)
	assert.Equal(t, "file.txt\n", eff.Updates[0].ToolCall.Content[0].Text)

	eff = p.Handle(event.Event{Kind: event.KindExecEnd, CallID: "call-1", ExitCode: 0})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "completed", eff.Updates[0].ToolCall.Status)
	assert.Nil(t, p.Active)
}

func TestPrompt_ExecEnd_NonZeroExit_Fails(t *testing.T) {
	p := newTestPrompt()
	p.Handle(event.Event{Kind: event.KindExecBegin, CallID: "call-1"})
	eff := p.Handle(event.Event{Kind: event.KindExecEnd, CallID: "call-1", ExitCode: 1})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "failed", eff.Updates[0].ToolCall.Status)
}

func TestPrompt_ExecDelta_LiveTerminal_UsesMeta(t *testing.T) {
	p := NewPrompt("sess-1", backend.SubmissionID("sub-1"), acpwire.ClientCapabilities{LiveTerminal: true})
	p.Handle(event.Event{Kind: event.KindExecBegin, CallID: "call-1", Command: &event.ParsedCommand{TerminalHint: true}})
	require.NotNil(t, p.Active)
	assert.True(t, p.Active.LiveTerminal)

	eff := p.Handle(event.Event{Kind: event.KindExecDelta, CallID: "call-1", Text: "chunk"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "chunk", eff.Updates[0].ToolCall.Meta["terminal_output"])
}

func TestPrompt_ApplyPatchApprovalRequest(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindApplyPatchApprovalRequest, CallID: "call-2"})
	require.Len(t, eff.Updates, 1)
	opts, ok := eff.Updates[0].ToolCall.Meta["permission_options"].([]acpwire.PermissionOption)
	require.True(t, ok)
	assert.Len(t, opts, 2)
}

func TestPrompt_PatchApplyLifecycle(t *testing.T) {
	p := newTestPrompt()
	files := []event.PatchFileChange{{Path: "a.go", Diff: "+x", Kind: "modify"}}

	eff := p.Handle(event.Event{Kind: event.KindPatchApplyBegin, CallID: "call-2", PatchFiles: files})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "edit", eff.Updates[0].ToolCall.Kind)

	eff = p.Handle(event.Event{Kind: event.KindPatchApplyEnd, CallID: "call-2", PatchFiles: files})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "completed", eff.Updates[0].ToolCall.Status)
	assert.Nil(t, p.Active)
}

func TestPrompt_PatchApplyEnd_ErrMessage_Fails(t *testing.T) {
	p := newTestPrompt()
	p.Handle(event.Event{Kind: event.KindPatchApplyBegin, CallID: "call-2"})
	eff := p.Handle(event.Event{Kind: event.KindPatchApplyEnd, CallID: "call-2", ErrMessage: "conflict"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "failed", eff.Updates[0].ToolCall.Status)
}

func TestPrompt_McpToolCallLifecycle(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindMcpToolCallBegin, CallID: "call-3", Server: "fs", Tool: "read"})
	require.Len(t, eff.Updates, 1)
	assert.Contains(t, eff.Updates[0].ToolCall.Title, "fs/read")

	eff = p.Handle(event.Event{Kind: event.KindMcpToolCallEnd, CallID: "call-3"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "completed", eff.Updates[0].ToolCall.Status)

	eff = p.Handle(event.Event{Kind: event.KindMcpToolCallEnd, CallID: "call-4", ErrMessage: "boom"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "failed", eff.Updates[0].ToolCall.Status)
}

func TestPrompt_ViewImageToolCall(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindViewImageToolCall, CallID: "call-5", Text: "/tmp/image.png"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "read", eff.Updates[0].ToolCall.Kind)
	assert.Equal(t, "completed", eff.Updates[0].ToolCall.Status)
}

func TestPrompt_ElicitationRequest(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindElicitationRequest, CallID: "call-6"})
	require.Len(t, eff.Updates, 1)
	opts, ok := eff.Updates[0].ToolCall.Meta["permission_options"].([]acpwire.PermissionOption)
	require.True(t, ok)
	assert.Len(t, opts, 3)
}

func TestPrompt_ReviewModeEnter_NoEffect(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindReviewModeEnter})
	assert.Empty(t, eff.Updates)
	assert.Nil(t, eff.Stop)
}

func TestPrompt_ReviewModeExit_FormatsFindingsOverExplanation(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{
		Kind:        event.KindReviewModeExit,
		Explanation: "ignored when findings present",
		ReviewFindings: []event.ReviewFinding{
			{Title: "Nil deref", Location: "main.go:10", Description: "missing check"},
		},
	})
	require.Len(t, eff.Updates, 1)
	assert.Contains(t, eff.Updates[0].Text, "Nil deref")
	assert.NotContains(t, eff.Updates[0].Text, "ignored when findings present")
}

func TestPrompt_ReviewModeExit_FallsBackToExplanation(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindReviewModeExit, Explanation: "Reviewed per instructions: tidy up agents.md"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "Reviewed per instructions: tidy up agents.md", eff.Updates[0].Text)
}

func TestPrompt_ReviewModeExit_NoExplanationNoFindings_UsesFallback(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindReviewModeExit})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, reviewFallback, eff.Updates[0].Text)
}

func TestPrompt_TurnComplete_StopsWithEndTurn(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindTurnComplete, StopReason: "end_turn"})
	require.NotNil(t, eff.Stop)
	assert.Equal(t, acpwire.StopEndTurn, eff.Stop.Reason)
	assert.True(t, p.Completed)
}

func TestPrompt_TurnAborted_StopsWithCancelled(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindTurnAborted})
	require.NotNil(t, eff.Stop)
	assert.Equal(t, acpwire.StopCancelled, eff.Stop.Reason)
}

func TestPrompt_Error_StopsWithBackendError(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindError, ErrMessage: "boom"})
	require.NotNil(t, eff.Stop)
	require.NotNil(t, eff.Stop.Err)
	assert.True(t, p.Completed)
}

func TestPrompt_Background_NeverSetsStop(t *testing.T) {
	p := NewBackgroundPrompt("sess-1", backend.SubmissionID("sub-1"))
	eff := p.Handle(event.Event{Kind: event.KindTurnComplete, StopReason: "end_turn"})
	assert.Nil(t, eff.Stop)
	assert.True(t, p.Completed)
}

func TestPrompt_Completed_BecomesNoOp(t *testing.T) {
	p := newTestPrompt()
	p.Handle(event.Event{Kind: event.KindTurnComplete})
	require.True(t, p.Completed)

	eff := p.Handle(event.Event{Kind: event.KindAssistantMessageDelta, Text: "late"})
	assert.Empty(t, eff.Updates)
	assert.Nil(t, eff.Stop)
}

func TestPrompt_UnknownEventKind_Dropped(t *testing.T) {
	p := newTestPrompt()
	eff := p.Handle(event.Event{Kind: event.KindTokenCount, Usage: &event.TokenUsage{TotalTokens: 10}})
	assert.Empty(t, eff.Updates)
	assert.Nil(t, eff.Stop)
}

func TestResolveExecApproval(t *testing.T) {
	tests := []struct {
		name         string
		optionID     string
		cancelled    bool
		wantResolved string
	}{
		{"allow always", "allow-always", false, "approved-for-session"},
		{"allow once", "allow-once", false, "approved"},
		{"reject once", "reject-once", false, "abort"},
		{"cancelled overrides option", "allow-once", true, "abort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := ResolveExecApproval("sub-1", "call-1", tt.optionID, tt.cancelled)
			assert.Equal(t, backend.OpExecApprovalResolve, op.Kind)
			assert.Equal(t, "call-1", op.CallID)
			assert.Equal(t, tt.wantResolved, op.ResolutionID)
		})
	}
}

func TestResolvePatchApproval(t *testing.T) {
	assert.Equal(t, "approved", ResolvePatchApproval("call-1", "allow-once", false).ResolutionID)
	assert.Equal(t, "abort", ResolvePatchApproval("call-1", "reject-once", false).ResolutionID)
	assert.Equal(t, "abort", ResolvePatchApproval("call-1", "allow-once", true).ResolutionID)
}

func TestResolveElicitation(t *testing.T) {
	assert.Equal(t, "accept", ResolveElicitation("call-1", "accept", false).ResolutionID)
	assert.Equal(t, "cancel", ResolveElicitation("call-1", "accept", true).ResolutionID)
}
