package actor

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/canonical"
	"github.com/haegyung/xsfire-camp/internal/obslog"
)

const testTimeout = 2 * time.Second

// scriptedDriver replays a canned event sequence for whichever op kind a
// test configures, reusing one submission id across a request/approve
// continuation the way spec.md §8 scenario 5 requires. Submit runs on
// the actor's own goroutine, so pushing the script's events during
// Submit keeps them ordered after the command that triggered them, the
// same ordering guarantee internal/handler's tests rely on.
type scriptedDriver struct {
	mu      sync.Mutex
	events  chan event.Event
	scripts map[backend.OpKind][]event.Event
	submits []backend.Operation
	active  string
}

func newScriptedDriver() *scriptedDriver {
	return &scriptedDriver{events: make(chan event.Event, 256), scripts: map[backend.OpKind][]event.Event{}}
}

func (d *scriptedDriver) Submit(ctx context.Context, sessionID string, op backend.Operation) (backend.SubmissionID, error) {
	d.mu.Lock()
	d.submits = append(d.submits, op)
	if d.active == "" {
		d.active = "sub-1"
	}
	id := d.active
	script := d.scripts[op.Kind]
	d.mu.Unlock()

	for _, e := range script {
		e.SubmissionID = id
		d.events <- e
	}
	return backend.SubmissionID(id), nil
}

func (d *scriptedDriver) Events() <-chan event.Event { return d.events }
func (d *scriptedDriver) Close() error               { return nil }

func (d *scriptedDriver) lastSubmit() backend.Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits[len(d.submits)-1]
}

// capturingFacade records every Update emitted through it.
type capturingFacade struct {
	mu      sync.Mutex
	updates []acpwire.Update
	caps    acpwire.ClientCapabilities
}

func (f *capturingFacade) Emit(u acpwire.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func (f *capturingFacade) Capabilities() acpwire.ClientCapabilities { return f.caps }

func (f *capturingFacade) snapshot() []acpwire.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]acpwire.Update(nil), f.updates...)
}

func (f *capturingFacade) chunksOf(kind acpwire.UpdateKind) []acpwire.Update {
	var out []acpwire.Update
	for _, u := range f.snapshot() {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

// runTestActor starts a real Actor.Run loop over drv, returning the actor
// and its facade; the loop's context is cancelled at test cleanup.
func runTestActor(t *testing.T, drv backend.Driver) (*Actor, *capturingFacade) {
	t.Helper()
	t.Setenv("ACP_HOME", t.TempDir())
	log, ok := canonical.Init("global-"+t.Name(), "codex", "parent-1", "child-1", "/tmp", obslog.New(nil))
	require.True(t, ok)
	facade := &capturingFacade{}
	a := New("child-1", drv, facade, log, Config{}, obslog.New(nil))

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(cancel)
	return a, facade
}

func sendPrompt(t *testing.T, a *Actor, text string) PromptResult {
	t.Helper()
	resp := make(chan PromptResult, 1)
	select {
	case a.Inbound <- PromptCmd{Blocks: []acpwire.ContentBlock{{Type: "text", Text: text}}, Resp: resp}:
	case <-time.After(testTimeout):
		t.Fatal("timed out enqueueing prompt")
	}
	select {
	case r := <-resp:
		return r
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for prompt result")
		return PromptResult{}
	}
}

// TestScenario1_SimplePrompt covers spec.md §8 scenario 1: a delta then a
// final carrying the same text collapses to exactly one assistant-message
// chunk, with stop reason end_turn.
func TestScenario1_SimplePrompt(t *testing.T) {
	d := newScriptedDriver()
	d.scripts[backend.OpUserInput] = []event.Event{
		{Kind: event.KindAssistantMessageDelta, Text: "Hi"},
		{Kind: event.KindAssistantMessageFinal, Text: "Hi"},
		{Kind: event.KindTurnComplete, StopReason: "end_turn"},
	}
	a, facade := runTestActor(t, d)

	result := sendPrompt(t, a, "Hi")

	assert.Equal(t, acpwire.StopEndTurn, result.StopReason)
	assert.Nil(t, result.Err)

	chunks := facade.chunksOf(acpwire.UpdateAssistantMessageChunk)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hi", chunks[0].Text)
}

// TestScenario2_SlashCompact covers spec.md §8 scenario 2: /compact
// submits exactly a compact op and surfaces the synthetic "Compact task
// completed" chunk.
func TestScenario2_SlashCompact(t *testing.T) {
	d := newScriptedDriver()
	d.scripts[backend.OpCompact] = []event.Event{
		{Kind: event.KindContextCompacted},
		{Kind: event.KindAssistantMessageFinal, Text: "Compact task completed"},
		{Kind: event.KindTurnComplete, StopReason: "end_turn"},
	}
	a, facade := runTestActor(t, d)

	result := sendPrompt(t, a, "/compact")

	assert.Equal(t, acpwire.StopEndTurn, result.StopReason)
	assert.Equal(t, backend.OpCompact, d.lastSubmit().Kind)

	chunks := facade.chunksOf(acpwire.UpdateAssistantMessageChunk)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Compact task completed", chunks[0].Text)
}

// TestScenario3_ReviewWithInstructions covers spec.md §8 scenario 3:
// /review <instructions> submits a custom review target carrying the
// instructions verbatim and surfaces one echoed chunk.
func TestScenario3_ReviewWithInstructions(t *testing.T) {
	const instructions = "Review what we did in agents.md"
	d := newScriptedDriver()
	d.scripts[backend.OpReview] = []event.Event{
		{Kind: event.KindReviewModeEnter},
		{Kind: event.KindReviewModeExit, Explanation: "Reviewed per instructions: " + instructions},
		{Kind: event.KindTurnComplete, StopReason: "end_turn"},
	}
	a, facade := runTestActor(t, d)

	result := sendPrompt(t, a, "/review "+instructions)

	assert.Equal(t, acpwire.StopEndTurn, result.StopReason)

	submitted := d.lastSubmit()
	require.Equal(t, backend.OpReview, submitted.Kind)
	require.NotNil(t, submitted.Review)
	assert.Equal(t, "custom", submitted.Review.Kind)
	assert.Equal(t, instructions, submitted.Review.Instructions)

	chunks := facade.chunksOf(acpwire.UpdateAssistantMessageChunk)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, instructions)
}

// TestScenario4_CustomPromptExpansion covers spec.md §8 scenario 4: a
// discovered custom prompt expands its placeholder before the text
// reaches the backend as a plain user_input op.
func TestScenario4_CustomPromptExpansion(t *testing.T) {
	d := newScriptedDriver()
	d.scripts[backend.OpUserInput] = []event.Event{
		{Kind: event.KindAssistantMessageFinal, Text: "ok"},
		{Kind: event.KindTurnComplete, StopReason: "end_turn"},
	}
	a, _ := runTestActor(t, d)
	a.CustomPrompts = []CustomPrompt{{Name: "custom", Content: "Custom prompt with $1 arg."}}

	result := sendPrompt(t, a, "/custom foo")

	assert.Equal(t, acpwire.StopEndTurn, result.StopReason)
	submitted := d.lastSubmit()
	require.Equal(t, backend.OpUserInput, submitted.Kind)
	require.Len(t, submitted.Items, 1)
	assert.Equal(t, "Custom prompt with foo arg.", submitted.Items[0].Text)
}

// TestScenario5_CanonicalCorrelationOrdering covers spec.md §8 scenario 5:
// the canonical log for a /diff flow carries, in file order, acp.prompt,
// acp.plan, acp.request_permission, acp.request_permission_response and
// acp.tool_call records, with matching tool_call_id between the
// permission request and the tool-call record.
func TestScenario5_CanonicalCorrelationOrdering(t *testing.T) {
	d := newScriptedDriver()
	d.scripts[backend.OpUserInput] = []event.Event{
		{Kind: event.KindPlanUpdate, Plan: []event.PlanEntry{{Step: "Run git diff", Status: "in_progress"}}, Explanation: "diffing the working tree"},
		{Kind: event.KindExecApprovalRequest, CallID: "call-1", Command: &event.ParsedCommand{Program: "git", Args: []string{"diff"}}},
	}
	a, _ := runTestActor(t, d)
	globalSessionID := "global-" + t.Name()

	resp := make(chan PromptResult, 1)
	select {
	case a.Inbound <- PromptCmd{Blocks: []acpwire.ContentBlock{{Type: "text", Text: "/diff"}}, Resp: resp}:
	case <-time.After(testTimeout):
		t.Fatal("timed out enqueueing prompt")
	}

	// give the actor loop a beat to process the plan/approval-request
	// events before the approval resolution is submitted.
	time.Sleep(50 * time.Millisecond)

	d.scripts[backend.OpExecApprovalResolve] = []event.Event{
		{Kind: event.KindExecBegin, CallID: "call-1", Command: &event.ParsedCommand{Program: "git", Args: []string{"diff"}}},
		{Kind: event.KindExecEnd, CallID: "call-1"},
		{Kind: event.KindTurnComplete, StopReason: "end_turn"},
	}
	resolveResp := make(chan struct{})
	select {
	case a.Inbound <- ResolvePermissionCmd{Kind: "exec", CallID: "call-1", OptionID: "allow-once", Resp: resolveResp}:
	case <-time.After(testTimeout):
		t.Fatal("timed out enqueueing permission resolution")
	}
	select {
	case <-resolveResp:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for permission resolution")
	}

	select {
	case result := <-resp:
		assert.Equal(t, acpwire.StopEndTurn, result.StopReason)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for prompt result")
	}

	kinds, records := readCanonicalKinds(t, globalSessionID)
	require.Contains(t, kinds, "acp.prompt")
	require.Contains(t, kinds, "acp.plan")
	require.Contains(t, kinds, "acp.request_permission")
	require.Contains(t, kinds, "acp.request_permission_response")
	require.Contains(t, kinds, "acp.tool_call")

	order := indicesOf(kinds, "acp.prompt", "acp.plan", "acp.request_permission", "acp.request_permission_response", "acp.tool_call")
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i], "expected %v in file order", order)
	}

	reqToolCallID := fieldString(t, records, "acp.request_permission", "tool_call_id")
	callToolCallID := fieldString(t, records, "acp.tool_call", "tool_call_id")
	assert.Equal(t, reqToolCallID, callToolCallID)

	planRecord := onlyRecordData(t, records, "acp.plan")
	assert.Contains(t, planRecord, "explanation")
}

// TestRewireCmd_ProcessedOnActorLoop exercises the RewireCmd path that
// replaces the handler's former direct mutation of Driver/SessionID
// (spec.md §5's single-threaded model).
func TestRewireCmd_ProcessedOnActorLoop(t *testing.T) {
	d1 := newScriptedDriver()
	a, _ := runTestActor(t, d1)

	d2 := newScriptedDriver()
	resp := make(chan struct{})
	select {
	case a.Inbound <- RewireCmd{Driver: d2, SessionID: "child-2", Resp: resp}:
	case <-time.After(testTimeout):
		t.Fatal("timed out enqueueing rewire")
	}
	select {
	case <-resp:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for rewire")
	}

	assert.Equal(t, "child-2", a.SessionID)

	// the rewired driver now answers subsequent submissions.
	d2.scripts[backend.OpUserInput] = []event.Event{
		{Kind: event.KindAssistantMessageFinal, Text: "via d2"},
		{Kind: event.KindTurnComplete, StopReason: "end_turn"},
	}
	result := sendPrompt(t, a, "hello again")
	assert.Equal(t, acpwire.StopEndTurn, result.StopReason)
	assert.Empty(t, d1.submits) // d1 never saw a submission
}

func readCanonicalKinds(t *testing.T, globalSessionID string) ([]string, []map[string]any) {
	t.Helper()
	path := filepath.Join(canonical.Home(), "sessions", globalSessionID, "canonical.jsonl")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
		kinds = append(kinds, rec["kind"].(string))
	}
	require.NoError(t, scanner.Err())
	return kinds, records
}

func indicesOf(kinds []string, wanted ...string) []int {
	idx := make([]int, len(wanted))
	for i, w := range wanted {
		for j, k := range kinds {
			if k == w {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

func fieldString(t *testing.T, records []map[string]any, kind, field string) string {
	t.Helper()
	data := onlyRecordData(t, records, kind)
	v, _ := data[field].(string)
	return v
}

func onlyRecordData(t *testing.T, records []map[string]any, kind string) map[string]any {
	t.Helper()
	for _, rec := range records {
		if rec["kind"] == kind {
			data, _ := rec["data"].(map[string]any)
			return data
		}
	}
	t.Fatalf("no canonical record of kind %q", kind)
	return nil
}
