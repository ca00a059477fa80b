package codex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

func TestNewSession_ThenSubmitUserInput(t *testing.T) {
	e := New()
	ctx := context.Background()

	sessionID, err := e.NewSession(ctx, "/tmp", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	id, err := e.Submit(ctx, sessionID, backend.Operation{
		Kind:  backend.OpUserInput,
		Items: []backend.InputItem{{Kind: "text", Text: "hello"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var sawFinal, sawComplete bool
	for ev := range collectFor(t, e.Events(), 5, 2*time.Second) {
		if ev.Kind == event.KindAssistantMessageFinal {
			sawFinal = true
			assert.Contains(t, ev.Text, "hello")
		}
		if ev.Kind == event.KindTurnComplete {
			sawComplete = true
			assert.Equal(t, string(id), ev.SubmissionID)
		}
	}
	assert.True(t, sawFinal)
	assert.True(t, sawComplete)
}

func TestSubmit_UnknownSession(t *testing.T) {
	e := New()
	_, err := e.Submit(context.Background(), "nope", backend.Operation{Kind: backend.OpUserInput})
	assert.Error(t, err)
}

func TestLoadSession_RegistersUnknownID(t *testing.T) {
	e := New()
	err := e.LoadSession(context.Background(), "resumed-session")
	require.NoError(t, err)

	_, err = e.Submit(context.Background(), "resumed-session", backend.Operation{Kind: backend.OpInterrupt})
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	e := New()
	assert.ElementsMatch(t, []string{"chatgpt", "codex-api-key", "openai-api-key"}, e.AuthMethods())
	assert.NoError(t, e.Authenticate(context.Background(), "chatgpt"))
	assert.Error(t, e.Authenticate(context.Background(), "bogus"))
}

// TestSubmit_OpCompact_EmitsSyntheticAssistantChunk covers spec.md §8
// scenario 2: the Task variant needs a single synthetic
// assistant-message-chunk ahead of turn-complete, not just the
// context_compacted marker.
func TestSubmit_OpCompact_EmitsSyntheticAssistantChunk(t *testing.T) {
	e := New()
	sessionID, err := e.NewSession(context.Background(), "/tmp", nil, nil)
	require.NoError(t, err)

	id, err := e.Submit(context.Background(), sessionID, backend.Operation{Kind: backend.OpCompact})
	require.NoError(t, err)

	var sawFinal, sawComplete bool
	for ev := range collectFor(t, e.Events(), 3, 2*time.Second) {
		assert.Equal(t, string(id), ev.SubmissionID)
		if ev.Kind == event.KindAssistantMessageFinal {
			sawFinal = true
			assert.Equal(t, "Compact task completed", ev.Text)
		}
		if ev.Kind == event.KindTurnComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawFinal)
	assert.True(t, sawComplete)
}

// TestSubmit_OpReview_CustomInstructions covers spec.md §8 scenario 3: codex must handle
// OpReview instead of falling through to the unsupported-operation
// default, producing a review-mode-exit explanation that carries the
// submitted custom instructions.
func TestSubmit_OpReview_CustomInstructions(t *testing.T) {
	e := New()
	sessionID, err := e.NewSession(context.Background(), "/tmp", nil, nil)
	require.NoError(t, err)

	id, err := e.Submit(context.Background(), sessionID, backend.Operation{
		Kind:   backend.OpReview,
		Review: &backend.ReviewTarget{Kind: "custom", Instructions: "Review what we did in agents.md"},
	})
	require.NoError(t, err)

	var sawExit, sawComplete bool
	for ev := range collectFor(t, e.Events(), 3, 2*time.Second) {
		assert.Equal(t, string(id), ev.SubmissionID)
		if ev.Kind == event.KindReviewModeExit {
			sawExit = true
			assert.Equal(t, "Reviewed per instructions: Review what we did in agents.md", ev.Explanation)
		}
		if ev.Kind == event.KindTurnComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawExit)
	assert.True(t, sawComplete)
}

func TestSubmit_OpReview_Uncommitted(t *testing.T) {
	e := New()
	sessionID, err := e.NewSession(context.Background(), "/tmp", nil, nil)
	require.NoError(t, err)

	_, err = e.Submit(context.Background(), sessionID, backend.Operation{
		Kind:   backend.OpReview,
		Review: &backend.ReviewTarget{Kind: "uncommitted"},
	})
	require.NoError(t, err)

	for ev := range collectFor(t, e.Events(), 3, 2*time.Second) {
		if ev.Kind == event.KindReviewModeExit {
			assert.Equal(t, "Reviewed uncommitted changes.", ev.Explanation)
		}
	}
}

// collectFor drains up to n events or until timeout, returning them on a
// closed channel for range.
func collectFor(t *testing.T, events <-chan event.Event, n int, timeout time.Duration) <-chan event.Event {
	t.Helper()
	out := make(chan event.Event, n)
	go func() {
		defer close(out)
		deadline := time.After(timeout)
		for i := 0; i < n; i++ {
			select {
			case ev := <-events:
				out <- ev
			case <-deadline:
				return
			}
		}
	}()
	return out
}
