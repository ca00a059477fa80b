package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

// TestTask_CompactSequence covers spec.md §8 scenario 2's Task variant: a
// single synthetic assistant-message-chunk followed by turn-complete,
// with the context_compacted event itself producing no client update.
func TestTask_CompactSequence(t *testing.T) {
	task := NewTask("sess-1", backend.SubmissionID("sub-1"), "compact")

	eff := task.Prompt.Handle(event.Event{Kind: event.KindContextCompacted})
	assert.Empty(t, eff.Updates, "context_compacted carries no client-visible update of its own")

	eff = task.Prompt.Handle(event.Event{Kind: event.KindAssistantMessageFinal, Text: "Compact task completed"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "Compact task completed", eff.Updates[0].Text)

	eff = task.Prompt.Handle(event.Event{Kind: event.KindTurnComplete, StopReason: "end_turn"})
	require.NotNil(t, eff.Stop)
	assert.Equal(t, acpwire.StopEndTurn, eff.Stop.Reason)
}

func TestTask_UndoSequence(t *testing.T) {
	task := NewTask("sess-1", backend.SubmissionID("sub-2"), "undo")

	eff := task.Prompt.Handle(event.Event{Kind: event.KindAssistantMessageFinal, Text: "Undo task completed"})
	require.Len(t, eff.Updates, 1)
	assert.Equal(t, "Undo task completed", eff.Updates[0].Text)

	eff = task.Prompt.Handle(event.Event{Kind: event.KindTurnComplete, StopReason: "end_turn"})
	require.NotNil(t, eff.Stop)
}

// TestTask_Background_NeverStops mirrors the auto-compact installed
// background state (spec.md §4.7): completion flips Completed but never
// produces a Stop.
func TestTask_Background_NeverStops(t *testing.T) {
	task := NewBackgroundTask("sess-1", backend.SubmissionID("sub-3"), "compact")
	eff := task.Prompt.Handle(event.Event{Kind: event.KindTurnComplete, StopReason: "end_turn"})
	assert.Nil(t, eff.Stop)
	assert.True(t, task.Prompt.Completed)
}
