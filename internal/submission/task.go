package submission

import (
	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
)

// Task is a thin wrapper around Prompt (spec.md §4.5.2): used for
// built-in compact/undo ops that produce a single synthetic
// assistant-message-chunk followed by turn-complete. Task adds no
// behavior of its own; it exists as a distinct type only so the actor's
// submission map can record which catalog entry spawned it, for
// diagnostics and for the auto-compact background-install path.
type Task struct {
	*Prompt
	Label string // "compact" | "undo"
}

// NewTask wraps a foreground Prompt as a Task.
func NewTask(sessionID string, id backend.SubmissionID, label string) *Task {
	return &Task{Prompt: NewPrompt(sessionID, id, acpwire.ClientCapabilities{}), Label: label}
}

// NewBackgroundTask wraps a background Prompt as a Task (used for
// auto-compact's installed background state, spec.md §4.7).
func NewBackgroundTask(sessionID string, id backend.SubmissionID, label string) *Task {
	return &Task{Prompt: NewBackgroundPrompt(sessionID, id), Label: label}
}
