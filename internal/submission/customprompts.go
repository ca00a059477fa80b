package submission

import (
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
)

// CustomPrompts waits for a single list-custom-prompts response and
// signals the list back through a dedicated one-shot channel, not a
// stop-reason channel (spec.md §4.5.4) — the caller's response type
// differs from the other three variants, so the Handle return carries
// the list directly rather than through Effects.Stop.
type CustomPrompts struct {
	SessionID    string
	SubmissionID backend.SubmissionID
	Completed    bool
}

// NewCustomPrompts constructs a CustomPrompts submission.
func NewCustomPrompts(sessionID string, id backend.SubmissionID) *CustomPrompts {
	return &CustomPrompts{SessionID: sessionID, SubmissionID: id}
}

// Result is the value delivered to the dedicated one-shot channel.
type Result struct {
	Prompts []event.CustomPromptInfo
	Err     *Stop
}

// Handle consumes the expected listing event and returns the completed
// Result, or nil if e is not the event this submission waits for.
func (c *CustomPrompts) Handle(e event.Event) *Result {
	if c.Completed {
		return nil
	}
	switch e.Kind {
	case event.KindListCustomPromptsResponse:
		c.Completed = true
		return &Result{Prompts: e.CustomPrompts}
	case event.KindError:
		c.Completed = true
		return &Result{Err: &Stop{Reason: ""}}
	}
	return nil
}
