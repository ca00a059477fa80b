// Package ctxmonitor implements C7: observing token-usage events,
// staging and triggering automatic compaction on threshold crossing, and
// tracking the in-flight auto-compact submission's lifecycle (spec.md
// §4.7). Defaults apply uniformly to every backend kind the router
// lazily creates (SPEC_FULL.md §6.2's Open Question resolution).
package ctxmonitor

import (
	"os"
	"strconv"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/internal/canonical"
)

// Mode is the context-optimization mode (spec.md §4.7).
type Mode string

const (
	Off     Mode = "off"
	Monitor Mode = "monitor"
	Auto    Mode = "auto"
)

const defaultTriggerPercent = 90

var validTriggerPercents = map[int]bool{75: true, 80: true, 85: true, 90: true, 95: true}

// DefaultMode resolves Mode from ACP_CONTEXT_OPT_MODE, defaulting to
// Monitor.
func DefaultMode() Mode {
	switch os.Getenv("ACP_CONTEXT_OPT_MODE") {
	case "off":
		return Off
	case "auto":
		return Auto
	case "monitor":
		return Monitor
	default:
		return Monitor
	}
}

// DefaultTriggerPercent resolves the trigger percent from
// ACP_CONTEXT_OPT_TRIGGER_PERCENT, validating it against {75,80,85,90,95}
// and defaulting to 90 otherwise.
func DefaultTriggerPercent() int {
	if v := os.Getenv("ACP_CONTEXT_OPT_TRIGGER_PERCENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && validTriggerPercents[n] {
			return n
		}
	}
	return defaultTriggerPercent
}

// TokenUsage is the last-observed token-count record.
type TokenUsage struct {
	TotalTokens int
	Window      int
	UsedPercent int
}

// PendingAutoCompact is staged when a token-count event crosses the
// trigger threshold in Auto mode (spec.md §3).
type PendingAutoCompact struct {
	SubmissionID backend.SubmissionID
	UsedPercent  int
	TotalTokens  int
	Window       int
}

// State is the per-session context monitor (spec.md §4.7).
type State struct {
	Mode          Mode
	TriggerPercent int

	LastPromptTokens int
	LastUsage        *TokenUsage
	Pending          *PendingAutoCompact
	InFlightID       backend.SubmissionID // empty when none in flight
	TriggeredCount   int

	// seenSubmissions tracks which submission ids already received a
	// token-count observation, so Observe only stages Pending on the
	// first observation for a given submission (spec.md §4.7).
	seenSubmissions map[backend.SubmissionID]bool
}

// New constructs a State with the given mode/trigger, defaulting both
// when zero-valued.
func New(mode Mode, triggerPercent int) *State {
	if mode == "" {
		mode = DefaultMode()
	}
	if triggerPercent == 0 {
		triggerPercent = DefaultTriggerPercent()
	}
	return &State{
		Mode:            mode,
		TriggerPercent:  triggerPercent,
		seenSubmissions: make(map[backend.SubmissionID]bool),
	}
}

// Observe handles one token-count event: records usage, logs a
// canonical event, and in Auto mode stages a PendingAutoCompact when
// the submission's first token-count observation is at or above the
// trigger percent; later observations of the same submission never stage.
func (s *State) Observe(log *canonical.Handle, submissionID backend.SubmissionID, totalTokens, window int) {
	usedPercent := 0
	if window > 0 {
		usedPercent = int(roundFloat(float64(totalTokens) / float64(window) * 100))
	}
	s.LastUsage = &TokenUsage{TotalTokens: totalTokens, Window: window, UsedPercent: usedPercent}

	log.Log("token_count", map[string]any{
		"submission_id": string(submissionID),
		"total_tokens":  totalTokens,
		"window":        window,
		"used_percent":  usedPercent,
		"mode":          string(s.Mode),
		"trigger":       s.TriggerPercent,
	})

	if s.Mode != Auto {
		return
	}
	if s.seenSubmissions[submissionID] {
		return
	}
	s.seenSubmissions[submissionID] = true

	if s.Pending != nil {
		return
	}
	if usedPercent >= s.TriggerPercent {
		s.Pending = &PendingAutoCompact{
			SubmissionID: submissionID,
			UsedPercent:  usedPercent,
			TotalTokens:  totalTokens,
			Window:       window,
		}
	}
}

func roundFloat(f float64) float64 {
	if f < 0 {
		return float64(int(f - 0.5))
	}
	return float64(int(f + 0.5))
}

// ConsumeIfMatching returns and clears Pending if it is bound to
// submissionID; the caller (C6) uses this after a turn-complete event to
// decide whether to submit a background compact operation.
func (s *State) ConsumeIfMatching(submissionID backend.SubmissionID) (PendingAutoCompact, bool) {
	if s.Pending == nil || s.Pending.SubmissionID != submissionID {
		return PendingAutoCompact{}, false
	}
	p := *s.Pending
	s.Pending = nil
	return p, true
}

// BeginAutoCompact records the newly submitted compact operation's id as
// in-flight and increments the triggered-auto-compact counter
// ("increment the counter" in spec.md §4.7, counted at trigger time).
func (s *State) BeginAutoCompact(id backend.SubmissionID) {
	s.InFlightID = id
	s.TriggeredCount++
}

// IsInFlight reports whether id is the tracked in-flight auto-compact
// submission.
func (s *State) IsInFlight(id backend.SubmissionID) bool {
	return s.InFlightID != "" && s.InFlightID == id
}

// ClearInFlight clears the in-flight id, used both on successful
// completion and on error (spec.md §4.7's last two sentences).
func (s *State) ClearInFlight() {
	s.InFlightID = ""
}
