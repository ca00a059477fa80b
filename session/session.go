// Package session defines the data model shared by the Thread Actor and
// the Multi-Backend Router: the Session entity, its option keys, and the
// small option-parsing helpers used throughout the adapter.
package session

import "github.com/haegyung/xsfire-camp/backend"

// Session is the minimal, process-wide state for one Agent Protocol
// thread. It is a value type — it carries identity and configuration but
// no runtime state (no mutexes, no channels, no backend handles). The
// Thread Actor and the Router each wrap a Session with their own runtime
// state; Session itself is safe to copy.
//
// Session.CWD is immutable after creation (spec.md §3). Sessions outlive
// individual submissions and are never destroyed during the process
// lifetime.
type Session struct {
	// ID is the opaque, client-visible session id. For router-owned
	// sessions this is the "multi:<uuid>" virtual id (C9); for
	// non-routed sessions it is whatever the backend minted.
	ID string

	// CWD is the absolute working directory for the session. Immutable
	// after creation.
	CWD string

	// Model is the optional model identifier in effect for the session.
	Model string

	// ReasoningEffort is the optional reasoning-effort level, valid only
	// when Model supports more than one effort tier.
	ReasoningEffort string

	// ApprovalPreset names the active approval/sandbox preset.
	ApprovalPreset string

	// Personality is an optional persona identifier applied to the
	// backend's responses.
	Personality string

	// ContextMonitorMode overrides the process-wide context monitor
	// default (see ctxmonitor) for this session specifically.
	ContextMonitorMode string

	// ContextTriggerPercent overrides the process-wide auto-compact
	// trigger threshold for this session.
	ContextTriggerPercent int

	// Backend is the active backend kind for this thread.
	Backend backend.Kind

	// ChildSessions maps backend kind to the child session id the
	// Multi-Backend Router created in that backend. Empty/nil for
	// non-routed sessions.
	ChildSessions map[backend.Kind]string
}

// Clone returns a deep copy of s, cloning ChildSessions.
func (s Session) Clone() Session {
	if s.ChildSessions != nil {
		cloned := make(map[backend.Kind]string, len(s.ChildSessions))
		for k, v := range s.ChildSessions {
			cloned[k] = v
		}
		s.ChildSessions = cloned
	}
	return s
}

// ApprovalPreset values. Presets that grant write or full-access
// sandboxing cause the Thread Actor to mark the session id as trusted in
// an in-memory set (spec.md §4.6.2, set-mode handling); the session's
// CWD is not recorded and nothing is persisted.
const (
	ApprovalReadOnly   = "read-only"
	ApprovalWriteAuto  = "write-auto"
	ApprovalFullAccess = "full-access"
)

// WritesFiles reports whether preset grants write or full-access
// sandboxing.
func WritesFiles(preset string) bool {
	return preset == ApprovalWriteAuto || preset == ApprovalFullAccess
}

// ContextMonitorMode values (C7).
const (
	MonitorOff     = "off"
	MonitorMonitor = "monitor"
	MonitorAuto    = "auto"
)

// TaskOrchestrationMode values (C6.2's "Sequential" gate).
const (
	OrchestrationSequential = "sequential"
	OrchestrationParallel   = "parallel"
)
