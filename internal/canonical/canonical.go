// Package canonical implements C1, the append-only per-session JSONL
// event log with secret redaction and the process-wide global session
// index (spec.md §4.1). Grounded on the teacher's atomic-write instinct
// (none of its own files do disk I/O, so the shape here follows
// subluminal's pkg/policy loader for the read-modify-atomic-rename cycle)
// and on original_source/session_store.rs for the exact index semantics.
package canonical

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
	"go.uber.org/zap"

	"github.com/haegyung/xsfire-camp/internal/obslog"
)

// secretPattern matches an sk- prefixed token of at least 20 further
// alphanumerics, the exact shape spec.md §4.1 and §8's redaction property
// name.
var secretPattern = regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)

const redactedLiteral = "sk-REDACTED"

// Redact walks v recursively and replaces every matching substring in
// every string value (object values and array elements; object keys are
// left unchanged, per spec.md §4.1).
func Redact(v any) any {
	switch t := v.(type) {
	case string:
		return secretPattern.ReplaceAllString(t, redactedLiteral)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Redact(e)
		}
		return out
	case map[string]any:
		redacted := make(map[string]any, len(t))
		for k, val := range t {
			redacted[k] = Redact(val)
		}
		return redacted
	default:
		return v
	}
}

// CanonicalEvent is the schema appended to canonical.jsonl (spec.md §3).
type CanonicalEvent struct {
	SchemaVersion    int             `json:"schema_version"`
	TimestampMs      int64           `json:"timestamp_ms"`
	GlobalSessionID  string          `json:"global_session_id"`
	Backend          string          `json:"backend"`
	AcpSessionID     string          `json:"acp_session_id"`
	BackendSessionID string          `json:"backend_session_id"`
	Kind             string          `json:"kind"`
	Data             json.RawMessage `json:"data"`
}

const schemaVersion = 1

// Home resolves the ACP home directory: $ACP_HOME if set and non-empty,
// else $HOME/.acp (spec.md §4.1).
func Home() string {
	if h := os.Getenv("ACP_HOME"); h != "" {
		return h
	}
	return filepath.Join(os.Getenv("HOME"), ".acp")
}

// Index is the process-wide global session index, <acp_home>/index.json,
// a JSON object mapping a scoped key to a minted UUID v4 (spec.md §4.1,
// original_source/session_store.rs).
type Index struct {
	mu   sync.Mutex
	path string
	data map[string]string
	log  *obslog.Logger
}

// OpenIndex loads (or lazily creates on first write) the index file at
// <home>/index.json.
func OpenIndex(home string, log *obslog.Logger) *Index {
	if log == nil {
		log = obslog.Default()
	}
	idx := &Index{path: filepath.Join(home, "index.json"), data: map[string]string{}, log: log}
	b, err := os.ReadFile(idx.path)
	if err == nil {
		_ = json.Unmarshal(b, &idx.data)
	}
	return idx
}

// GetOrCreate returns the existing UUID bound to scopedKey, or mints a
// fresh UUID v4, persists the index atomically, and returns that. Write
// failures are logged and swallowed; the in-memory mapping still takes
// effect for the rest of the process (spec.md §7 recovery policy).
func (idx *Index) GetOrCreate(scopedKey string) string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.data[scopedKey]; ok {
		return id
	}
	id := uuid.NewString()
	idx.data[scopedKey] = id
	idx.persistLocked()
	return id
}

func (idx *Index) persistLocked() {
	b, err := json.MarshalIndent(idx.data, "", "  ")
	if err != nil {
		idx.log.Error("canonical: marshal index failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		idx.log.Error("canonical: mkdir index dir failed", zap.Error(err))
		return
	}
	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		idx.log.Error("canonical: write index tmp failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		idx.log.Error("canonical: rename index tmp failed", zap.Error(err))
	}
}

// Handle is the per-session log handle returned by Init. It is cheap to
// clone (spec.md §5, "shared by clone across submissions within a
// session"): Handle itself holds only pointers to the shared file and
// mutex.
type Handle struct {
	globalSessionID  string
	backendLabel     string
	acpSessionID     string
	backendSessionID string

	mu  *sync.Mutex
	f   *os.File
	log *obslog.Logger
}

// Init resolves acp_home, writes sessions/<id>/state.json as a one-shot
// snapshot, opens canonical.jsonl for append, and returns a Handle. It
// returns (nil, false) if the base directory cannot be resolved or
// created — callers silently skip canonical logging, matching spec.md
// §4.1's "returns nothing if the base directory cannot be resolved".
func Init(globalSessionID, backendLabel, acpSessionID, backendSessionID string, cwd string, log *obslog.Logger) (*Handle, bool) {
	if log == nil {
		log = obslog.Default()
	}
	home := Home()
	dir := filepath.Join(home, "sessions", globalSessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("canonical: session dir unresolvable", zap.Error(err))
		return nil, false
	}
	if err := os.MkdirAll(filepath.Join(dir, "backends", backendLabel), 0o755); err != nil {
		log.Warn("canonical: backend subdir create failed", zap.Error(err))
	}

	state := map[string]any{
		"global_session_id":  globalSessionID,
		"backend":            backendLabel,
		"acp_session_id":     acpSessionID,
		"backend_session_id": backendSessionID,
		"cwd":                cwd,
		"created_at_ms":      nowMs(),
	}
	if b, err := json.MarshalIndent(state, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "state.json"), b, 0o644)
	}

	f, err := os.OpenFile(filepath.Join(dir, "canonical.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error("canonical: open canonical.jsonl failed", zap.Error(err))
		return nil, false
	}

	return &Handle{
		globalSessionID:  globalSessionID,
		backendLabel:     backendLabel,
		acpSessionID:     acpSessionID,
		backendSessionID: backendSessionID,
		mu:               &sync.Mutex{},
		f:                f,
		log:              log,
	}, true
}

// Clone returns a Handle sharing the same underlying file and mutex, for
// handing to a new submission within the same session (spec.md §5).
func (h *Handle) Clone() *Handle {
	clone := *h
	return &clone
}

// Log appends one CanonicalEvent. data is redacted recursively before
// marshaling. I/O failures and a poisoned mutex (recovered via the defer
// below, since Go mutexes don't truly poison but a panicking writer
// could otherwise wedge the session) are logged and the event dropped,
// never propagated (spec.md §4.1, §7).
func (h *Handle) Log(kind string, data any) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("canonical: log panicked, event dropped", zap.Any("panic", r))
		}
	}()

	redacted := Redact(data)
	raw, err := json.Marshal(redacted)
	if err != nil {
		h.log.Error("canonical: marshal event failed, dropped", zap.Error(err))
		return
	}

	ev := CanonicalEvent{
		SchemaVersion:    schemaVersion,
		TimestampMs:      nowMs(),
		GlobalSessionID:  h.globalSessionID,
		Backend:          h.backendLabel,
		AcpSessionID:     h.acpSessionID,
		BackendSessionID: h.backendSessionID,
		Kind:             kind,
		Data:             raw,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("canonical: marshal envelope failed, dropped", zap.Error(err))
		return
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.f.Write(line); err != nil {
		h.log.Error("canonical: append failed, dropped", zap.Error(err))
	}
}

// Close releases the underlying file handle.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	return h.f.Close()
}

func nowMs() int64 { return time.Now().UnixMilli() }

// TruncateGraphemes truncates s to at most n grapheme clusters, appending
// the "...[truncated]" marker when truncation occurred. Used for
// embedded-context logging (ACP_LOG_MAX_TEXT_CHARS clusters, via
// prompttrans.Summarize), counted with uniseg rather than runes so a
// combining-mark or multi-codepoint emoji sequence is never split
// (SPEC_FULL.md §6.1).
func TruncateGraphemes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	g := uniseg.NewGraphemes(s)
	cut := len(s)
	for g.Next() {
		count++
		if count == n {
			_, cut = g.Positions()
			if g.Next() {
				return s[:cut] + "...[truncated]"
			}
			return s[:cut]
		}
	}
	return s
}

