// Package router implements C9, the Multi-Backend Router: it virtualizes
// one parent (client-visible) session over up to three lazily-created
// child backend sessions, so a thread can switch which backend kind is
// answering it without the client ever seeing a different session id.
//
// Grounded on original_source/multi_backend.rs's MultiBackendDriver:
// RoutedSession, ensure_backend_session's lazy/idempotent child
// creation, new_session's default-backend selection and "multi:<uuid>"
// minting, load_session's always-codex delegation, and
// set_session_config_option's "backend" id special-case.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/alias"
	"github.com/haegyung/xsfire-camp/internal/obslog"
)

// RoutedSession is the router's per-parent-session bookkeeping,
// mirroring multi_backend.rs's RoutedSession struct field for field.
type RoutedSession struct {
	ActiveBackend        backend.Kind
	BackendSessions       map[backend.Kind]string
	BackendConfigOptions map[backend.Kind][]acpwire.ConfigOption
	CWD                  string
	McpServers           []string
	Meta                 json.RawMessage
}

// Router owns one lazily-constructed Driver per routable backend.Kind
// and the parent→child session mapping.
type Router struct {
	factories map[backend.Kind]backend.Factory
	alias     *alias.Table
	log       *obslog.Logger

	mu       sync.Mutex
	drivers  map[backend.Kind]backend.Driver
	sessions map[string]*RoutedSession
}

// New constructs a Router. factories must supply an entry for each of
// backend.Codex, backend.ClaudeCode, backend.Gemini.
func New(factories map[backend.Kind]backend.Factory, aliasTable *alias.Table, log *obslog.Logger) *Router {
	return &Router{
		factories: factories,
		alias:     aliasTable,
		log:       log,
		drivers:   make(map[backend.Kind]backend.Driver),
		sessions:  make(map[string]*RoutedSession),
	}
}

// DefaultBackend resolves XSFIRE_DEFAULT_BACKEND, falling back to
// backend.Codex — matches multi_backend.rs's default_backend(), which
// rejects a Multi override.
func DefaultBackend() backend.Kind {
	if v := strings.TrimSpace(os.Getenv("XSFIRE_DEFAULT_BACKEND")); v != "" {
		if k, err := backend.Parse(v); err == nil && k != backend.Multi {
			return k
		}
	}
	return backend.Codex
}

// driverFor lazily constructs and caches the Driver for kind.
func (r *Router) driverFor(ctx context.Context, kind backend.Kind) (backend.Driver, error) {
	r.mu.Lock()
	if d, ok := r.drivers[kind]; ok {
		r.mu.Unlock()
		return d, nil
	}
	factory, ok := r.factories[kind]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("router: no factory registered for backend %q", kind)
	}
	d, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("router: construct %s driver: %w", kind, err)
	}
	r.mu.Lock()
	r.drivers[kind] = d
	r.mu.Unlock()
	return d, nil
}

// backendConfigOption builds the synthetic "Backend" select option
// (multi_backend.rs's backend_config_option).
func backendConfigOption(active backend.Kind) acpwire.ConfigOption {
	return acpwire.ConfigOption{
		ID:      "backend",
		Label:   "Backend",
		Kind:    "select",
		Value:   active.String(),
		Choices: []string{backend.Codex.String(), backend.ClaudeCode.String(), backend.Gemini.String()},
	}
}

// mergeActiveOptions replaces any existing "backend" entry in options
// with one reflecting active, matching merge_active_options /
// with_backend_option (the two converge to the same behavior in the
// Rust source).
func mergeActiveOptions(active backend.Kind, options []acpwire.ConfigOption) []acpwire.ConfigOption {
	out := make([]acpwire.ConfigOption, 0, len(options)+1)
	for _, opt := range options {
		if opt.ID != "backend" {
			out = append(out, opt)
		}
	}
	return append(out, backendConfigOption(active))
}

// EnsureBackendSession lazily creates (or returns the existing) child
// session for parentID on kind, replaying the parent's stored
// cwd/mcp/meta. Idempotent per (parentID, kind).
func (r *Router) EnsureBackendSession(ctx context.Context, parentID string, kind backend.Kind) (string, error) {
	r.mu.Lock()
	session, ok := r.sessions[parentID]
	if !ok {
		r.mu.Unlock()
		return "", acpwire.NewError(acpwire.ErrResourceNotFound, fmt.Sprintf("unknown session %q", parentID))
	}
	if existing, ok := session.BackendSessions[kind]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	cwd, mcpServers, meta := session.CWD, session.McpServers, session.Meta
	r.mu.Unlock()

	driver, err := r.driverFor(ctx, kind)
	if err != nil {
		return "", err
	}
	spawner, ok := driver.(backend.SessionSpawner)
	if !ok {
		return "", fmt.Errorf("router: %s driver does not support session creation", kind)
	}
	childID, err := spawner.NewSession(ctx, cwd, mcpServers, meta)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	session, ok = r.sessions[parentID]
	if !ok {
		r.mu.Unlock()
		return "", acpwire.NewError(acpwire.ErrResourceNotFound, fmt.Sprintf("unknown session %q", parentID))
	}
	session.BackendSessions[kind] = childID
	if session.BackendConfigOptions == nil {
		session.BackendConfigOptions = make(map[backend.Kind][]acpwire.ConfigOption)
	}
	r.mu.Unlock()

	r.alias.Register(childID, parentID)
	return childID, nil
}

// NewSession mints a "multi:<uuid>" parent session id on the default
// backend, matching new_session.
func (r *Router) NewSession(ctx context.Context, cwd string, mcpServers []string) (string, []acpwire.ConfigOption, error) {
	kind := DefaultBackend()
	parentID := "multi:" + uuid.NewString()

	r.mu.Lock()
	r.sessions[parentID] = &RoutedSession{
		ActiveBackend:        kind,
		BackendSessions:       make(map[backend.Kind]string),
		BackendConfigOptions: make(map[backend.Kind][]acpwire.ConfigOption),
		CWD:                  cwd,
		McpServers:           mcpServers,
	}
	r.mu.Unlock()

	if _, err := r.EnsureBackendSession(ctx, parentID, kind); err != nil {
		r.mu.Lock()
		delete(r.sessions, parentID)
		r.mu.Unlock()
		return "", nil, err
	}

	r.mu.Lock()
	opts := mergeActiveOptions(kind, r.sessions[parentID].BackendConfigOptions[kind])
	r.mu.Unlock()
	return parentID, opts, nil
}

// LoadSession delegates to codex (the only backend the router loads
// sessions through) and registers sessionID as its own
// parent id — no re-minting, matching load_session.
func (r *Router) LoadSession(ctx context.Context, sessionID, cwd string) ([]acpwire.ConfigOption, error) {
	driver, err := r.driverFor(ctx, backend.Codex)
	if err != nil {
		return nil, err
	}
	loader, ok := driver.(backend.SessionLoader)
	if !ok {
		return nil, fmt.Errorf("router: codex driver does not support LoadSession")
	}
	if err := loader.LoadSession(ctx, sessionID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sessionID] = &RoutedSession{
		ActiveBackend:        backend.Codex,
		BackendSessions:       map[backend.Kind]string{backend.Codex: sessionID},
		BackendConfigOptions: make(map[backend.Kind][]acpwire.ConfigOption),
		CWD:                  cwd,
	}
	r.mu.Unlock()

	r.alias.Register(sessionID, sessionID)
	return mergeActiveOptions(backend.Codex, nil), nil
}

// ResolveRouted returns the active backend, its Driver, and the active
// child session id for parentID.
func (r *Router) ResolveRouted(parentID string) (backend.Kind, backend.Driver, string, error) {
	r.mu.Lock()
	session, ok := r.sessions[parentID]
	if !ok {
		r.mu.Unlock()
		return "", nil, "", acpwire.NewError(acpwire.ErrResourceNotFound, fmt.Sprintf("unknown session %q", parentID))
	}
	kind := session.ActiveBackend
	childID, ok := session.BackendSessions[kind]
	driver := r.drivers[kind]
	r.mu.Unlock()
	if !ok {
		return "", nil, "", acpwire.NewError(acpwire.ErrResourceNotFound, fmt.Sprintf("no active backend session for %q", parentID))
	}
	return kind, driver, childID, nil
}

// ParseBackendSelector recognizes "/backend <kind>" and resolves kind,
// matching parse_backend_selector.
func ParseBackendSelector(raw string) (backend.Kind, bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) < 2 || fields[0] != "/backend" {
		return "", false
	}
	k, err := backend.Parse(fields[1])
	if err != nil {
		return "", false
	}
	return k, true
}

// IsSwitchBackendCommand reports whether raw (trimmed) starts with
// "/backend", well-formed or not, matching is_switch_backend_command.
func IsSwitchBackendCommand(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "/backend")
}

// SwitchBackend ensures kind's child session exists and makes it
// active for parentID, returning the merged config-options projection.
func (r *Router) SwitchBackend(ctx context.Context, parentID string, kind backend.Kind) ([]acpwire.ConfigOption, error) {
	if kind == backend.Multi || !kind.Routable() {
		return nil, acpwire.NewError(acpwire.ErrInvalidParams, "backend must be one of: codex|claude-code|gemini")
	}
	if _, err := r.EnsureBackendSession(ctx, parentID, kind); err != nil {
		return nil, err
	}

	r.mu.Lock()
	session, ok := r.sessions[parentID]
	if !ok {
		r.mu.Unlock()
		return nil, acpwire.NewError(acpwire.ErrResourceNotFound, fmt.Sprintf("unknown session %q", parentID))
	}
	session.ActiveBackend = kind
	merged := mergeActiveOptions(kind, session.BackendConfigOptions[kind])
	r.mu.Unlock()
	return merged, nil
}

// SetBackendConfigOption handles set_session_config_option when
// configID == "backend"; other config ids are the Thread Actor's own
// concern (model, approval preset, personality) and never reach the
// router.
func (r *Router) SetBackendConfigOption(ctx context.Context, parentID, value string) ([]acpwire.ConfigOption, error) {
	kind, err := backend.Parse(value)
	if err != nil || kind == backend.Multi {
		return nil, acpwire.NewError(acpwire.ErrInvalidParams, "backend must be one of: codex|claude-code|gemini")
	}
	return r.SwitchBackend(ctx, parentID, kind)
}

// AuthMethods is the union of every backend's advertised methods,
// matching auth_methods().
func (r *Router) AuthMethods(ctx context.Context) []string {
	var out []string
	for _, kind := range []backend.Kind{backend.Codex, backend.ClaudeCode, backend.Gemini} {
		driver, err := r.driverFor(ctx, kind)
		if err != nil {
			continue
		}
		if auther, ok := driver.(backend.Authenticator); ok {
			out = append(out, auther.AuthMethods()...)
		}
	}
	return out
}

// Authenticate dispatches methodID to the backend that owns it,
// matching authenticate()'s three-way method-id switch.
func (r *Router) Authenticate(ctx context.Context, methodID string) error {
	var kind backend.Kind
	switch methodID {
	case "chatgpt", "codex-api-key", "openai-api-key":
		kind = backend.Codex
	case "claude-cli":
		kind = backend.ClaudeCode
	case "gemini-cli":
		kind = backend.Gemini
	default:
		return acpwire.NewError(acpwire.ErrInvalidParams, fmt.Sprintf("unsupported auth method: %s", methodID))
	}
	driver, err := r.driverFor(ctx, kind)
	if err != nil {
		return err
	}
	auther, ok := driver.(backend.Authenticator)
	if !ok {
		return fmt.Errorf("router: %s driver does not support authentication", kind)
	}
	return auther.Authenticate(ctx, methodID)
}

// ListSessions returns a synthetic entry per routed parent session,
// matching list_sessions's "Unified session [<backend>]" titling.
func (r *Router) ListSessions() []event.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, event.SessionInfo{
			ID:    id,
			Title: fmt.Sprintf("Unified session [%s]", s.ActiveBackend),
		})
	}
	return out
}
