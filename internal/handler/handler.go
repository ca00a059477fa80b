// Package handler implements C10, the Agent-Facing Request Handler: a
// stateless dispatcher from inbound Agent Protocol requests to either a
// session's Thread Actor (C6) or the Multi-Backend Router (C9). It owns
// no turn-taking logic of its own — every method here either asks the
// Router to create/resolve a routed session or forwards a Command onto
// the matching Actor's inbound channel and waits for the one-shot
// response, the same request/response shape spec.md §4.6.2 gives each
// Command variant.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/actor"
	"github.com/haegyung/xsfire-camp/internal/alias"
	"github.com/haegyung/xsfire-camp/internal/canonical"
	"github.com/haegyung/xsfire-camp/internal/obslog"
	"github.com/haegyung/xsfire-camp/internal/router"
	"github.com/haegyung/xsfire-camp/internal/skills"
)

// Transport is the out-of-scope collaborator that actually frames and
// writes notifications over the wire (spec.md §1); Handler only needs
// something to hand a per-session Update to.
type Transport interface {
	Notify(sessionID string, update acpwire.Update)
}

// facade adapts a Transport plus a fixed ClientCapabilities snapshot
// into the actor.Facade interface.
type facade struct {
	sessionID string
	transport Transport
	caps      acpwire.ClientCapabilities
}

func (f *facade) Emit(u acpwire.Update) {
	u.SessionID = f.sessionID
	f.transport.Notify(f.sessionID, u)
}

func (f *facade) Capabilities() acpwire.ClientCapabilities { return f.caps }

// actorEntry bundles a running Actor with the cancel func that stops
// its Run loop.
type actorEntry struct {
	actor  *actor.Actor
	cancel context.CancelFunc
}

// Handler is C10.
type Handler struct {
	router    *router.Router
	alias     *alias.Table
	transport Transport
	log       *obslog.Logger
	skills    *skills.Catalog
	canonIdx  *canonical.Index

	mu         sync.Mutex
	clientCaps acpwire.ClientCapabilities
	actors     map[string]*actorEntry // parent session id -> entry
}

// New constructs a Handler. skillsManifest may be nil (an empty
// catalog).
func New(r *router.Router, aliasTable *alias.Table, transport Transport, log *obslog.Logger, skillsManifest *skills.Catalog, canonIdx *canonical.Index) *Handler {
	return &Handler{
		router:    r,
		alias:     aliasTable,
		transport: transport,
		log:       log,
		skills:    skillsManifest,
		canonIdx:  canonIdx,
		actors:    make(map[string]*actorEntry),
	}
}

// Initialize records the client's advertised capabilities and returns
// the adapter's fixed capability set (spec.md §4.10). loadSessionSupported
// is always true here: the router's codex backend always advertises it.
func (h *Handler) Initialize(caps acpwire.ClientCapabilities) acpwire.AgentCapabilities {
	h.mu.Lock()
	h.clientCaps = caps
	h.mu.Unlock()
	return acpwire.FixedAgentCapabilities(true)
}

// NewSession creates a routed parent session and starts its Actor
// bound to the default backend's freshly created child session.
func (h *Handler) NewSession(ctx context.Context, cwd string, mcpServers []string) (string, []acpwire.ConfigOption, error) {
	parentID, opts, err := h.router.NewSession(ctx, cwd, mcpServers)
	if err != nil {
		return "", nil, err
	}
	kind, driver, childID, err := h.router.ResolveRouted(parentID)
	if err != nil {
		return "", nil, err
	}
	h.startActor(parentID, kind, driver, childID)
	return parentID, opts, nil
}

// LoadSession resumes an existing codex session under its own id and
// starts its Actor.
func (h *Handler) LoadSession(ctx context.Context, sessionID, cwd string) ([]acpwire.ConfigOption, error) {
	opts, err := h.router.LoadSession(ctx, sessionID, cwd)
	if err != nil {
		return nil, err
	}
	kind, driver, childID, err := h.router.ResolveRouted(sessionID)
	if err != nil {
		return nil, err
	}
	h.startActor(sessionID, kind, driver, childID)
	return opts, nil
}

func (h *Handler) startActor(parentID string, kind backend.Kind, driver backend.Driver, childID string) {
	globalID := ""
	if h.canonIdx != nil {
		globalID = h.canonIdx.GetOrCreate(parentID)
	}
	log, _ := canonical.Init(globalID, kind.String(), parentID, childID, "", h.log)

	h.mu.Lock()
	caps := h.clientCaps
	h.mu.Unlock()

	f := &facade{sessionID: parentID, transport: h.transport, caps: caps}
	a := actor.New(childID, driver, f, log, actor.Config{}, h.log)
	if h.skills != nil {
		a.Skills = h.skills
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.actors[parentID] = &actorEntry{actor: a, cancel: cancel}
	h.mu.Unlock()

	go a.Run(ctx)
}

func (h *Handler) lookup(parentID string) (*actor.Actor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	en, ok := h.actors[parentID]
	if !ok {
		return nil, acpwire.NewError(acpwire.ErrResourceNotFound, fmt.Sprintf("unknown session %q", parentID))
	}
	return en.actor, nil
}

// Prompt forwards a prompt submission to parentID's Actor.
func (h *Handler) Prompt(ctx context.Context, parentID string, blocks []acpwire.ContentBlock) (acpwire.StopReason, *acpwire.Error) {
	a, err := h.lookup(parentID)
	if err != nil {
		return "", err.(*acpwire.Error)
	}
	resp := make(chan actor.PromptResult, 1)
	select {
	case a.Inbound <- actor.PromptCmd{Blocks: blocks, Resp: resp}:
	case <-ctx.Done():
		return "", acpwire.Internalf(ctx.Err(), "prompt dispatch cancelled")
	}
	result := <-resp
	return result.StopReason, result.Err
}

// Cancel interrupts parentID's active submission(s).
func (h *Handler) Cancel(ctx context.Context, parentID string) error {
	a, err := h.lookup(parentID)
	if err != nil {
		return err
	}
	resp := make(chan struct{}, 1)
	select {
	case a.Inbound <- actor.CancelCmd{Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-resp
	return nil
}

// SetSessionMode changes parentID's approval preset.
func (h *Handler) SetSessionMode(ctx context.Context, parentID, preset string) *acpwire.Error {
	a, err := h.lookup(parentID)
	if err != nil {
		return err.(*acpwire.Error)
	}
	resp := make(chan actor.SetResult, 1)
	a.Inbound <- actor.SetModeCmd{Preset: preset, Resp: resp}
	return (<-resp).Err
}

// SetSessionConfigOption dispatches a config-option change. A
// configID of "backend" is the router's switch-backend path and
// requires rewiring the Actor to the new driver/child session; every
// other id is the Actor's own local concern.
func (h *Handler) SetSessionConfigOption(ctx context.Context, parentID, configID, value string) ([]acpwire.ConfigOption, *acpwire.Error) {
	if configID == "backend" {
		opts, err := h.router.SetBackendConfigOption(ctx, parentID, value)
		if err != nil {
			if ae, ok := err.(*acpwire.Error); ok {
				return nil, ae
			}
			return nil, acpwire.Internalf(err, "switch backend failed")
		}
		kind, driver, childID, rerr := h.router.ResolveRouted(parentID)
		if rerr != nil {
			return nil, acpwire.Internalf(rerr, "resolve routed session after switch")
		}
		h.rewireActor(parentID, kind, driver, childID)
		return opts, nil
	}

	a, lerr := h.lookup(parentID)
	if lerr != nil {
		return nil, lerr.(*acpwire.Error)
	}
	resp := make(chan actor.SetResult, 1)
	a.Inbound <- actor.SetConfigOptionCmd{ID: configID, Value: value, Resp: resp}
	if set := <-resp; set.Err != nil {
		return nil, set.Err
	}
	getResp := make(chan []acpwire.ConfigOption, 1)
	a.Inbound <- actor.GetConfigOptionsCmd{Resp: getResp}
	return <-getResp, nil
}

// rewireActor points an already-running Actor at a new Driver/child
// session id after a backend switch, preserving its Config, Submissions,
// and canonical log rather than starting a new Actor from scratch. The
// mutation itself happens inside the actor's own Run loop (via
// RewireCmd), never here, since Driver/SessionID are read concurrently
// by that loop (spec.md §5).
func (h *Handler) rewireActor(parentID string, kind backend.Kind, driver backend.Driver, childID string) {
	h.mu.Lock()
	en, ok := h.actors[parentID]
	h.mu.Unlock()
	if !ok {
		return
	}
	resp := make(chan struct{})
	en.actor.Inbound <- actor.RewireCmd{Driver: driver, SessionID: childID, Resp: resp}
	<-resp
}

// ResolvePermission resolves a pending exec-approval, apply-patch
// approval, or MCP elicitation request raised during parentID's active
// turn.
func (h *Handler) ResolvePermission(ctx context.Context, parentID, kind, callID, optionID string, cancelled bool) error {
	a, err := h.lookup(parentID)
	if err != nil {
		return err
	}
	resp := make(chan struct{}, 1)
	select {
	case a.Inbound <- actor.ResolvePermissionCmd{Kind: kind, CallID: callID, OptionID: optionID, Cancelled: cancelled, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-resp
	return nil
}

// Authenticate dispatches an auth method to the owning backend.
func (h *Handler) Authenticate(ctx context.Context, methodID string) error {
	return h.router.Authenticate(ctx, methodID)
}

// AuthMethods returns the union of every backend's advertised methods.
func (h *Handler) AuthMethods(ctx context.Context) []string {
	return h.router.AuthMethods(ctx)
}

// ListSessions returns the router's synthetic per-session entries
// (spec.md §4.9).
func (h *Handler) ListSessions() []event.SessionInfo {
	return h.router.ListSessions()
}

// Shutdown cancels every running Actor's context.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, en := range h.actors {
		en.cancel()
	}
}
