package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/alias"
	"github.com/haegyung/xsfire-camp/internal/canonical"
	"github.com/haegyung/xsfire-camp/internal/obslog"
	"github.com/haegyung/xsfire-camp/internal/router"
)

// stubDriver completes every submission immediately with a turn_complete
// event carrying StopReason "end_turn", enough to drive the Actor's
// Prompt/Cancel/SetSessionMode round trips without a real backend.
type stubDriver struct {
	kind   backend.Kind
	events chan event.Event
}

func newStubDriver(kind backend.Kind) *stubDriver {
	return &stubDriver{kind: kind, events: make(chan event.Event, 64)}
}

func (d *stubDriver) Submit(ctx context.Context, sessionID string, op backend.Operation) (backend.SubmissionID, error) {
	id := backend.SubmissionID(sessionID + "-sub")
	d.events <- event.Event{Kind: event.KindTurnComplete, SubmissionID: string(id), StopReason: "end_turn"}
	return id, nil
}
func (d *stubDriver) Events() <-chan event.Event { return d.events }
func (d *stubDriver) Close() error               { return nil }

func (d *stubDriver) NewSession(ctx context.Context, cwd string, mcpServers []string, meta []byte) (string, error) {
	return string(d.kind) + "-child", nil
}

func (d *stubDriver) LoadSession(ctx context.Context, sessionID string) error { return nil }

func (d *stubDriver) AuthMethods() []string         { return []string{"chatgpt"} }
func (d *stubDriver) Authenticate(context.Context, string) error { return nil }

// captureTransport records every Update emitted through it.
type captureTransport struct {
	mu      sync.Mutex
	updates []acpwire.Update
}

func (c *captureTransport) Notify(sessionID string, update acpwire.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update)
}

func newTestHandler(t *testing.T) (*Handler, *captureTransport) {
	t.Helper()
	t.Setenv("ACP_HOME", t.TempDir())

	factories := map[backend.Kind]backend.Factory{
		backend.Codex:      func(ctx context.Context) (backend.Driver, error) { return newStubDriver(backend.Codex), nil },
		backend.ClaudeCode: func(ctx context.Context) (backend.Driver, error) { return newStubDriver(backend.ClaudeCode), nil },
		backend.Gemini:     func(ctx context.Context) (backend.Driver, error) { return newStubDriver(backend.Gemini), nil },
	}
	r := router.New(factories, alias.New(), obslog.New(nil))
	transport := &captureTransport{}
	idx := canonical.OpenIndex(canonical.Home(), obslog.New(nil))
	h := New(r, alias.New(), transport, obslog.New(nil), nil, idx)
	return h, transport
}

func TestHandler_NewSessionThenPrompt(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	sessionID, _, err := h.NewSession(ctx, "/tmp", nil)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	stopReason, aerr := h.Prompt(ctx, sessionID, []acpwire.ContentBlock{{Type: "text", Text: "hi"}})
	require.Nil(t, aerr)
	assert.Equal(t, acpwire.StopReason("end_turn"), stopReason)
}

func TestHandler_PromptUnknownSession(t *testing.T) {
	h, _ := newTestHandler(t)
	_, aerr := h.Prompt(context.Background(), "does-not-exist", nil)
	require.NotNil(t, aerr)
	assert.Equal(t, acpwire.ErrResourceNotFound, aerr.Code)
}

func TestHandler_CancelKnownSession(t *testing.T) {
	h, _ := newTestHandler(t)
	sessionID, _, err := h.NewSession(context.Background(), "/tmp", nil)
	require.NoError(t, err)

	err = h.Cancel(context.Background(), sessionID)
	assert.NoError(t, err)
}

func TestHandler_SetSessionConfigOption_BackendSwitchRewiresActor(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	sessionID, _, err := h.NewSession(ctx, "/tmp", nil)
	require.NoError(t, err)

	opts, aerr := h.SetSessionConfigOption(ctx, sessionID, "backend", "gemini")
	require.Nil(t, aerr)

	found := false
	for _, o := range opts {
		if o.ID == "backend" {
			found = true
			assert.Equal(t, "gemini", o.Value)
		}
	}
	assert.True(t, found)

	h.mu.Lock()
	en := h.actors[sessionID]
	h.mu.Unlock()
	require.NotNil(t, en)
	assert.Equal(t, "gemini-child", en.actor.SessionID)

	stopReason, perr := h.Prompt(ctx, sessionID, []acpwire.ContentBlock{{Type: "text", Text: "after switch"}})
	require.Nil(t, perr)
	assert.Equal(t, acpwire.StopReason("end_turn"), stopReason)
}

func TestHandler_AuthMethodsAndAuthenticate(t *testing.T) {
	h, _ := newTestHandler(t)
	methods := h.AuthMethods(context.Background())
	assert.NotEmpty(t, methods)
	assert.NoError(t, h.Authenticate(context.Background(), "chatgpt"))
}

func TestHandler_ListSessions(t *testing.T) {
	h, _ := newTestHandler(t)
	sessionID, _, err := h.NewSession(context.Background(), "/tmp", nil)
	require.NoError(t, err)

	sessions := h.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
}

func TestHandler_Initialize(t *testing.T) {
	h, _ := newTestHandler(t)
	caps := h.Initialize(acpwire.ClientCapabilities{})
	assert.True(t, caps.LoadSession)
}

func TestHandler_Shutdown_CancelsActors(t *testing.T) {
	h, _ := newTestHandler(t)
	sessionID, _, err := h.NewSession(context.Background(), "/tmp", nil)
	require.NoError(t, err)

	h.Shutdown()

	// After shutdown the actor's Run loop context is cancelled; the
	// entry itself is left in place (Shutdown doesn't delete map
	// entries, only stops their goroutines), so lookup still succeeds.
	h.mu.Lock()
	_, ok := h.actors[sessionID]
	h.mu.Unlock()
	assert.True(t, ok)

	time.Sleep(10 * time.Millisecond)
}
