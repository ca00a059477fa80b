// Package cliexec is the generic CLI-subprocess engine shared by
// backend/claude and backend/gemini: it owns subprocess lifecycle,
// stdin/stdout pumping, and SubmissionID correlation, while each
// concrete backend supplies only binary-specific argument building,
// stdin encoding, and output-line parsing.
//
// Grounded on dmora-agentrun's engine/cli package (Engine, Spawner,
// Streamer, Resumer, InputFormatter capability interfaces probed via
// type assertion) collapsed into one package: the teacher splits engine
// orchestration from per-backend Option/Backend implementations across
// two packages (engine/cli and engine/cli/claude); this module folds
// the two backend kinds spec.md §3 actually names (claude-code, gemini)
// into direct users of one shared engine rather than reintroducing the
// teacher's agentrun.Engine/Process abstraction wholesale, since this
// repo has exactly one consumer (internal/router) instead of a public
// multi-engine library surface.
package cliexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/obslog"
)

// Backend supplies the binary-specific pieces a CLI subprocess engine
// needs. Concrete implementations live in backend/claude and
// backend/gemini, grounded on dmora-agentrun's claude.Backend.
type Backend interface {
	// Binary is the executable name or path to exec.LookPath.
	Binary() string

	// StreamArgs builds the argument list for a long-lived streaming
	// session rooted at cwd. Must not fail (the Spawner contract the
	// teacher's cli.Spawner documents): unusable option values are
	// silently skipped rather than erroring.
	StreamArgs(cwd string) []string

	// FormatOperation encodes op for delivery over the subprocess's
	// stdin pipe. ok is false when op has no stdin representation for
	// this backend (the engine then reports ErrUnsupportedOp
	// up through Submit).
	FormatOperation(op backend.Operation) (line []byte, ok bool, err error)

	// ParseLine decodes one line of the subprocess's stdout into an
	// event.Event. Returns ErrSkipLine for blank lines.
	ParseLine(line []byte) (event.Event, error)
}

// Resumable is an optional capability: backends that can reattach to a
// previously-started conversation by id implement it. Probed via type
// assertion, the same pattern the teacher's cli.Resumer follows.
type Resumable interface {
	ResumeArgs(cwd, resumeID string) []string
}

// ErrSkipLine signals ParseLine encountered a line carrying no event
// (blank lines, keepalives).
var ErrSkipLine = fmt.Errorf("cliexec: skip line")

// ErrUnsupportedOp is returned by Submit when the backend's
// FormatOperation reports it cannot encode the given Operation.
var ErrUnsupportedOp = fmt.Errorf("cliexec: operation not supported by this backend")

// Engine is a backend.Driver implementation that manages one subprocess
// per child session, multiplexing their stdout into a single shared
// event channel the way the Thread Actor expects (spec.md §2).
type Engine struct {
	kind    backend.Kind
	backend Backend
	log     *obslog.Logger

	events chan event.Event

	mu       sync.Mutex
	sessions map[string]*sessionProc
}

var _ backend.Driver = (*Engine)(nil)

// sessionProc is one running subprocess and its correlation state.
type sessionProc struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	currentID backend.SubmissionID
}

// New constructs an Engine for the given backend kind and Backend
// implementation.
func New(kind backend.Kind, be Backend, log *obslog.Logger) *Engine {
	return &Engine{
		kind:     kind,
		backend:  be,
		log:      log,
		events:   make(chan event.Event, 256),
		sessions: make(map[string]*sessionProc),
	}
}

// NewSession spawns a subprocess rooted at cwd for a fresh child
// session and returns a generated id. mcpServers and meta are accepted
// to satisfy backend.SessionSpawner's shape; this generic engine does
// not interpret them itself — concrete backends that care can bake
// them into StreamArgs via a closure over the Backend value.
func (e *Engine) NewSession(ctx context.Context, cwd string, mcpServers []string, meta []byte) (string, error) {
	id := uuid.NewString()
	if err := e.start(ctx, id, cwd, nil); err != nil {
		return "", err
	}
	return id, nil
}

// LoadSession resumes an existing conversation, if the backend
// implements Resumable; otherwise it reports an error, matching
// backend.SessionLoader's contract that only backends which can
// actually resume should be wired to it.
func (e *Engine) LoadSession(ctx context.Context, sessionID string) error {
	r, ok := e.backend.(Resumable)
	if !ok {
		return fmt.Errorf("cliexec: %s backend does not support LoadSession", e.kind)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cliexec: resolve cwd: %w", err)
	}
	return e.start(context.Background(), sessionID, cwd, func() []string {
		return r.ResumeArgs(cwd, sessionID)
	})
}

// start spawns the subprocess for sessionID, defaulting to StreamArgs
// unless argsOverride is supplied (the resume path).
func (e *Engine) start(ctx context.Context, sessionID, cwd string, argsOverride func() []string) error {
	binary := e.backend.Binary()
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("cliexec: %w: %s", ErrUnavailable, err)
	}

	var args []string
	if argsOverride != nil {
		args = argsOverride()
	} else {
		args = e.backend.StreamArgs(cwd)
	}

	cmd := exec.Command(resolved, args...)
	cmd.Dir = cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cliexec: stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("cliexec: stdin pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cliexec: start %s: %w", binary, err)
	}

	sp := &sessionProc{cmd: cmd, stdin: stdin}
	e.mu.Lock()
	e.sessions[sessionID] = sp
	e.mu.Unlock()

	go e.pump(sessionID, sp, stdout)
	return nil
}

// pump reads subprocess stdout line by line, parses each line, and
// forwards the resulting Event tagged with the session's current
// SubmissionID onto the shared event channel. Grounded on the
// teacher's Process goroutine that scans a subprocess's stdout into
// agentrun.Message values.
func (e *Engine) pump(sessionID string, sp *sessionProc, stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		ev, err := e.backend.ParseLine(scanner.Bytes())
		if err != nil {
			if err == ErrSkipLine {
				continue
			}
			e.log.Warn("cliexec: parse line failed", zap.Error(err), zap.String("session_id", sessionID))
			continue
		}
		sp.mu.Lock()
		ev.SubmissionID = string(sp.currentID)
		sp.mu.Unlock()
		e.events <- ev
	}
	e.events <- event.Event{Kind: event.KindShutdownComplete, SubmissionID: string(sp.currentID)}
}

// Submit encodes op via the backend's FormatOperation and writes it to
// the session's subprocess stdin, minting a fresh SubmissionID that
// subsequent parsed events will be tagged with until the next Submit.
func (e *Engine) Submit(ctx context.Context, sessionID string, op backend.Operation) (backend.SubmissionID, error) {
	e.mu.Lock()
	sp, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("cliexec: unknown session %q", sessionID)
	}

	line, ok, err := e.backend.FormatOperation(op)
	if err != nil {
		return "", fmt.Errorf("cliexec: format operation: %w", err)
	}
	if !ok {
		return "", ErrUnsupportedOp
	}

	id := backend.SubmissionID(uuid.NewString())
	sp.mu.Lock()
	sp.currentID = id
	sp.mu.Unlock()

	if _, err := sp.stdin.Write(line); err != nil {
		return "", fmt.Errorf("cliexec: write stdin: %w", err)
	}
	return id, nil
}

// Events returns the engine's shared event channel.
func (e *Engine) Events() <-chan event.Event {
	return e.events
}

// Close terminates every live subprocess.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for id, sp := range e.sessions {
		sp.stdin.Close()
		if err := sp.cmd.Process.Kill(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.sessions, id)
	}
	return firstErr
}

// ErrUnavailable mirrors agentrun.ErrUnavailable: the configured binary
// could not be found on PATH.
var ErrUnavailable = fmt.Errorf("cliexec: backend binary unavailable")
