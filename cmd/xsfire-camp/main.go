// Command xsfire-camp wires the Thread Actor, Multi-Backend Router, and
// Request Handler together and runs until terminated. Argument parsing
// and config loading are explicitly out of scope (spec.md §1's
// Non-goals) — this is a thin wiring shim, not a CLI. The actual framed
// JSON-RPC transport is likewise an out-of-scope collaborator; stdoutTransport
// below is a minimal stand-in concrete enough to let the binary run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/backend/claude"
	"github.com/haegyung/xsfire-camp/backend/cliexec"
	"github.com/haegyung/xsfire-camp/backend/codex"
	"github.com/haegyung/xsfire-camp/backend/gemini"
	"github.com/haegyung/xsfire-camp/internal/alias"
	"github.com/haegyung/xsfire-camp/internal/canonical"
	"github.com/haegyung/xsfire-camp/internal/handler"
	"github.com/haegyung/xsfire-camp/internal/obslog"
	"github.com/haegyung/xsfire-camp/internal/router"
	"github.com/haegyung/xsfire-camp/internal/skills"
)

func main() {
	z, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "xsfire-camp: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = z.Sync() }()
	log := obslog.New(z)

	aliasTable := alias.New()
	idx := canonical.OpenIndex(canonical.Home(), log)

	skillsCatalog, err := skills.Load("SKILLS.yaml")
	if err != nil {
		log.Warn("skills manifest load failed", zap.Error(err))
		skillsCatalog = nil
	}

	factories := map[backend.Kind]backend.Factory{
		backend.Codex: func(ctx context.Context) (backend.Driver, error) {
			return codex.New(), nil
		},
		backend.ClaudeCode: func(ctx context.Context) (backend.Driver, error) {
			return cliexec.New(backend.ClaudeCode, claude.New(), log), nil
		},
		backend.Gemini: func(ctx context.Context) (backend.Driver, error) {
			return cliexec.New(backend.Gemini, gemini.New(), log), nil
		},
	}

	r := router.New(factories, aliasTable, log)
	h := handler.New(r, aliasTable, stdoutTransport{}, log, skillsCatalog, idx)

	log.Info("xsfire-camp adapter ready")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	h.Shutdown()
	log.Info("xsfire-camp adapter stopped")
}

// stdoutTransport writes each notification as a JSON line to stdout.
// The real Agent Protocol framing (length-prefixed or LSP-style
// Content-Length headers) is the out-of-scope transport collaborator;
// this satisfies handler.Transport concretely enough to run end to end
// in the absence of a real client connection.
type stdoutTransport struct{}

func (stdoutTransport) Notify(sessionID string, update acpwire.Update) {
	line, err := json.Marshal(update)
	if err != nil {
		return
	}
	fmt.Println(string(line))
}
