// Package alias implements C2, the process-wide child→parent session id
// table used to rewrite outbound notifications from a router-owned child
// session back to the client-visible virtual session id (spec.md §4.2).
// Entries are never removed during the process lifetime, matching
// Session's own "never destroyed" lifecycle (spec.md §3).
package alias

import "sync"

// Table is the process-wide alias table. The zero value is usable but
// Router/actor construction should use New so callers share one
// instance, matching spec.md §5's "shared across all sessions" resource.
type Table struct {
	mu sync.Mutex
	m  map[string]string
}

// New returns an empty Table.
func New() *Table {
	return &Table{m: make(map[string]string)}
}

// Register records that child resolves to parent. Re-registering the
// same child with a different parent overwrites the mapping; callers
// don't do this in practice since a child session is only ever created
// once (C9's ensure_backend_session is idempotent).
func (t *Table) Register(child, parent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[child] = parent
}

// Resolve returns the registered parent for id, or id unchanged if no
// mapping exists. Resolve is idempotent: resolving an id twice in a row
// yields the same result both times (spec.md §8), because a parent id is
// either unregistered or registered to itself (router.LoadSession).
func (t *Table) Resolve(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if parent, ok := t.m[id]; ok {
		return parent
	}
	return id
}
