// Package registry implements the Editor Registry: a
// projection over EDITOR_REGISTERED and EDITOR_DEACTIVATED events that
// the ledger service consults to authenticate editors, and that the
// bundle exporter and query layer consult to resolve public keys.
//
// Its find/upsert methods are idempotent by construction. The
// Postgres-backed deployment additionally mirrors these rows into
// editors_projection via the projector, but the registry itself stays an
// in-memory read-through cache so editor-signature verification never
// costs a round trip.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// Registry holds the current projected state of every editor. It is
// rebuildable from the event log and is written only by the projector.
type Registry struct {
	mu         sync.RWMutex
	editors    map[uuid.UUID]*ledgercore.Editor
	byUsername map[string]uuid.UUID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		editors:    make(map[uuid.UUID]*ledgercore.Editor),
		byUsername: make(map[string]uuid.UUID),
	}
}

// Reset clears all projected state, used at the start of a full
// projection rebuild.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.editors = make(map[uuid.UUID]*ledgercore.Editor)
	r.byUsername = make(map[string]uuid.UUID)
}

// Apply folds a single EDITOR_REGISTERED or EDITOR_DEACTIVATED event into
// the registry. It is a no-op (and returns nil) for any other event type,
// so callers may route every event through Apply unconditionally.
// Idempotent: reapplying the same event produces the same resulting row.
func (r *Registry) Apply(ev *ledgercore.Event) error {
	switch ev.EventType {
	case ledgercore.EditorRegistered:
		return r.applyRegistered(ev)
	case ledgercore.EditorDeactivated:
		return r.applyDeactivated(ev)
	default:
		return nil
	}
}

func (r *Registry) applyRegistered(ev *ledgercore.Event) error {
	editorID, err := payloadEditorID(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Public keys are immutable once registered: a second
	// EDITOR_REGISTERED for the same editor_id is a no-op re-apply if
	// the row already matches (replay), otherwise it is a registration
	// collision, which the ledger service rejects before append.
	if existing, ok := r.editors[editorID]; ok {
		_ = existing
		return nil
	}

	username, _ := ev.Payload["username"].(string)
	displayName, _ := ev.Payload["display_name"].(string)
	role, _ := ev.Payload["role"].(string)
	publicKey, _ := ev.Payload["public_key"].(string)

	registeredBy := ev.CreatedBy
	if rb, ok := ev.Payload["registered_by"].(string); ok {
		if parsed, err := uuid.Parse(rb); err == nil {
			registeredBy = parsed
		}
	}

	r.editors[editorID] = &ledgercore.Editor{
		EditorID:     editorID,
		Username:     username,
		DisplayName:  displayName,
		Role:         role,
		PublicKey:    publicKey,
		IsActive:     true,
		RegisteredAt: ev.CreatedAt,
		RegisteredBy: registeredBy,
	}
	r.byUsername[username] = editorID
	return nil
}

func (r *Registry) applyDeactivated(ev *ledgercore.Event) error {
	editorID, err := payloadEditorID(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	editor, ok := r.editors[editorID]
	if !ok {
		return nil // replay ordering edge case; ledger service prevents this at append time
	}
	if !editor.IsActive {
		return nil // already deactivated; idempotent replay
	}
	editor.IsActive = false
	at := ev.CreatedAt
	editor.DeactivatedAt = &at
	return nil
}

func payloadEditorID(ev *ledgercore.Event) (uuid.UUID, error) {
	raw, _ := ev.Payload["editor_id"].(string)
	if raw != "" {
		return uuid.Parse(raw)
	}
	// EDITOR_REGISTERED events are authored by the editor being
	// registered in the genesis case; fall back to created_by.
	return ev.CreatedBy, nil
}

// Get returns the editor by id.
func (r *Registry) Get(editorID uuid.UUID) (*ledgercore.Editor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.editors[editorID]
	return e, ok
}

// GetByUsername returns the editor by username.
func (r *Registry) GetByUsername(username string) (*ledgercore.Editor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, false
	}
	return r.editors[id], true
}

// IsActive reports whether editorID is registered and currently active.
func (r *Registry) IsActive(editorID uuid.UUID) bool {
	e, ok := r.Get(editorID)
	return ok && e.IsActive
}

// PublicKey returns the base64 public key for editorID, satisfying the
// eventstore.verifyChain editor-key lookup signature (string in, string
// out) so the event store's chain verifier can check signatures without
// importing this package's types.
func (r *Registry) PublicKey(editorIDStr string) (string, bool) {
	id, err := uuid.Parse(editorIDStr)
	if err != nil {
		return "", false
	}
	e, ok := r.Get(id)
	if !ok {
		return "", false
	}
	return e.PublicKey, true
}

// All returns a snapshot of every registered editor, for the query layer.
func (r *Registry) All() []*ledgercore.Editor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ledgercore.Editor, 0, len(r.editors))
	for _, e := range r.editors {
		out = append(out, e)
	}
	return out
}
