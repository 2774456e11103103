package ledgerservice

import (
	"crypto/ed25519"
	"sync"

	"github.com/google/uuid"
)

// KeyProvider resolves the private key an event should be signed with.
// Editors sign with their own key; events with no attributable human
// editor (automated anchoring bookkeeping) sign with the process-wide
// system key.
type KeyProvider interface {
	PrivateKeyFor(editorID uuid.UUID) (ed25519.PrivateKey, bool)
	SystemPrivateKey() ed25519.PrivateKey
}

// InMemoryKeyProvider holds editor private keys in process memory,
// keyed by editor_id, plus a system key used for events not
// attributable to a human editor. If no system key is supplied at
// construction, NewInMemoryKeyProvider generates an ephemeral one and
// sets Ephemeral so callers can warn that signatures will not survive a
// restart.
type InMemoryKeyProvider struct {
	mu        sync.RWMutex
	keys      map[uuid.UUID]ed25519.PrivateKey
	systemKey ed25519.PrivateKey

	// Ephemeral is true when no system key was supplied and one was
	// generated at startup.
	Ephemeral bool
}

// NewInMemoryKeyProvider creates a key provider seeded with systemKey. A
// nil systemKey causes one to be generated and Ephemeral set to true.
func NewInMemoryKeyProvider(systemKey ed25519.PrivateKey) *InMemoryKeyProvider {
	p := &InMemoryKeyProvider{keys: make(map[uuid.UUID]ed25519.PrivateKey)}
	if systemKey != nil {
		p.systemKey = systemKey
		return p
	}
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic("ledgerservice: failed to generate ephemeral system key: " + err.Error())
	}
	p.systemKey = priv
	p.Ephemeral = true
	return p
}

// SetKey registers editorID's private key, called when an editor is
// provisioned alongside its EDITOR_REGISTERED event.
func (p *InMemoryKeyProvider) SetKey(editorID uuid.UUID, priv ed25519.PrivateKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[editorID] = priv
}

func (p *InMemoryKeyProvider) PrivateKeyFor(editorID uuid.UUID) (ed25519.PrivateKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.keys[editorID]
	return k, ok
}

func (p *InMemoryKeyProvider) SystemPrivateKey() ed25519.PrivateKey {
	return p.systemKey
}
