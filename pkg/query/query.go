// Package query implements the read-side API : list_claims,
// get_claim_detail, get_integrity, get_editor. It serves from the
// projector's in-memory read-models and the event store's range scans,
// and never writes.
package query

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/projector"
)

// Layer serves read-only queries over the ledger's projections and
// event store. It caches the last integrity check result so get_integrity
// is O(1) between background verification runs.
type Layer struct {
	store     eventstore.EventStore
	projector *projector.Projector

	mu     sync.RWMutex
	cached *ledgercore.IntegrityStatus
}

// New builds a query layer over store and proj.
func New(store eventstore.EventStore, proj *projector.Projector) *Layer {
	return &Layer{store: store, projector: proj}
}

// ListFilter narrows list_claims by status; the zero value matches all.
type ListFilter struct {
	Status ledgercore.ClaimStatus
}

// Order picks the list_claims sort key.
type Order string

const (
	OrderByCreatedAt   Order = "created_at"
	OrderByLastUpdated Order = "last_updated"
)

// ListClaims returns claims matching filter, ordered by order, limited
// to limit results (0 means unlimited).
func (l *Layer) ListClaims(filter ListFilter, order Order, limit int) []*ledgercore.Claim {
	claims := l.projector.ListClaims()
	out := make([]*ledgercore.Claim, 0, len(claims))
	for _, c := range claims {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}

	switch order {
	case OrderByLastUpdated:
		sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClaimDetail merges the projected claim with its full event timeline.
type ClaimDetail struct {
	Claim    *ledgercore.Claim      `json:"claim"`
	Evidence []*ledgercore.Evidence `json:"evidence"`
	Timeline []*ledgercore.Event   `json:"timeline"`
}

// GetClaimDetail reconstructs the full history of claimID by restricting
// a range scan to events whose claim_id matches.
func (l *Layer) GetClaimDetail(ctx context.Context, claimID uuid.UUID) (*ClaimDetail, error) {
	claim, ok := l.projector.GetClaim(claimID)
	if !ok {
		return nil, fmt.Errorf("%w: claim %s", ledgercore.ErrNotFound, claimID)
	}
	timeline, err := l.store.RangeByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("query: range by claim: %w", err)
	}
	return &ClaimDetail{
		Claim:    claim,
		Evidence: l.projector.EvidenceForClaim(claimID),
		Timeline: timeline,
	}, nil
}

// GetEditor looks up an editor by id.
func (l *Layer) GetEditor(editorID uuid.UUID) (*ledgercore.Editor, error) {
	e, ok := l.projector.Registry.Get(editorID)
	if !ok {
		return nil, fmt.Errorf("%w: editor %s", ledgercore.ErrNotFound, editorID)
	}
	return e, nil
}

// GetIntegrity returns the cached integrity status, or a zero-event
// status if no check has run yet. RefreshIntegrity performs the actual
// full scan and updates the cache; callers typically run that on a
// schedule and serve GetIntegrity on every request.
func (l *Layer) GetIntegrity() *ledgercore.IntegrityStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cached == nil {
		return &ledgercore.IntegrityStatus{Valid: true, CheckedAt: time.Now().UTC()}
	}
	cp := *l.cached
	return &cp
}

// RefreshIntegrity runs a full chain verification and updates the cache
// get_integrity serves from. It is O(events); callers run it in the
// background or on demand, never inline with a write command.
func (l *Layer) RefreshIntegrity(ctx context.Context) (*ledgercore.IntegrityStatus, error) {
	status, err := l.store.VerifyChain(ctx)
	if err != nil {
		return nil, err
	}
	l.SetIntegrity(status)
	return status, nil
}

// SetIntegrity installs status as the cached integrity result without
// performing a scan itself. Used by callers (the ledger service's own
// VerifyChain, which additionally latches write-suspension on failure)
// that already did the scan, so the cache and the corruption latch are
// always derived from the same pass over the log rather than two
// independent scans that could disagree.
func (l *Layer) SetIntegrity(status *ledgercore.IntegrityStatus) {
	l.mu.Lock()
	l.cached = status
	l.mu.Unlock()
}
