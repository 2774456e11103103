// Package projector implements the pure fold over the event stream that
// derives the claim, evidence, and editor read-models.
//
// It dispatches on a tagged event-type enum to drive in-memory map
// updates, with an optional SQL mirror for the Postgres-backed
// deployment.
package projector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/registry"
)

// SQLMirror is implemented by a persistence adapter that mirrors
// projection state into relational tables for the Postgres-backed
// deployment. It is optional: an in-memory-only deployment passes nil.
type SQLMirror interface {
	UpsertClaim(ctx context.Context, c *ledgercore.Claim) error
	UpsertEditor(ctx context.Context, e *ledgercore.Editor) error
	UpsertEvidence(ctx context.Context, ev *ledgercore.Evidence) error
	SetLastProcessedSequence(ctx context.Context, seq int64) error
	Truncate(ctx context.Context) error
}

// Projector folds the event log into the claim, evidence, and editor
// read-models. Reads (GetClaim, the embedded Registry) are safe for
// concurrent use with Apply; Apply itself is invoked only by the ledger
// service's single-writer path.
type Projector struct {
	mu       sync.RWMutex
	claims   map[uuid.UUID]*ledgercore.Claim
	evidence map[uuid.UUID][]*ledgercore.Evidence

	Registry *registry.Registry

	lastProcessedSequence int64 // -1 means nothing processed yet
	mirror                SQLMirror
}

// New creates an empty projector. mirror may be nil.
func New(mirror SQLMirror) *Projector {
	return &Projector{
		claims:                make(map[uuid.UUID]*ledgercore.Claim),
		evidence:              make(map[uuid.UUID][]*ledgercore.Evidence),
		Registry:              registry.New(),
		lastProcessedSequence: -1,
		mirror:                mirror,
	}
}

// LastProcessedSequence returns the sequence number of the most recently
// applied event, or -1 if none has been applied.
func (p *Projector) LastProcessedSequence() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastProcessedSequence
}

// GetClaim returns the current projected state of claimID.
func (p *Projector) GetClaim(claimID uuid.UUID) (*ledgercore.Claim, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.claims[claimID]
	return c, ok
}

// ListClaims returns a snapshot of every projected claim.
func (p *Projector) ListClaims() []*ledgercore.Claim {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ledgercore.Claim, 0, len(p.claims))
	for _, c := range p.claims {
		out = append(out, c)
	}
	return out
}

// EvidenceForClaim returns the evidence rows projected for claimID, in
// the order they were added.
func (p *Projector) EvidenceForClaim(claimID uuid.UUID) []*ledgercore.Evidence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ledgercore.Evidence, len(p.evidence[claimID]))
	copy(out, p.evidence[claimID])
	return out
}

// Apply folds a single event into the read-models. It is idempotent by
// sequence_number: reapplying an already-processed sequence is a no-op,
// which makes replay safe to restart at any point.
func (p *Projector) Apply(ctx context.Context, ev *ledgercore.Event) error {
	p.mu.Lock()
	if int64(ev.SequenceNumber) <= p.lastProcessedSequence {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.Registry.Apply(ev); err != nil {
		return fmt.Errorf("projector: apply to registry: %w", err)
	}

	var claim *ledgercore.Claim
	switch ev.EventType {
	case ledgercore.ClaimDeclared:
		claim = p.applyDeclared(ev)
	case ledgercore.ClaimOperationalized:
		claim = p.applyOperationalized(ev)
	case ledgercore.EvidenceAdded:
		claim = p.applyEvidenceAdded(ev)
	case ledgercore.ClaimResolved:
		claim = p.applyResolved(ev)
	}

	p.mu.Lock()
	p.lastProcessedSequence = int64(ev.SequenceNumber)
	p.mu.Unlock()

	if p.mirror == nil {
		return nil
	}
	if claim != nil {
		if err := p.mirror.UpsertClaim(ctx, claim); err != nil {
			return fmt.Errorf("projector: mirror claim: %w", err)
		}
	}
	if ev.EventType == ledgercore.EditorRegistered || ev.EventType == ledgercore.EditorDeactivated {
		if editorID, ok := editorIDFromEvent(ev); ok {
			if e, found := p.Registry.Get(editorID); found {
				if err := p.mirror.UpsertEditor(ctx, e); err != nil {
					return fmt.Errorf("projector: mirror editor: %w", err)
				}
			}
		}
	}
	if ev.EventType == ledgercore.EvidenceAdded && ev.ClaimID != nil {
		for _, e := range p.EvidenceForClaim(*ev.ClaimID) {
			if e.EvidenceID == ev.EventID {
				if err := p.mirror.UpsertEvidence(ctx, e); err != nil {
					return fmt.Errorf("projector: mirror evidence: %w", err)
				}
				break
			}
		}
	}
	return p.mirror.SetLastProcessedSequence(ctx, int64(ev.SequenceNumber))
}

func editorIDFromEvent(ev *ledgercore.Event) (uuid.UUID, bool) {
	if raw, ok := ev.Payload["editor_id"].(string); ok && raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, true
		}
	}
	return ev.CreatedBy, true
}

func (p *Projector) applyDeclared(ev *ledgercore.Event) *ledgercore.Claim {
	if ev.ClaimID == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	statement, _ := ev.Payload["statement"].(string)
	c := &ledgercore.Claim{
		ClaimID:     *ev.ClaimID,
		Status:      ledgercore.ClaimStatusDeclared,
		Statement:   statement,
		CreatedBy:   ev.CreatedBy,
		CreatedAt:   ev.CreatedAt,
		LastUpdated: ev.CreatedAt,
	}
	p.claims[*ev.ClaimID] = c
	return c
}

func (p *Projector) applyOperationalized(ev *ledgercore.Event) *ledgercore.Claim {
	if ev.ClaimID == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.claims[*ev.ClaimID]
	if !ok {
		return nil
	}
	if desc, ok := ev.Payload["outcome_description"].(string); ok {
		c.OutcomeDescription = desc
	}
	c.Status = ledgercore.ClaimStatusOperationalized
	c.LastUpdated = ev.CreatedAt
	return c
}

func (p *Projector) applyEvidenceAdded(ev *ledgercore.Event) *ledgercore.Claim {
	if ev.ClaimID == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	sourceURL, _ := ev.Payload["source_url"].(string)
	sourceTitle, _ := ev.Payload["source_title"].(string)
	evidenceType, _ := ev.Payload["evidence_type"].(string)
	summary, _ := ev.Payload["summary"].(string)
	supports, _ := ev.Payload["supports_claim"].(bool)
	confidence, _ := ev.Payload["confidence_score"].(string)

	p.evidence[*ev.ClaimID] = append(p.evidence[*ev.ClaimID], &ledgercore.Evidence{
		EvidenceID:      ev.EventID,
		ClaimID:         *ev.ClaimID,
		SourceURL:       sourceURL,
		SourceTitle:     sourceTitle,
		EvidenceType:    evidenceType,
		Summary:         summary,
		SupportsClaim:   supports,
		ConfidenceScore: confidence,
		AddedAt:         ev.CreatedAt,
	})

	c, ok := p.claims[*ev.ClaimID]
	if !ok {
		return nil
	}
	c.EvidenceCount++
	// Per the status transition rules: only flip operationalized claims
	// to "observing"; a still-declared claim's status is untouched.
	if c.Status == ledgercore.ClaimStatusOperationalized {
		c.Status = ledgercore.ClaimStatusObserving
	}
	c.LastUpdated = ev.CreatedAt
	return c
}

func (p *Projector) applyResolved(ev *ledgercore.Event) *ledgercore.Claim {
	if ev.ClaimID == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.claims[*ev.ClaimID]
	if !ok {
		return nil
	}
	if resolution, ok := ev.Payload["resolution"].(string); ok {
		c.Resolution = resolution
	}
	c.Status = ledgercore.ClaimStatusResolved
	at := ev.CreatedAt
	c.ResolvedAt = &at
	c.LastUpdated = ev.CreatedAt
	return c
}

// Rebuild truncates every projection (including the registry) and
// replays the full event log in order, used by the rebuild-projections
// operator command and on startup recovery.
func (p *Projector) Rebuild(ctx context.Context, iterate func(context.Context, func(*ledgercore.Event) error) error) error {
	p.mu.Lock()
	p.claims = make(map[uuid.UUID]*ledgercore.Claim)
	p.evidence = make(map[uuid.UUID][]*ledgercore.Evidence)
	p.lastProcessedSequence = -1
	p.mu.Unlock()
	p.Registry.Reset()

	if p.mirror != nil {
		if err := p.mirror.Truncate(ctx); err != nil {
			return fmt.Errorf("projector: truncate mirror: %w", err)
		}
	}

	return iterate(ctx, func(ev *ledgercore.Event) error {
		return p.Apply(ctx, ev)
	})
}
