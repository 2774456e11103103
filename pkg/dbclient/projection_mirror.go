package dbclient

import (
	"context"
	"fmt"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// ProjectionMirror implements projector.SQLMirror over claims_projection,
// editors_projection, evidence_projection, and projection_metadata, the
// four tables migrations/0001_init.sql defines for exactly this purpose.
// It upserts on every projector.Apply call so the Postgres tables track
// the in-memory read models; the projector never reads them back, and
// on startup it rebuilds both by replaying the full event log.
type ProjectionMirror struct {
	client *Client
}

// NewProjectionMirror builds a mirror over an already-migrated client.
func NewProjectionMirror(client *Client) *ProjectionMirror {
	return &ProjectionMirror{client: client}
}

// nullIfEmpty maps an empty string to SQL NULL, mirroring the event
// store's own helper of the same name for the same TEXT-or-NULL columns.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (m *ProjectionMirror) UpsertClaim(ctx context.Context, c *ledgercore.Claim) error {
	_, err := m.client.DB().ExecContext(ctx, `
		INSERT INTO claims_projection
			(claim_id, status, statement, outcome_description, resolution,
			 evidence_count, created_by, created_at, last_updated, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (claim_id) DO UPDATE SET
			status = EXCLUDED.status,
			statement = EXCLUDED.statement,
			outcome_description = EXCLUDED.outcome_description,
			resolution = EXCLUDED.resolution,
			evidence_count = EXCLUDED.evidence_count,
			last_updated = EXCLUDED.last_updated,
			resolved_at = EXCLUDED.resolved_at`,
		c.ClaimID, string(c.Status), nullIfEmpty(c.Statement), nullIfEmpty(c.OutcomeDescription),
		nullIfEmpty(c.Resolution), c.EvidenceCount, c.CreatedBy, c.CreatedAt, c.LastUpdated, c.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("dbclient: upsert claim %s: %w", c.ClaimID, err)
	}
	return nil
}

func (m *ProjectionMirror) UpsertEditor(ctx context.Context, e *ledgercore.Editor) error {
	_, err := m.client.DB().ExecContext(ctx, `
		INSERT INTO editors_projection
			(editor_id, username, display_name, role, public_key, is_active,
			 registered_at, registered_by, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (editor_id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			deactivated_at = EXCLUDED.deactivated_at`,
		e.EditorID, e.Username, e.DisplayName, e.Role, e.PublicKey, e.IsActive,
		e.RegisteredAt, e.RegisteredBy, e.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("dbclient: upsert editor %s: %w", e.EditorID, err)
	}
	return nil
}

func (m *ProjectionMirror) UpsertEvidence(ctx context.Context, ev *ledgercore.Evidence) error {
	_, err := m.client.DB().ExecContext(ctx, `
		INSERT INTO evidence_projection
			(evidence_id, claim_id, source_url, source_title, evidence_type,
			 summary, supports_claim, confidence_score, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (evidence_id) DO NOTHING`,
		ev.EvidenceID, ev.ClaimID, ev.SourceURL, ev.SourceTitle, nullIfEmpty(ev.EvidenceType),
		nullIfEmpty(ev.Summary), ev.SupportsClaim, nullIfEmpty(ev.ConfidenceScore), ev.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("dbclient: upsert evidence %s: %w", ev.EvidenceID, err)
	}
	return nil
}

func (m *ProjectionMirror) SetLastProcessedSequence(ctx context.Context, seq int64) error {
	_, err := m.client.DB().ExecContext(ctx,
		`UPDATE projection_metadata SET last_processed_sequence = $1 WHERE id = true`, seq)
	if err != nil {
		return fmt.Errorf("dbclient: set last processed sequence: %w", err)
	}
	return nil
}

// Truncate clears every projection table ahead of a full Rebuild.
func (m *ProjectionMirror) Truncate(ctx context.Context) error {
	_, err := m.client.DB().ExecContext(ctx,
		`TRUNCATE claims_projection, editors_projection, evidence_projection`)
	if err != nil {
		return fmt.Errorf("dbclient: truncate projections: %w", err)
	}
	if err := m.SetLastProcessedSequence(ctx, -1); err != nil {
		return err
	}
	return nil
}

// LastProcessedSequence reads the Postgres-persisted replay checkpoint.
// It is not part of projector.SQLMirror; Rebuild does not consult it and
// always replays from sequence 0.
func (m *ProjectionMirror) LastProcessedSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := m.client.DB().QueryRowContext(ctx,
		`SELECT last_processed_sequence FROM projection_metadata WHERE id = true`).Scan(&seq)
	if err != nil {
		return -1, fmt.Errorf("dbclient: read last processed sequence: %w", err)
	}
	return seq, nil
}
