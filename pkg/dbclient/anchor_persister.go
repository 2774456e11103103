package dbclient

import (
	"context"
	"fmt"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// AnchorPersister implements anchor.Persister over the anchor_batches
// table, the Postgres half of the anchor service's "memory-only, or
// mirrored" storage split, mirroring ProjectionMirror's role for claim
// projections.
type AnchorPersister struct {
	client *Client
}

// NewAnchorPersister builds a persister over an already-migrated client.
func NewAnchorPersister(client *Client) *AnchorPersister {
	return &AnchorPersister{client: client}
}

func (p *AnchorPersister) InsertBatch(ctx context.Context, b *ledgercore.AnchorBatch) error {
	_, err := p.client.DB().ExecContext(ctx, `
		INSERT INTO anchor_batches
			(batch_id, start_sequence, end_sequence, merkle_root, status,
			 external_ref, created_at, anchored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.BatchID, b.StartSequence, b.EndSequence, b.MerkleRoot, string(b.Status),
		nullIfEmpty(b.ExternalRef), b.CreatedAt, b.AnchoredAt,
	)
	if err != nil {
		return fmt.Errorf("dbclient: insert anchor batch %s: %w", b.BatchID, err)
	}
	return nil
}

func (p *AnchorPersister) UpdateBatch(ctx context.Context, b *ledgercore.AnchorBatch) error {
	_, err := p.client.DB().ExecContext(ctx,
		`UPDATE anchor_batches SET status = $2, external_ref = $3, anchored_at = $4 WHERE batch_id = $1`,
		b.BatchID, string(b.Status), nullIfEmpty(b.ExternalRef), b.AnchoredAt,
	)
	if err != nil {
		return fmt.Errorf("dbclient: update anchor batch %s: %w", b.BatchID, err)
	}
	return nil
}
