package anchor

import (
	"context"
	"fmt"

	"github.com/accountabilityme/ledger/pkg/firestore"
)

// FirestoreWitness anchors a Merkle root by mirroring it into a
// Firestore document instead of an external blockchain. Documents are
// keyed by the root itself, which is unique per batch, so it implements
// the same Witness interface as the Ethereum adapter with no extra batch
// metadata required.
type FirestoreWitness struct {
	client *firestore.Client
}

// NewFirestoreWitness builds a witness over client.
func NewFirestoreWitness(client *firestore.Client) *FirestoreWitness {
	return &FirestoreWitness{client: client}
}

// Publish writes merkleRoot to Firestore and returns the document path
// as the external reference a verifier checks it against later.
func (w *FirestoreWitness) Publish(ctx context.Context, merkleRoot string) (string, error) {
	if err := w.client.PublishAnchor(ctx, merkleRoot, "", merkleRoot, 0, 0); err != nil {
		return "", fmt.Errorf("firestore witness: %w", err)
	}
	return fmt.Sprintf("anchor_publications/%s", merkleRoot), nil
}
