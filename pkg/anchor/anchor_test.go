package anchor

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgercore/canon"
)

// appendEvents appends n chained CLAIM_DECLARED events directly to store,
// bypassing signature verification (the anchor service never checks
// signatures, only event_hash chaining), and returns them in order.
func appendEvents(t *testing.T, store *eventstore.MemoryStore, n int) []*ledgercore.Event {
	t.Helper()
	ctx := context.Background()
	var prevHash string
	out := make([]*ledgercore.Event, 0, n)
	for i := 0; i < n; i++ {
		claimID := uuid.New()
		payload := map[string]interface{}{"statement": "claim number"}
		canonical, err := canon.Canonicalize(payload)
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		hash := ledgercore.ComputeEventHash(prevHash, canonical)
		ev := &ledgercore.Event{
			EventID: uuid.New(), EventType: ledgercore.ClaimDeclared, ClaimID: &claimID,
			Payload: payload, PreviousEventHash: prevHash, EventHash: hash, CreatedBy: uuid.New(),
		}
		stored, err := store.Append(ctx, ev)
		if err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		out = append(out, stored)
		prevHash = stored.EventHash
	}
	return out
}

type fakeWitness struct {
	ref string
	err error
}

func (w *fakeWitness) Publish(ctx context.Context, merkleRoot string) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	return w.ref, nil
}

func TestCheckAndCreateBatchRespectsSizeThreshold(t *testing.T) {
	store := eventstore.NewMemoryStore(nil)
	appendEvents(t, store, 2)

	svc := New(store, nil, nil, Config{SizeThreshold: 5})
	batch, err := svc.CheckAndCreateBatch(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if batch != nil {
		t.Fatalf("expected no batch below size threshold, got %+v", batch)
	}

	appendEvents(t, store, 3)
	batch, err = svc.CheckAndCreateBatch(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if batch == nil {
		t.Fatal("expected a batch once size threshold met")
	}
	if batch.StartSequence != 0 || batch.EndSequence != 4 {
		t.Fatalf("expected batch covering [0,4], got [%d,%d]", batch.StartSequence, batch.EndSequence)
	}
	if batch.Status != ledgercore.AnchorBatchPending {
		t.Fatalf("expected pending status, got %s", batch.Status)
	}
}

func TestInclusionProofVerifiesAgainstRoot(t *testing.T) {
	store := eventstore.NewMemoryStore(nil)
	events := appendEvents(t, store, 4)

	svc := New(store, nil, nil, Config{SizeThreshold: 4})
	batch, err := svc.CheckAndCreateBatch(context.Background())
	if err != nil || batch == nil {
		t.Fatalf("expected batch, err=%v", err)
	}

	target := events[2]
	proof, err := svc.InclusionProof(target.EventID)
	if err != nil {
		t.Fatalf("inclusion proof: %v", err)
	}
	if proof.MerkleRoot != batch.MerkleRoot {
		t.Fatalf("proof root %s does not match batch root %s", proof.MerkleRoot, batch.MerkleRoot)
	}

	if proof.LeafHash != target.EventHash {
		t.Fatalf("proof leaf hash %s does not match event hash %s", proof.LeafHash, target.EventHash)
	}

	ok, err := VerifyInclusionProof(proof)
	if err != nil {
		t.Fatalf("verify proof: %v", err)
	}
	if !ok {
		t.Fatal("expected inclusion proof to verify")
	}
}

func TestInclusionProofUnknownEventFails(t *testing.T) {
	store := eventstore.NewMemoryStore(nil)
	appendEvents(t, store, 2)
	svc := New(store, nil, nil, Config{SizeThreshold: 10})

	if _, err := svc.InclusionProof(uuid.New()); err == nil {
		t.Fatal("expected error for event not yet anchored")
	}
}

func TestPublishUpdatesBatchStatus(t *testing.T) {
	store := eventstore.NewMemoryStore(nil)
	appendEvents(t, store, 2)
	witness := &fakeWitness{ref: "0xdeadbeef"}
	svc := New(store, nil, witness, Config{SizeThreshold: 2})

	batch, err := svc.CheckAndCreateBatch(context.Background())
	if err != nil || batch == nil {
		t.Fatalf("expected batch, err=%v", err)
	}

	if err := svc.Publish(context.Background(), batch.BatchID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	batches := svc.ListBatches()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if batches[0].Status != ledgercore.AnchorBatchAnchored {
		t.Fatalf("expected anchored status, got %s", batches[0].Status)
	}
	if batches[0].ExternalRef != "0xdeadbeef" {
		t.Fatalf("expected external ref to be recorded, got %q", batches[0].ExternalRef)
	}
	if batches[0].AnchoredAt == nil {
		t.Fatal("expected anchored_at to be set")
	}
}

func TestPublishRecordsFailureOnWitnessError(t *testing.T) {
	store := eventstore.NewMemoryStore(nil)
	appendEvents(t, store, 2)
	witness := &fakeWitness{err: hexDecodeErr()}
	svc := New(store, nil, witness, Config{SizeThreshold: 2})

	batch, err := svc.CheckAndCreateBatch(context.Background())
	if err != nil || batch == nil {
		t.Fatalf("expected batch, err=%v", err)
	}

	if err := svc.Publish(context.Background(), batch.BatchID); err == nil {
		t.Fatal("expected publish error to propagate")
	}

	batches := svc.ListBatches()
	if batches[0].Status != ledgercore.AnchorBatchFailed {
		t.Fatalf("expected failed status, got %s", batches[0].Status)
	}
}

func hexDecodeErr() error {
	_, err := hex.DecodeString("zz")
	return err
}
