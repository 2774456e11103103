package bundle

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgercore/canon"
	"github.com/accountabilityme/ledger/pkg/projector"
	"github.com/accountabilityme/ledger/pkg/signer"
)

func buildSingleEventLedger(t *testing.T) (*eventstore.MemoryStore, *projector.Projector, uuid.UUID, uuid.UUID) {
	t.Helper()
	proj := projector.New(nil)
	store := eventstore.NewMemoryStore(proj.Registry.PublicKey)
	ctx := context.Background()

	editorID := uuid.New()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	regPayload := map[string]interface{}{"username": "alice", "public_key": (&signer.KeyPair{PublicKey: pub}).PublicKeyBase64()}
	regCanonical, _ := canon.Canonicalize(regPayload)
	regHash := ledgercore.ComputeEventHash("", regCanonical)
	regHashBytes, _ := ledgercore.DecodeHashBytes(regHash)
	regEvent := &ledgercore.Event{
		EventID: uuid.New(), EventType: ledgercore.EditorRegistered, Payload: regPayload,
		EventHash: regHash, CreatedBy: editorID, EditorSignature: signer.SignBase64(priv, regHashBytes),
	}
	stored, err := store.Append(ctx, regEvent)
	if err != nil {
		t.Fatalf("append register: %v", err)
	}
	if err := proj.Apply(ctx, stored); err != nil {
		t.Fatalf("apply register: %v", err)
	}

	claimID := uuid.New()
	declPayload := map[string]interface{}{"statement": "A claim worth testing end to end"}
	declCanonical, _ := canon.Canonicalize(declPayload)
	declHash := ledgercore.ComputeEventHash(stored.EventHash, declCanonical)
	declHashBytes, _ := ledgercore.DecodeHashBytes(declHash)
	declEvent := &ledgercore.Event{
		EventID: uuid.New(), EventType: ledgercore.ClaimDeclared, ClaimID: &claimID, Payload: declPayload,
		PreviousEventHash: stored.EventHash, EventHash: declHash, CreatedBy: editorID,
		EditorSignature: signer.SignBase64(priv, declHashBytes),
	}
	storedDecl, err := store.Append(ctx, declEvent)
	if err != nil {
		t.Fatalf("append declare: %v", err)
	}
	if err := proj.Apply(ctx, storedDecl); err != nil {
		t.Fatalf("apply declare: %v", err)
	}

	return store, proj, editorID, claimID
}

func TestExportAndVerifyRoundTrip(t *testing.T) {
	store, proj, _, claimID := buildSingleEventLedger(t)
	exporter := New(store, proj)

	b, err := exporter.Export(context.Background(), claimID, true)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(b.Events) != 1 {
		t.Fatalf("expected 1 event in bundle, got %d", len(b.Events))
	}

	result := Verify(b)
	if result.Verdict != Verified {
		t.Fatalf("expected VERIFIED, got %s (%s)", result.Verdict, result.Reason)
	}
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	store, proj, _, claimID := buildSingleEventLedger(t)
	exporter := New(store, proj)
	b, err := exporter.Export(context.Background(), claimID, true)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	b.Events[0].Payload["statement"] = "a tampered statement that was never declared"

	result := Verify(b)
	if result.Verdict != Tampered {
		t.Fatalf("expected TAMPERED, got %s", result.Verdict)
	}
}

func TestVerifyDetectsMissingEditor(t *testing.T) {
	store, proj, _, claimID := buildSingleEventLedger(t)
	exporter := New(store, proj)
	b, err := exporter.Export(context.Background(), claimID, true)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	b.Editors = map[string]EditorRef{}

	result := Verify(b)
	if result.Verdict != Incomplete {
		t.Fatalf("expected INCOMPLETE, got %s", result.Verdict)
	}
}

func TestVerifyRejectsEmptyBundle(t *testing.T) {
	result := Verify(&Bundle{Verification: Verification{HashAlgorithm: "SHA-256", SignatureAlgorithm: "Ed25519"}})
	if result.Verdict != InvalidFormat {
		t.Fatalf("expected INVALID_FORMAT, got %s", result.Verdict)
	}
}

func TestRenderMarkdownIncludesTimelineAndVerdict(t *testing.T) {
	store, proj, _, claimID := buildSingleEventLedger(t)
	exporter := New(store, proj)
	b, err := exporter.Export(context.Background(), claimID, true)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	result := Verify(b)
	md := RenderMarkdown(b, result)

	if !strings.Contains(md, string(claimID.String())) {
		t.Fatalf("expected rendered markdown to mention the claim id, got: %s", md)
	}
	if !strings.Contains(md, "VERIFIED") {
		t.Fatalf("expected rendered markdown to report the verdict, got: %s", md)
	}
	if !strings.Contains(md, "CLAIM_DECLARED") {
		t.Fatalf("expected rendered markdown to list the timeline event type, got: %s", md)
	}
}
