package ledgerservice

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/projector"
)

func newTestService(t *testing.T) (*Service, *InMemoryKeyProvider, *projector.Projector) {
	t.Helper()
	proj := projector.New(nil)
	keys := NewInMemoryKeyProvider(nil)
	store := eventstore.NewMemoryStore(proj.Registry.PublicKey)
	return New(store, proj, keys), keys, proj
}

func TestDeclareOperationalizeEvidenceResolve(t *testing.T) {
	svc, keys, proj := newTestService(t)
	ctx := context.Background()

	editorID := uuid.New()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys.SetKey(editorID, priv)

	if _, err := svc.submit(ctx, ledgercore.EditorRegistered, editorID, nil, map[string]interface{}{
		"username":   "alice",
		"public_key": base64.StdEncoding.EncodeToString(pub),
	}); err != nil {
		t.Fatalf("register editor: %v", err)
	}

	claimID, declRes, err := svc.DeclareClaim(ctx, editorID, DeclareClaimCommand{
		Statement: "Interest rates will rise next quarter",
		ClaimType: "predictive",
	})
	if err != nil {
		t.Fatalf("declare claim: %v", err)
	}
	if declRes.SequenceNumber != 1 {
		t.Fatalf("expected declare to be sequence 1 (after editor registration), got %d", declRes.SequenceNumber)
	}

	if _, err := svc.OperationalizeClaim(ctx, editorID, claimID, OperationalizeClaimCommand{
		OutcomeDescription: "Central bank raises benchmark rate",
		Metrics:            []string{"federal_funds_rate"},
		DirectionOfChange:  "increase",
		StartDate:          "2026-01-01",
		EvaluationDate:     "2026-04-01",
		SuccessConditions:  []string{"rate increases by at least 25bps"},
	}); err != nil {
		t.Fatalf("operationalize claim: %v", err)
	}

	if claim, ok := proj.GetClaim(claimID); !ok || claim.Status != ledgercore.ClaimStatusOperationalized {
		t.Fatalf("expected operationalized status, got %+v ok=%v", claim, ok)
	}

	evRes, err := svc.AddEvidence(ctx, editorID, claimID, AddEvidenceCommand{
		SourceURL:     "https://example.com/report",
		SourceTitle:   "Q1 Rate Report",
		SupportsClaim: true,
	})
	if err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	if claim, _ := proj.GetClaim(claimID); claim.Status != ledgercore.ClaimStatusObserving {
		t.Fatalf("expected observing status after evidence, got %s", claim.Status)
	}

	if _, err := svc.ResolveClaim(ctx, editorID, claimID, ResolveClaimCommand{
		Resolution:            "met",
		ResolutionSummary:     "The benchmark rate rose by 50bps during the window.",
		SupportingEvidenceIDs: []string{evRes.EventID.String()},
	}); err != nil {
		t.Fatalf("resolve claim: %v", err)
	}
	if claim, _ := proj.GetClaim(claimID); claim.Status != ledgercore.ClaimStatusResolved {
		t.Fatalf("expected resolved status, got %s", claim.Status)
	}

	if _, err := svc.AddEvidence(ctx, editorID, claimID, AddEvidenceCommand{
		SourceURL: "https://example.com/late", SourceTitle: "Late evidence", SupportsClaim: true,
	}); !errors.Is(err, ledgercore.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition after resolution, got %v", err)
	}
}

func TestOperationalizeWithoutDeclareFails(t *testing.T) {
	svc, keys, _ := newTestService(t)
	ctx := context.Background()

	editorID := uuid.New()
	pub, priv, _ := ed25519.GenerateKey(nil)
	keys.SetKey(editorID, priv)
	if _, err := svc.submit(ctx, ledgercore.EditorRegistered, editorID, nil, map[string]interface{}{
		"username": "bob", "public_key": base64.StdEncoding.EncodeToString(pub),
	}); err != nil {
		t.Fatalf("register editor: %v", err)
	}

	_, err := svc.OperationalizeClaim(ctx, editorID, uuid.New(), OperationalizeClaimCommand{
		OutcomeDescription: "x",
		Metrics:            []string{"m"},
		DirectionOfChange:  "increase",
		StartDate:          "2026-01-01",
		EvaluationDate:     "2026-04-01",
		SuccessConditions:  []string{"c"},
	})
	if !errors.Is(err, ledgercore.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestDeclareClaimValidation(t *testing.T) {
	svc, keys, _ := newTestService(t)
	ctx := context.Background()

	editorID := uuid.New()
	pub, priv, _ := ed25519.GenerateKey(nil)
	keys.SetKey(editorID, priv)
	if _, err := svc.submit(ctx, ledgercore.EditorRegistered, editorID, nil, map[string]interface{}{
		"username": "carol", "public_key": base64.StdEncoding.EncodeToString(pub),
	}); err != nil {
		t.Fatalf("register editor: %v", err)
	}

	_, _, err := svc.DeclareClaim(ctx, editorID, DeclareClaimCommand{Statement: "too short"})
	if !errors.Is(err, ledgercore.ErrValidation) {
		t.Fatalf("expected ErrValidation for short statement, got %v", err)
	}
}

func TestUnauthorizedEditorRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	unknownEditor := uuid.New()
	_, _, err := svc.DeclareClaim(ctx, unknownEditor, DeclareClaimCommand{
		Statement: "Unauthorized editors cannot declare claims",
	})
	if !errors.Is(err, ledgercore.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDeactivatedEditorRejected(t *testing.T) {
	svc, keys, proj := newTestService(t)
	ctx := context.Background()

	editorID := uuid.New()
	pub, priv, _ := ed25519.GenerateKey(nil)
	keys.SetKey(editorID, priv)
	if _, err := svc.submit(ctx, ledgercore.EditorRegistered, editorID, nil, map[string]interface{}{
		"username": "dave", "public_key": base64.StdEncoding.EncodeToString(pub),
	}); err != nil {
		t.Fatalf("register editor: %v", err)
	}
	if !proj.Registry.IsActive(editorID) {
		t.Fatalf("expected editor to be active after registration")
	}

	if _, err := svc.DeactivateEditor(ctx, uuid.Nil, DeactivateEditorCommand{EditorID: editorID}); err != nil {
		t.Fatalf("deactivate editor: %v", err)
	}
	if proj.Registry.IsActive(editorID) {
		t.Fatalf("expected editor to be inactive after deactivation")
	}

	_, _, err := svc.DeclareClaim(ctx, editorID, DeclareClaimCommand{
		Statement: "A deactivated editor should not be able to declare claims",
	})
	if !errors.Is(err, ledgercore.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deactivated editor, got %v", err)
	}
}

// TestCorruptionSuspendsWrites checks that a failed chain verification
// latches the ledger into refusing further writes until an operator runs
// MarkRecovered, and that MarkRecovered refuses to clear the latch while
// the chain is still actually broken.
func TestCorruptionSuspendsWrites(t *testing.T) {
	svc, keys, _ := newTestService(t)
	ctx := context.Background()

	editorID := uuid.New()
	pub, priv, _ := ed25519.GenerateKey(nil)
	keys.SetKey(editorID, priv)
	if _, err := svc.submit(ctx, ledgercore.EditorRegistered, editorID, nil, map[string]interface{}{
		"username": "erin", "public_key": base64.StdEncoding.EncodeToString(pub),
	}); err != nil {
		t.Fatalf("register editor: %v", err)
	}

	tail, err := svc.store.Tail(ctx)
	if err != nil || tail == nil {
		t.Fatalf("expected a tail event after registration, err=%v tail=%v", err, tail)
	}
	tail.Payload["username"] = "tampered"

	status, err := svc.VerifyChain(ctx)
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if status.Valid {
		t.Fatalf("expected verification to fail after tampering")
	}
	if !svc.IsCorrupted() {
		t.Fatalf("expected ledger to be latched corrupted after a failed verification")
	}

	if _, err := svc.DeclareClaim(ctx, editorID, DeclareClaimCommand{
		Statement: "Writes should be refused while the ledger is corrupted",
	}); !errors.Is(err, ledgercore.ErrLedgerCorruption) {
		t.Fatalf("expected ErrLedgerCorruption, got %v", err)
	}

	if _, err := svc.MarkRecovered(ctx); !errors.Is(err, ledgercore.ErrLedgerCorruption) {
		t.Fatalf("expected MarkRecovered to refuse while chain is still broken, got %v", err)
	}
	if !svc.IsCorrupted() {
		t.Fatalf("expected ledger to remain latched corrupted")
	}

	tail.Payload["username"] = "erin"

	if _, err := svc.MarkRecovered(ctx); err != nil {
		t.Fatalf("expected MarkRecovered to succeed once the chain is sound, got %v", err)
	}
	if svc.IsCorrupted() {
		t.Fatalf("expected ledger to be un-latched after recovery")
	}

	if _, err := svc.DeclareClaim(ctx, editorID, DeclareClaimCommand{
		Statement: "Writes should resume once the ledger is marked recovered",
	}); err != nil {
		t.Fatalf("expected write to succeed after recovery, got %v", err)
	}
}
