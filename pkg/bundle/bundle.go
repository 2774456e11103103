// Package bundle implements the Bundle Exporter: given a
// claim_id, produces a self-contained artifact that a verifier with no
// access to the ledger can check end to end.
//
// The bundle carries its own metadata (bundle_version, ruleset_version,
// exported_at)
// alongside the events and signatures it vouches for, so it is
// independently reverifiable offline against nothing but the
// canonicalize/hash/sign/link chain this ledger actually makes.
package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgercore/canon"
	"github.com/accountabilityme/ledger/pkg/projector"
	"github.com/accountabilityme/ledger/pkg/signer"
)

// BundleVersion is the exported artifact's format version.
const BundleVersion = 1

// RulesetVersion identifies the canonicalization/hash/signature ruleset
// the bundle was produced under, so a verifier written against a later
// ruleset can detect incompatibility instead of silently misverifying.
const RulesetVersion = 1

// Meta is the bundle's top-level identification block.
type Meta struct {
	BundleVersion      int       `json:"bundle_version"`
	RulesetVersion     int       `json:"ruleset_version"`
	ExportedAt         time.Time `json:"exported_at"`
	ClaimID            uuid.UUID `json:"claim_id"`
	ChainValidAtExport bool      `json:"chain_valid_at_export"`
}

// Verification documents the algorithms a verifier must use, so the
// bundle is self-describing without consulting this repository.
type Verification struct {
	CanonicalizationVersion int    `json:"canonicalization_version"`
	HashAlgorithm           string `json:"hash_algorithm"`
	SignatureAlgorithm      string `json:"signature_algorithm"`
}

// ClaimSummary is the bundle's denormalized claim header.
type ClaimSummary struct {
	ClaimID    uuid.UUID           `json:"claim_id"`
	Status     ledgercore.ClaimStatus `json:"status"`
	EventCount int                 `json:"event_count"`
}

// EditorRef is the bundle's per-editor public key record.
type EditorRef struct {
	PublicKey string `json:"public_key"`
	Username  string `json:"username"`
}

// Bundle is the full exported artifact.
type Bundle struct {
	Meta         Meta                    `json:"_meta"`
	Verification Verification            `json:"_verification"`
	Claim        ClaimSummary            `json:"claim"`
	Events       []*ledgercore.Event     `json:"events"`
	Editors      map[string]EditorRef    `json:"editors"`
}

// Exporter produces claim bundles from the live event store and
// projector.
type Exporter struct {
	store     eventstore.EventStore
	projector *projector.Projector
}

// New builds an Exporter over store and proj.
func New(store eventstore.EventStore, proj *projector.Projector) *Exporter {
	return &Exporter{store: store, projector: proj}
}

// Export builds a claim bundle for claimID. chainValidAtExport should be
// the most recently cached integrity check result; it is informational
// only and does not affect verification, which a Verifier recomputes
// from the bundle's own contents.
func (e *Exporter) Export(ctx context.Context, claimID uuid.UUID, chainValidAtExport bool) (*Bundle, error) {
	claim, ok := e.projector.GetClaim(claimID)
	if !ok {
		return nil, fmt.Errorf("%w: claim %s", ledgercore.ErrNotFound, claimID)
	}
	events, err := e.store.RangeByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("bundle: range by claim: %w", err)
	}

	editors := make(map[string]EditorRef)
	for _, ev := range events {
		id := ev.CreatedBy.String()
		if _, ok := editors[id]; ok {
			continue
		}
		if editor, ok := e.projector.Registry.Get(ev.CreatedBy); ok {
			editors[id] = EditorRef{PublicKey: editor.PublicKey, Username: editor.Username}
		}
	}

	return &Bundle{
		Meta: Meta{
			BundleVersion:      BundleVersion,
			RulesetVersion:     RulesetVersion,
			ExportedAt:         time.Now().UTC(),
			ClaimID:            claimID,
			ChainValidAtExport: chainValidAtExport,
		},
		Verification: Verification{
			CanonicalizationVersion: canon.Version,
			HashAlgorithm:           "SHA-256",
			SignatureAlgorithm:      "Ed25519",
		},
		Claim: ClaimSummary{
			ClaimID:    claimID,
			Status:     claim.Status,
			EventCount: len(events),
		},
		Events:  events,
		Editors: editors,
	}, nil
}

// Verdict classifies a bundle verification outcome.
type Verdict string

const (
	Verified      Verdict = "VERIFIED"
	Tampered      Verdict = "TAMPERED"
	Incomplete    Verdict = "INCOMPLETE"
	InvalidFormat Verdict = "INVALID_FORMAT"
)

// VerifyResult reports the verdict plus, for TAMPERED/INCOMPLETE, the
// offending sequence number and reason.
type VerifyResult struct {
	Verdict    Verdict `json:"verdict"`
	Reason     string  `json:"reason,omitempty"`
	BadSequence *uint64 `json:"bad_sequence,omitempty"`
}

// Verify checks a bundle with no access to the live ledger. A claim's
// events are a sparse subset of the full ledger's sequence_number
// space — other claims' events may fall between them — so chain
// linkage is only checked between bundle events that are themselves
// globally consecutive (sequence_number N, N+1); for every event,
// regardless of linkage, the event_hash is independently recomputed
// from its own (payload, previous_event_hash) and its signature is
// verified against the bundle's editors block.
func Verify(b *Bundle) VerifyResult {
	if b == nil || b.Verification.HashAlgorithm != "SHA-256" || b.Verification.SignatureAlgorithm != "Ed25519" {
		return VerifyResult{Verdict: InvalidFormat, Reason: "missing or unrecognized verification parameters"}
	}
	if len(b.Events) == 0 {
		return VerifyResult{Verdict: InvalidFormat, Reason: "bundle contains no events"}
	}

	var prevSeq uint64
	var prevHash string
	haveGlobalPrev := false

	for _, ev := range b.Events {
		canonical, err := canon.Canonicalize(ev.Payload)
		if err != nil {
			return VerifyResult{Verdict: InvalidFormat, Reason: fmt.Sprintf("sequence %d: %v", ev.SequenceNumber, err)}
		}
		recomputed := ledgercore.ComputeEventHash(ev.PreviousEventHash, canonical)
		if !ledgercore.HashesEqual(recomputed, ev.EventHash) {
			seq := ev.SequenceNumber
			return VerifyResult{Verdict: Tampered, Reason: "event_hash does not match recomputed hash", BadSequence: &seq}
		}

		if haveGlobalPrev && ev.SequenceNumber == prevSeq+1 {
			if !ledgercore.HashesEqual(ev.PreviousEventHash, prevHash) {
				seq := ev.SequenceNumber
				return VerifyResult{Verdict: Tampered, Reason: "chain linkage broken between consecutive events", BadSequence: &seq}
			}
		}

		editorRef, ok := b.Editors[ev.CreatedBy.String()]
		if !ok {
			seq := ev.SequenceNumber
			return VerifyResult{Verdict: Incomplete, Reason: "signing editor not present in bundle", BadSequence: &seq}
		}
		hashBytes, err := ledgercore.DecodeHashBytes(ev.EventHash)
		if err != nil {
			return VerifyResult{Verdict: InvalidFormat, Reason: fmt.Sprintf("sequence %d: %v", ev.SequenceNumber, err)}
		}
		if err := signer.VerifyBase64(editorRef.PublicKey, ev.EditorSignature, hashBytes); err != nil {
			seq := ev.SequenceNumber
			return VerifyResult{Verdict: Tampered, Reason: "editor signature invalid", BadSequence: &seq}
		}

		prevSeq = ev.SequenceNumber
		prevHash = ev.EventHash
		haveGlobalPrev = true
	}

	return VerifyResult{Verdict: Verified}
}
