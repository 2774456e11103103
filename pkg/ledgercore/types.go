// Package ledgercore implements the cryptographic event-sourced ledger:
// the append-only event log, canonicalization and hash-chaining, Ed25519
// editor signing, the claim lifecycle graph, and integrity verification.
// Everything outside this package — HTTP routes, CLI glue, config
// loading — is a thin adapter over it and must not weaken what it
// guarantees.
package ledgercore

import (
	"time"

	"github.com/google/uuid"
)

// ====== Event Types ======

// EventType is a tagged variant identifying the shape of an event's
// payload. Dispatch on EventType is exhaustive switch statements
// throughout this package and the projector; reflection is never used.
type EventType string

const (
	ClaimDeclared       EventType = "CLAIM_DECLARED"
	ClaimOperationalized EventType = "CLAIM_OPERATIONALIZED"
	EvidenceAdded       EventType = "EVIDENCE_ADDED"
	ClaimResolved       EventType = "CLAIM_RESOLVED"
	EditorRegistered    EventType = "EDITOR_REGISTERED"
	EditorDeactivated   EventType = "EDITOR_DEACTIVATED"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case ClaimDeclared, ClaimOperationalized, EvidenceAdded, ClaimResolved,
		EditorRegistered, EditorDeactivated:
		return true
	default:
		return false
	}
}

// IsClaimEvent reports whether the event type carries a claim_id and
// participates in the claim lifecycle graph.
func (t EventType) IsClaimEvent() bool {
	switch t {
	case ClaimDeclared, ClaimOperationalized, EvidenceAdded, ClaimResolved:
		return true
	default:
		return false
	}
}

// ====== Event ======

// Event is the atomic unit and the only source of truth in the ledger.
// Events are write-once: no field is ever mutated after append.
type Event struct {
	EventID            uuid.UUID              `json:"event_id"`
	SequenceNumber      uint64                 `json:"sequence_number"`
	EventType           EventType              `json:"event_type"`
	ClaimID             *uuid.UUID             `json:"claim_id,omitempty"`
	Payload             map[string]interface{} `json:"payload"`
	PreviousEventHash    string                 `json:"previous_event_hash,omitempty"`
	EventHash           string                 `json:"event_hash"`
	CreatedBy           uuid.UUID              `json:"created_by"`
	CreatedAt           time.Time              `json:"created_at"`
	EditorSignature     string                 `json:"editor_signature"`
}

// ====== Editor ======

// Editor is a projection of EDITOR_REGISTERED / EDITOR_DEACTIVATED events.
// The registry, not this struct, is the source of truth; this is the
// shape it hands back to callers.
type Editor struct {
	EditorID      uuid.UUID  `json:"editor_id"`
	Username      string     `json:"username"`
	DisplayName   string     `json:"display_name"`
	Role          string     `json:"role"`
	PublicKey     string     `json:"public_key"` // base64 Ed25519 public key, immutable after registration
	IsActive      bool       `json:"is_active"`
	RegisteredAt  time.Time  `json:"registered_at"`
	RegisteredBy  uuid.UUID  `json:"registered_by"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// ====== Claim projection ======

// ClaimStatus is the projector-derived lifecycle state of a claim. It is
// never itself an event type — "observing" in particular is a pure
// view-model state, never emitted to the log.
type ClaimStatus string

const (
	ClaimStatusDeclared       ClaimStatus = "declared"
	ClaimStatusOperationalized ClaimStatus = "operationalized"
	ClaimStatusObserving      ClaimStatus = "observing"
	ClaimStatusResolved       ClaimStatus = "resolved"
)

// Claim is a derived, rebuildable read-model row, not a stored entity.
type Claim struct {
	ClaimID       uuid.UUID   `json:"claim_id"`
	Status        ClaimStatus `json:"status"`
	Statement     string      `json:"statement,omitempty"`
	OutcomeDescription string `json:"outcome_description,omitempty"`
	Resolution    string      `json:"resolution,omitempty"`
	EvidenceCount int         `json:"evidence_count"`
	CreatedBy     uuid.UUID   `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	LastUpdated   time.Time   `json:"last_updated"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
}

// ====== Evidence projection ======

// Evidence is a derived, rebuildable read-model row projected from
// EVIDENCE_ADDED events.
type Evidence struct {
	EvidenceID      uuid.UUID `json:"evidence_id"`
	ClaimID         uuid.UUID `json:"claim_id"`
	SourceURL       string    `json:"source_url"`
	SourceTitle     string    `json:"source_title"`
	EvidenceType    string    `json:"evidence_type,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	SupportsClaim   bool      `json:"supports_claim"`
	ConfidenceScore string    `json:"confidence_score,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

// ====== Anchor batch ======

// AnchorBatchStatus is the lifecycle state of a batch of anchored events.
type AnchorBatchStatus string

const (
	AnchorBatchPending  AnchorBatchStatus = "pending"
	AnchorBatchAnchored AnchorBatchStatus = "anchored"
	AnchorBatchFailed   AnchorBatchStatus = "failed"
)

// AnchorBatch records a Merkle root covering a contiguous range of
// event_hashes, and optionally the reference to the external witness it
// was published to.
type AnchorBatch struct {
	BatchID        uuid.UUID         `json:"batch_id"`
	StartSequence  uint64            `json:"start_sequence"`
	EndSequence    uint64            `json:"end_sequence"`
	MerkleRoot     string            `json:"merkle_root"`
	Status         AnchorBatchStatus `json:"status"`
	ExternalRef    string            `json:"external_ref,omitempty"` // git tag, blockchain txid, S3 version, ...
	CreatedAt      time.Time         `json:"created_at"`
	AnchoredAt     *time.Time        `json:"anchored_at,omitempty"`
}

// ====== Integrity status ======

// IntegrityStatus is the cached chain status the query layer serves
// without a full rescan.
type IntegrityStatus struct {
	Valid          bool      `json:"ledger_integrity_valid"`
	EventCount     uint64    `json:"event_count"`
	LastEventHash  string    `json:"last_event_hash"`
	CheckedAt      time.Time `json:"checked_at"`
	FirstBadSeq    *uint64   `json:"first_bad_sequence,omitempty"`
}
