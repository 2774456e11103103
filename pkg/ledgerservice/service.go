// Package ledgerservice orchestrates ingress commands into appended,
// signed, chain-linked events . It sits between the thin
// adapters (HTTP, CLI) and the pure pkg/ledgercore types: it is the only
// place that appends to an eventstore.EventStore and notifies a
// projector.Projector, which pkg/ledgercore cannot do without an import
// cycle (eventstore already imports ledgercore for its types).
package ledgerservice

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgercore/canon"
	"github.com/accountabilityme/ledger/pkg/projector"
	"github.com/accountabilityme/ledger/pkg/signer"
)

// maxAppendRetries bounds the restart-on-race loop in step 6 of the
// orchestration pipeline.
const maxAppendRetries = 3

// Result is the {event_id, event_hash, sequence_number} triple every
// ingress command returns on success.
type Result struct {
	EventID        uuid.UUID `json:"event_id"`
	EventHash      string    `json:"event_hash"`
	SequenceNumber uint64    `json:"sequence_number"`
}

// Service orchestrates the six ingress commands over a store, a
// projector, and a key provider.
type Service struct {
	store     eventstore.EventStore
	projector *projector.Projector
	keys      KeyProvider
	logger    *log.Logger

	// corrupted latches true the moment a chain verification finds a
	// broken link or hash mismatch ("any hash mismatch on
	// replay is fatal ... the ledger refuses further writes until an
	// operator marks it recovered"). Writes check this before anything
	// else; only MarkRecovered can clear it, and only after a fresh
	// verification passes.
	corrupted atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds a Service. proj must be the same Projector instance the
// query layer reads from, since the ledger service notifies it
// synchronously before returning.
func New(store eventstore.EventStore, proj *projector.Projector, keys KeyProvider, opts ...Option) *Service {
	s := &Service{
		store:     store,
		projector: proj,
		keys:      keys,
		logger:    log.New(log.Writer(), "[LEDGER] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// submit runs the full orchestration pipeline for one command:
// validate, lifecycle-check, authorize, canonicalize, hash, sign,
// append-with-retry, project.
func (s *Service) submit(ctx context.Context, eventType ledgercore.EventType, editorID uuid.UUID, claimID *uuid.UUID, payload map[string]interface{}) (*Result, error) {
	if s.corrupted.Load() {
		return nil, fmt.Errorf("%w: ledger writes are suspended pending operator recovery", ledgercore.ErrLedgerCorruption)
	}

	if err := validatePayload(eventType, payload); err != nil {
		return nil, err
	}

	if eventType == ledgercore.EditorRegistered {
		target := editorID
		if raw, ok := payload["editor_id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				target = id
			}
		}
		if _, exists := s.projector.Registry.Get(target); exists {
			return nil, fmt.Errorf("%w: editor %s is already registered", ledgercore.ErrValidation, target)
		}
	}

	if eventType.IsClaimEvent() {
		if claimID == nil {
			return nil, fmt.Errorf("%w: claim_id is required", ledgercore.ErrValidation)
		}
		existing, exists := s.projector.GetClaim(*claimID)
		var current ledgercore.ClaimStatus
		if exists {
			current = existing.Status
		}
		if err := checkTransition(exists, current, eventType); err != nil {
			return nil, err
		}
	}

	if err := s.authorize(eventType, editorID); err != nil {
		return nil, err
	}

	canonical, err := canon.Canonicalize(payload)
	if err != nil {
		return nil, fmt.Errorf("ledgerservice: canonicalize payload: %w", err)
	}

	priv, err := s.resolveSigningKey(editorID)
	if err != nil {
		return nil, err
	}

	var stored *ledgercore.Event
	for attempt := 0; attempt <= maxAppendRetries; attempt++ {
		tail, err := s.store.Tail(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledgercore.ErrStorageUnavailable, err)
		}
		var previousHash string
		if tail != nil {
			previousHash = tail.EventHash
		}

		eventHash := ledgercore.ComputeEventHash(previousHash, canonical)
		hashBytes, err := ledgercore.DecodeHashBytes(eventHash)
		if err != nil {
			return nil, fmt.Errorf("ledgerservice: decode computed hash: %w", err)
		}

		ev := &ledgercore.Event{
			EventID:           uuid.New(),
			EventType:         eventType,
			ClaimID:           claimID,
			Payload:           payload,
			PreviousEventHash: previousHash,
			EventHash:         eventHash,
			CreatedBy:         editorID,
			CreatedAt:         time.Now().UTC(),
			EditorSignature:   signer.SignBase64(priv, hashBytes),
		}

		stored, err = s.store.Append(ctx, ev)
		if err == nil {
			break
		}
		if errors.Is(err, ledgercore.ErrHashChainBroken) {
			if attempt < maxAppendRetries {
				s.logger.Printf("append race detected, retrying (retry %d/%d)", attempt+1, maxAppendRetries)
			}
			continue
		}
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: exhausted %d retries on hash chain race", ledgercore.ErrHashChainBroken, maxAppendRetries)
	}

	if err := s.projector.Apply(ctx, stored); err != nil {
		// The event is durably appended; a projection failure must not
		// be reported as a failed command, but it must not be silent.
		s.logger.Printf("projection failed for event %s: %v", stored.EventID, err)
	}

	return &Result{EventID: stored.EventID, EventHash: stored.EventHash, SequenceNumber: stored.SequenceNumber}, nil
}

func (s *Service) authorize(eventType ledgercore.EventType, editorID uuid.UUID) error {
	if eventType == ledgercore.EditorRegistered && len(s.projector.Registry.All()) == 0 {
		return nil // genesis editor bootstrap
	}
	if editorID == uuid.Nil {
		return nil // system-authored event
	}
	if !s.projector.Registry.IsActive(editorID) {
		return fmt.Errorf("%w: editor %s is not a registered, active editor", ledgercore.ErrUnauthorized, editorID)
	}
	return nil
}

func (s *Service) resolveSigningKey(editorID uuid.UUID) (ed25519.PrivateKey, error) {
	if editorID == uuid.Nil {
		return s.keys.SystemPrivateKey(), nil
	}
	priv, ok := s.keys.PrivateKeyFor(editorID)
	if !ok {
		return nil, fmt.Errorf("%w: no signing key provisioned for editor %s", ledgercore.ErrUnauthorized, editorID)
	}
	return priv, nil
}

// ====== Typed command wrappers  ======

// DeclareClaimCommand is the payload for declare_claim.
type DeclareClaimCommand struct {
	Statement        string `json:"statement"`
	StatementContext string `json:"statement_context,omitempty"`
	SourceURL        string `json:"source_url,omitempty"`
	ClaimType        string `json:"claim_type,omitempty"`
}

// DeclareClaim creates a new claim and returns its generated claim_id
// alongside the usual result.
func (s *Service) DeclareClaim(ctx context.Context, editorID uuid.UUID, cmd DeclareClaimCommand) (uuid.UUID, *Result, error) {
	payload, err := canon.ToPayloadMap(cmd)
	if err != nil {
		return uuid.Nil, nil, err
	}
	claimID := uuid.New()
	res, err := s.submit(ctx, ledgercore.ClaimDeclared, editorID, &claimID, payload)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return claimID, res, nil
}

// OperationalizeClaimCommand is the payload for operationalize_claim.
type OperationalizeClaimCommand struct {
	OutcomeDescription  string   `json:"outcome_description"`
	Metrics             []string `json:"metrics"`
	DirectionOfChange   string   `json:"direction_of_change"`
	StartDate           string   `json:"start_date"`
	EvaluationDate      string   `json:"evaluation_date"`
	ToleranceWindowDays int      `json:"tolerance_window_days,omitempty"`
	SuccessConditions   []string `json:"success_conditions"`
	PartialConditions   []string `json:"partial_conditions,omitempty"`
	FailureConditions   []string `json:"failure_conditions,omitempty"`
}

func (s *Service) OperationalizeClaim(ctx context.Context, editorID, claimID uuid.UUID, cmd OperationalizeClaimCommand) (*Result, error) {
	payload, err := canon.ToPayloadMap(cmd)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, ledgercore.ClaimOperationalized, editorID, &claimID, payload)
}

// AddEvidenceCommand is the payload for add_evidence.
type AddEvidenceCommand struct {
	SourceURL       string `json:"source_url"`
	SourceTitle     string `json:"source_title"`
	Publisher       string `json:"publisher,omitempty"`
	PublishedDate   string `json:"published_date,omitempty"`
	SourceType      string `json:"source_type,omitempty"`
	EvidenceType    string `json:"evidence_type,omitempty"`
	Summary         string `json:"summary,omitempty"`
	SupportsClaim   bool   `json:"supports_claim"`
	ConfidenceScore string `json:"confidence_score,omitempty"`
}

func (s *Service) AddEvidence(ctx context.Context, editorID, claimID uuid.UUID, cmd AddEvidenceCommand) (*Result, error) {
	payload, err := canon.ToPayloadMap(cmd)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, ledgercore.EvidenceAdded, editorID, &claimID, payload)
}

// ResolveClaimCommand is the payload for resolve_claim.
type ResolveClaimCommand struct {
	Resolution            string   `json:"resolution"`
	ResolutionSummary     string   `json:"resolution_summary"`
	SupportingEvidenceIDs []string `json:"supporting_evidence_ids,omitempty"`
	ResolutionDetails     string   `json:"resolution_details,omitempty"`
}

func (s *Service) ResolveClaim(ctx context.Context, editorID, claimID uuid.UUID, cmd ResolveClaimCommand) (*Result, error) {
	payload, err := canon.ToPayloadMap(cmd)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, ledgercore.ClaimResolved, editorID, &claimID, payload)
}

// RegisterEditorCommand is the payload for register_editor.
type RegisterEditorCommand struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	PublicKey   string `json:"public_key"`
}

// RegisterEditor appends an EDITOR_REGISTERED event authored by callerID.
// RegisterEditorCommand carries no editor id of its own, so the registry
// records the new editor under callerID (self-registration, as in the
// genesis bootstrap); a callerID that is already registered is rejected.
func (s *Service) RegisterEditor(ctx context.Context, callerID uuid.UUID, cmd RegisterEditorCommand) (*Result, error) {
	payload, err := canon.ToPayloadMap(cmd)
	if err != nil {
		return nil, err
	}
	payload["registered_by"] = callerID.String()
	return s.submit(ctx, ledgercore.EditorRegistered, callerID, nil, payload)
}

// DeactivateEditorCommand is the payload for deactivate_editor.
type DeactivateEditorCommand struct {
	EditorID uuid.UUID `json:"editor_id"`
}

func (s *Service) DeactivateEditor(ctx context.Context, callerID uuid.UUID, cmd DeactivateEditorCommand) (*Result, error) {
	payload, err := canon.ToPayloadMap(cmd)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, ledgercore.EditorDeactivated, callerID, nil, payload)
}

// VerifyChain re-derives the full chain, for the verify-chain operator
// command, the on-demand integrity check, and the background integrity
// loop. A failed verification latches the ledger into a refuse-writes
// state that only MarkRecovered can clear.
func (s *Service) VerifyChain(ctx context.Context) (*ledgercore.IntegrityStatus, error) {
	status, err := s.store.VerifyChain(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Valid {
		if !s.corrupted.Swap(true) {
			s.logger.Printf("LEDGER CORRUPTION detected at sequence %v: writes suspended pending operator recovery", status.FirstBadSeq)
		}
	}
	return status, nil
}

// IsCorrupted reports whether the ledger is currently refusing writes
// following a failed chain verification.
func (s *Service) IsCorrupted() bool {
	return s.corrupted.Load()
}

// MarkRecovered clears the write-suspension latch, but only if a fresh
// chain verification passes; an operator cannot wave away a still-broken
// chain. Returns the fresh status either way.
func (s *Service) MarkRecovered(ctx context.Context) (*ledgercore.IntegrityStatus, error) {
	status, err := s.store.VerifyChain(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Valid {
		return status, fmt.Errorf("%w: chain is still broken at sequence %v", ledgercore.ErrLedgerCorruption, status.FirstBadSeq)
	}
	s.corrupted.Store(false)
	s.logger.Printf("ledger marked recovered by operator at sequence %d", status.EventCount-1)
	return status, nil
}

// RebuildProjections truncates and replays every projection from the
// event log, for the rebuild-projections operator command.
func (s *Service) RebuildProjections(ctx context.Context) error {
	return s.projector.Rebuild(ctx, s.store.Iterate)
}
