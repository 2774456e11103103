// Package anchor implements the Anchor Service: periodically
// batches newly appended events, builds a Merkle tree over their
// event_hashes, records the root, and publishes it to a pluggable
// external witness.
//
// It runs a single contiguous-range batcher: a ticking Start/Stop loop
// selecting on ctx.Done() against a stop channel, with no pricing tiers
// or per-request queues. This ledger anchors ranges of already-appended
// events; it does not accept anchor requests.
package anchor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/merkle"
)

// Witness publishes a Merkle root to an out-of-band external system (a
// blockchain, a storage bucket version, a git tag) and returns the
// reference a verifier can later check the root against.
type Witness interface {
	Publish(ctx context.Context, merkleRoot string) (externalRef string, err error)
}

// Persister mirrors anchor_batches rows into the relational backend.
// Optional: a memory-only deployment passes nil.
type Persister interface {
	InsertBatch(ctx context.Context, b *ledgercore.AnchorBatch) error
	UpdateBatch(ctx context.Context, b *ledgercore.AnchorBatch) error
}

// Config controls batching cadence and thresholds.
type Config struct {
	// CheckInterval is how often the service looks for a new batch to
	// create; the thresholds below are evaluated only on these checks (or
	// on a manual CheckAndCreateBatch call).
	CheckInterval time.Duration
	// SizeThreshold is the minimum number of unbatched events before a
	// time-triggered check will close a batch early.
	SizeThreshold int
	// MaxAge forces a batch even below SizeThreshold once this much time
	// has passed since a check first found unbatched events below the
	// threshold.
	MaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = 100
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 15 * time.Minute
	}
	return c
}

type batchRecord struct {
	batch  *ledgercore.AnchorBatch
	leaves [][]byte // leaf hashes in sequence order, for proof reconstruction
}

// Service batches and anchors contiguous ranges of events.
type Service struct {
	store     eventstore.EventStore
	persister Persister
	witness   Witness
	config    Config
	logger    *log.Logger

	mu              sync.RWMutex
	batches         []*batchRecord
	eventBatchIndex map[uuid.UUID]struct {
		batchID uuid.UUID
		index   int
	}
	nextStartSeq uint64
	oldestUnbatchedAt *time.Time

	stopCh  chan struct{}
	running bool
}

// New builds an anchor service over store. persister and witness may be
// nil for a memory-only, unpublished deployment (inclusion proofs still
// work; the batch loop publishes nothing and Publish returns an error).
func New(store eventstore.EventStore, persister Persister, witness Witness, config Config) *Service {
	return &Service{
		store:     store,
		persister: persister,
		witness:   witness,
		config:    config.withDefaults(),
		logger:    log.New(log.Writer(), "[ANCHOR] ", log.LstdFlags),
		eventBatchIndex: make(map[uuid.UUID]struct {
			batchID uuid.UUID
			index   int
		}),
	}
}

// Start runs the periodic batch-check loop until ctx is canceled or Stop
// is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("anchor: service already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

// Stop halts the batch-check loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			batch, err := s.CheckAndCreateBatch(ctx)
			if err != nil {
				s.logger.Printf("batch check failed: %v", err)
			} else if batch != nil && s.witness != nil {
				if err := s.Publish(ctx, batch.BatchID); err != nil {
					s.logger.Printf("publish batch %s failed: %v", batch.BatchID, err)
				}
			}
		}
	}
}

// CheckAndCreateBatch creates a new anchor_batch covering every unbatched
// event if the size or age threshold is met, and returns it (nil if no
// batch was due). Safe to call manually as well as from the ticker loop,
// which is how the size-triggered half of "by time or batch-size
// trigger" is satisfied without a second goroutine.
func (s *Service) CheckAndCreateBatch(ctx context.Context) (*ledgercore.AnchorBatch, error) {
	tail, err := s.store.Tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor: tail: %w", err)
	}
	if tail == nil {
		return nil, nil
	}

	s.mu.RLock()
	start := s.nextStartSeq
	oldestAt := s.oldestUnbatchedAt
	s.mu.RUnlock()

	if tail.SequenceNumber < start {
		return nil, nil
	}
	count := tail.SequenceNumber - start + 1

	due := count >= uint64(s.config.SizeThreshold)
	if !due && oldestAt != nil && time.Since(*oldestAt) >= s.config.MaxAge {
		due = true
	}
	if !due {
		if oldestAt == nil {
			now := time.Now().UTC()
			s.mu.Lock()
			s.oldestUnbatchedAt = &now
			s.mu.Unlock()
		}
		return nil, nil
	}

	return s.createBatch(ctx, start, tail.SequenceNumber)
}

func (s *Service) createBatch(ctx context.Context, start, end uint64) (*ledgercore.AnchorBatch, error) {
	events, err := s.store.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("anchor: range [%d,%d]: %w", start, end, err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	leaves := make([][]byte, 0, len(events))
	for _, ev := range events {
		leafHash, err := ledgercore.DecodeHashBytes(ev.EventHash)
		if err != nil {
			return nil, fmt.Errorf("anchor: decode leaf hash for event %s: %w", ev.EventID, err)
		}
		leaves = append(leaves, leafHash)
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("anchor: build tree: %w", err)
	}

	batch := &ledgercore.AnchorBatch{
		BatchID:       uuid.New(),
		StartSequence: start,
		EndSequence:   end,
		MerkleRoot:    tree.RootHex(),
		Status:        ledgercore.AnchorBatchPending,
		CreatedAt:     time.Now().UTC(),
	}

	s.mu.Lock()
	s.batches = append(s.batches, &batchRecord{batch: batch, leaves: leaves})
	for i, ev := range events {
		s.eventBatchIndex[ev.EventID] = struct {
			batchID uuid.UUID
			index   int
		}{batchID: batch.BatchID, index: i}
	}
	s.nextStartSeq = end + 1
	s.oldestUnbatchedAt = nil
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.InsertBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("anchor: persist batch: %w", err)
		}
	}

	s.logger.Printf("created batch %s covering sequences [%d,%d], root %s", batch.BatchID, start, end, batch.MerkleRoot)
	return batch, nil
}

// Publish posts batchID's root to the configured witness and records the
// result. A failed publication flips status to failed; the batch row
// remains and Publish can be retried without rebuilding the tree.
func (s *Service) Publish(ctx context.Context, batchID uuid.UUID) error {
	rec := s.findBatch(batchID)
	if rec == nil {
		return fmt.Errorf("%w: batch %s", ledgercore.ErrNotFound, batchID)
	}
	if s.witness == nil {
		return fmt.Errorf("anchor: no witness configured")
	}

	ref, err := s.witness.Publish(ctx, rec.batch.MerkleRoot)
	s.mu.Lock()
	if err != nil {
		rec.batch.Status = ledgercore.AnchorBatchFailed
	} else {
		rec.batch.Status = ledgercore.AnchorBatchAnchored
		rec.batch.ExternalRef = ref
		at := time.Now().UTC()
		rec.batch.AnchoredAt = &at
	}
	s.mu.Unlock()

	if s.persister != nil {
		if perr := s.persister.UpdateBatch(ctx, rec.batch); perr != nil {
			s.logger.Printf("failed to persist batch status update for %s: %v", batchID, perr)
		}
	}
	return err
}

func (s *Service) findBatch(batchID uuid.UUID) *batchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.batches {
		if rec.batch.BatchID == batchID {
			return rec
		}
	}
	return nil
}

// InclusionProofResult is the egress Merkle proof artifact. It is
// self-contained: a verifier needs nothing beyond this struct and the
// batch root it already trusts to confirm inclusion, via
// VerifyInclusionProof.
type InclusionProofResult struct {
	EventID    uuid.UUID          `json:"event_id"`
	BatchID    uuid.UUID          `json:"batch_id"`
	LeafHash   string             `json:"leaf_hash"`
	MerkleRoot string             `json:"merkle_root"`
	Path       []merkle.ProofNode `json:"path"`
	LeafIndex  int                `json:"leaf_index"`
}

// InclusionProof locates eventID's batch and position within it and
// emits the sibling path a verifier needs to recompute the batch root.
func (s *Service) InclusionProof(eventID uuid.UUID) (*InclusionProofResult, error) {
	s.mu.RLock()
	loc, ok := s.eventBatchIndex[eventID]
	var rec *batchRecord
	if ok {
		for _, r := range s.batches {
			if r.batch.BatchID == loc.batchID {
				rec = r
				break
			}
		}
	}
	s.mu.RUnlock()

	if !ok || rec == nil {
		return nil, fmt.Errorf("%w: event %s is not yet anchored", ledgercore.ErrNotFound, eventID)
	}

	tree, err := merkle.BuildTree(rec.leaves)
	if err != nil {
		return nil, fmt.Errorf("anchor: rebuild tree for batch %s: %w", rec.batch.BatchID, err)
	}
	proof, err := tree.GenerateProof(loc.index)
	if err != nil {
		return nil, fmt.Errorf("anchor: generate proof: %w", err)
	}

	return &InclusionProofResult{
		EventID:    eventID,
		BatchID:    rec.batch.BatchID,
		LeafHash:   proof.LeafHash,
		MerkleRoot: proof.MerkleRoot,
		Path:       proof.Path,
		LeafIndex:  proof.LeafIndex,
	}, nil
}

// VerifyInclusionProof recomputes proof's Merkle root from its leaf hash
// and sibling path, independently of any running Service: an operator
// or auditor holding only an exported proof artifact can confirm it
// without ledger or database access.
func VerifyInclusionProof(proof *InclusionProofResult) (bool, error) {
	leafHash, err := ledgercore.DecodeHashBytes(proof.LeafHash)
	if err != nil {
		return false, fmt.Errorf("anchor: decode leaf hash: %w", err)
	}
	rootBytes, err := ledgercore.DecodeHashBytes(proof.MerkleRoot)
	if err != nil {
		return false, fmt.Errorf("anchor: decode merkle root: %w", err)
	}
	full := &merkle.InclusionProof{
		LeafHash:   proof.LeafHash,
		LeafIndex:  proof.LeafIndex,
		MerkleRoot: proof.MerkleRoot,
		Path:       proof.Path,
	}
	return merkle.VerifyProof(leafHash, full, rootBytes)
}

// ListBatches returns a snapshot of every batch created so far.
func (s *Service) ListBatches() []*ledgercore.AnchorBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ledgercore.AnchorBatch, len(s.batches))
	for i, r := range s.batches {
		out[i] = r.batch
	}
	return out
}
