package eventstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// MemoryStore is the in-memory EventStore backend: an ordered slice plus
// indexes by event_id and claim_id, with a mutex guarding append.
type MemoryStore struct {
	mu         sync.RWMutex
	events     []*ledgercore.Event
	byID       map[uuid.UUID]int // event_id -> index in events
	byClaim    map[uuid.UUID][]int
	editorKeys func(editorID string) (string, bool)
}

// NewMemoryStore creates an empty in-memory event store. editorKeys, if
// non-nil, is consulted by VerifyChain to check editor signatures; pass
// nil to verify chain linkage and hashes only.
func NewMemoryStore(editorKeys func(editorID string) (string, bool)) *MemoryStore {
	return &MemoryStore{
		byID:       make(map[uuid.UUID]int),
		byClaim:    make(map[uuid.UUID][]int),
		editorKeys: editorKeys,
	}
}

func (s *MemoryStore) Append(ctx context.Context, event *ledgercore.Event) (*ledgercore.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tailHash string
	if n := len(s.events); n > 0 {
		tailHash = s.events[n-1].EventHash
	}
	if !ledgercore.HashesEqual(event.PreviousEventHash, tailHash) {
		return nil, ledgercore.ErrHashChainBroken
	}
	if _, exists := s.byID[event.EventID]; exists {
		return nil, ledgercore.ErrDuplicateEventID
	}

	event.SequenceNumber = uint64(len(s.events))
	s.events = append(s.events, event)
	idx := len(s.events) - 1
	s.byID[event.EventID] = idx
	if event.ClaimID != nil {
		s.byClaim[*event.ClaimID] = append(s.byClaim[*event.ClaimID], idx)
	}
	return event, nil
}

func (s *MemoryStore) Get(ctx context.Context, eventID uuid.UUID) (*ledgercore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[eventID]
	if !ok {
		return nil, ledgercore.ErrNotFound
	}
	return s.events[idx], nil
}

func (s *MemoryStore) GetBySequence(ctx context.Context, seq uint64) (*ledgercore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq >= uint64(len(s.events)) {
		return nil, ledgercore.ErrNotFound
	}
	return s.events[seq], nil
}

func (s *MemoryStore) Range(ctx context.Context, start, end uint64) ([]*ledgercore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := uint64(len(s.events))
	if n == 0 || start > end {
		return nil, nil
	}
	if end >= n {
		end = n - 1
	}
	if start > end {
		return nil, nil
	}
	out := make([]*ledgercore.Event, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) RangeByClaim(ctx context.Context, claimID uuid.UUID) ([]*ledgercore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byClaim[claimID]
	out := make([]*ledgercore.Event, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, s.events[idx])
	}
	return out, nil
}

func (s *MemoryStore) Tail(ctx context.Context) (*ledgercore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return nil, nil
	}
	return s.events[len(s.events)-1], nil
}

func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.events)), nil
}

func (s *MemoryStore) Iterate(ctx context.Context, fn func(*ledgercore.Event) error) error {
	s.mu.RLock()
	snapshot := make([]*ledgercore.Event, len(s.events))
	copy(snapshot, s.events)
	s.mu.RUnlock()

	for _, ev := range snapshot {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) VerifyChain(ctx context.Context) (*ledgercore.IntegrityStatus, error) {
	return verifyChain(ctx, s.Iterate, s.editorKeys)
}
