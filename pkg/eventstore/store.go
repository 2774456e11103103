// Package eventstore implements the durable, sequenced, immutable event
// log behind a single interface, with two interchangeable
// backends: an in-memory store for tests and single-process deployments,
// and a PostgreSQL-backed store for durable multi-reader deployments.
// Both backends return explicit sentinel errors instead of a bare nil.
package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// EventStore is the durable event log contract every backend implements.
type EventStore interface {
	// Append assigns the next sequence_number under an exclusive lock,
	// rejects if event.PreviousEventHash does not match the current
	// tail's event_hash, persists the event, and returns the stored
	// copy (with SequenceNumber populated). Returns ErrHashChainBroken,
	// ErrDuplicateEventID, or ErrStorageUnavailable on failure.
	Append(ctx context.Context, event *ledgercore.Event) (*ledgercore.Event, error)

	// Get looks up a single event by its id.
	Get(ctx context.Context, eventID uuid.UUID) (*ledgercore.Event, error)

	// GetBySequence looks up a single event by its sequence number.
	GetBySequence(ctx context.Context, seq uint64) (*ledgercore.Event, error)

	// Range returns events with sequence_number in [start, end], inclusive.
	Range(ctx context.Context, start, end uint64) ([]*ledgercore.Event, error)

	// RangeByClaim returns, in sequence order, every event whose ClaimID
	// equals claimID — the timeline the query layer reconstructs a claim
	// detail view from.
	RangeByClaim(ctx context.Context, claimID uuid.UUID) ([]*ledgercore.Event, error)

	// Tail returns the most recently appended event, or nil if the log
	// is empty.
	Tail(ctx context.Context) (*ledgercore.Event, error)

	// Count returns the number of events in the log.
	Count(ctx context.Context) (uint64, error)

	// Iterate calls fn with every event in sequence order, stopping (and
	// returning fn's error) if fn returns a non-nil error. Used for
	// projection replay.
	Iterate(ctx context.Context, fn func(*ledgercore.Event) error) error

	// VerifyChain re-derives every event_hash and checks chain linkage
	// across a full scan, honoring context cancellation between events.
	VerifyChain(ctx context.Context) (*ledgercore.IntegrityStatus, error)
}
