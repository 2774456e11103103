package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/accountabilityme/ledger/pkg/dbclient"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// PostgresStore is the relational EventStore backend. Appends serialize
// on the tail row via SELECT ... FOR UPDATE inside a transaction,
// enforcing a single-writer lock-on-tail discipline; UPDATE/DELETE on
// ledger_events is additionally blocked at the database layer by the
// triggers in migrations/0001_init.sql, so corruption of a row is
// impossible even from code with direct table access.
type PostgresStore struct {
	client     *dbclient.Client
	editorKeys func(editorID string) (string, bool)
}

// NewPostgresStore wraps an already-connected, already-migrated client.
func NewPostgresStore(client *dbclient.Client, editorKeys func(editorID string) (string, bool)) *PostgresStore {
	return &PostgresStore{client: client, editorKeys: editorKeys}
}

func (s *PostgresStore) Append(ctx context.Context, event *ledgercore.Event) (*ledgercore.Event, error) {
	db := s.client.DB()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: eventstore: begin tx: %w", ledgercore.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var tailHash sql.NullString
	var tailSeq sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT event_hash, sequence_number FROM ledger_events ORDER BY sequence_number DESC LIMIT 1 FOR UPDATE`,
	).Scan(&tailHash, &tailSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: eventstore: lock tail: %w", ledgercore.ErrStorageUnavailable, err)
	}

	if !ledgercore.HashesEqual(event.PreviousEventHash, tailHash.String) {
		return nil, ledgercore.ErrHashChainBroken
	}
	nextSeq := uint64(0)
	if tailSeq.Valid {
		nextSeq = uint64(tailSeq.Int64) + 1
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("eventstore: marshal payload: %w", err)
	}

	var claimID interface{}
	if event.ClaimID != nil {
		claimID = *event.ClaimID
	}

	event.SequenceNumber = nextSeq
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_events
			(sequence_number, event_id, event_type, claim_id, payload,
			 previous_event_hash, event_hash, created_by, created_at, editor_signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.SequenceNumber, event.EventID, string(event.EventType), claimID, payload,
		nullIfEmpty(event.PreviousEventHash), event.EventHash, event.CreatedBy, event.CreatedAt, event.EditorSignature,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ledgercore.ErrDuplicateEventID
		}
		return nil, fmt.Errorf("%w: eventstore: insert event: %w", ledgercore.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: eventstore: commit: %w", ledgercore.ErrStorageUnavailable, err)
	}
	return event, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is PostgreSQL's unique_violation
// SQLSTATE (23505), raised when event_id collides.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const eventColumns = `sequence_number, event_id, event_type, claim_id, payload, previous_event_hash, event_hash, created_by, created_at, editor_signature`

func scanEvent(row interface{ Scan(...interface{}) error }) (*ledgercore.Event, error) {
	var (
		ev          ledgercore.Event
		eventType   string
		claimID     sql.NullString
		payload     []byte
		previousHash sql.NullString
	)
	if err := row.Scan(&ev.SequenceNumber, &ev.EventID, &eventType, &claimID, &payload,
		&previousHash, &ev.EventHash, &ev.CreatedBy, &ev.CreatedAt, &ev.EditorSignature); err != nil {
		return nil, err
	}
	ev.EventType = ledgercore.EventType(eventType)
	ev.PreviousEventHash = previousHash.String
	if claimID.Valid {
		id, err := uuid.Parse(claimID.String)
		if err != nil {
			return nil, fmt.Errorf("eventstore: parse claim_id: %w", err)
		}
		ev.ClaimID = &id
	}
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("eventstore: unmarshal payload: %w", err)
	}
	return &ev, nil
}

func (s *PostgresStore) Get(ctx context.Context, eventID uuid.UUID) (*ledgercore.Event, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM ledger_events WHERE event_id = $1`, eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgercore.ErrNotFound
	}
	return ev, err
}

func (s *PostgresStore) GetBySequence(ctx context.Context, seq uint64) (*ledgercore.Event, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM ledger_events WHERE sequence_number = $1`, seq)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgercore.ErrNotFound
	}
	return ev, err
}

func (s *PostgresStore) Range(ctx context.Context, start, end uint64) ([]*ledgercore.Event, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+eventColumns+` FROM ledger_events WHERE sequence_number BETWEEN $1 AND $2 ORDER BY sequence_number`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("eventstore: range query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *PostgresStore) RangeByClaim(ctx context.Context, claimID uuid.UUID) ([]*ledgercore.Event, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+eventColumns+` FROM ledger_events WHERE claim_id = $1 ORDER BY sequence_number`, claimID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: range by claim query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]*ledgercore.Event, error) {
	var out []*ledgercore.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("eventstore: scan row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Tail(ctx context.Context) (*ledgercore.Event, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM ledger_events ORDER BY sequence_number DESC LIMIT 1`)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.client.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events`).Scan(&count)
	return count, err
}

func (s *PostgresStore) Iterate(ctx context.Context, fn func(*ledgercore.Event) error) error {
	rows, err := s.client.DB().QueryContext(ctx, `SELECT `+eventColumns+` FROM ledger_events ORDER BY sequence_number`)
	if err != nil {
		return fmt.Errorf("eventstore: iterate query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("eventstore: scan row: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) VerifyChain(ctx context.Context) (*ledgercore.IntegrityStatus, error) {
	return verifyChain(ctx, s.Iterate, s.editorKeys)
}
