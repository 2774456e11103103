package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgercore/canon"
	"github.com/accountabilityme/ledger/pkg/signer"
)

var errStopScan = errors.New("eventstore: scan stopped at first integrity failure")

// verifyChain is the full-scan chain verification shared by every
// backend: it re-derives each event_hash from (payload,
// previous_event_hash), checks linkage to the prior event, and verifies
// the editor signature whenever the author's public key is known (events
// by an author with no registered key are not signature-checked) — then
// reports the first offending sequence, if
// any, rather than just a boolean.
func verifyChain(ctx context.Context, iterate func(context.Context, func(*ledgercore.Event) error) error, editorPublicKey func(editorID string) (string, bool)) (*ledgercore.IntegrityStatus, error) {
	status := &ledgercore.IntegrityStatus{Valid: true, CheckedAt: time.Now().UTC()}
	var prevHash string
	var count uint64

	err := iterate(ctx, func(ev *ledgercore.Event) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		count++
		status.EventCount = count
		status.LastEventHash = ev.EventHash

		canonical, err := canon.Canonicalize(ev.Payload)
		if err != nil {
			return fmt.Errorf("canonicalize sequence %d: %w", ev.SequenceNumber, err)
		}
		recomputed := ledgercore.ComputeEventHash(prevHash, canonical)
		if !ledgercore.HashesEqual(recomputed, ev.EventHash) {
			status.Valid = false
			bad := ev.SequenceNumber
			status.FirstBadSeq = &bad
			return errStopScan
		}
		if !ledgercore.HashesEqual(ev.PreviousEventHash, prevHash) {
			status.Valid = false
			bad := ev.SequenceNumber
			status.FirstBadSeq = &bad
			return errStopScan
		}
		if editorPublicKey != nil {
			if pubB64, ok := editorPublicKey(ev.CreatedBy.String()); ok {
				hashBytes, derr := ledgercore.DecodeHashBytes(ev.EventHash)
				if derr == nil {
					if verr := signer.VerifyBase64(pubB64, ev.EditorSignature, hashBytes); verr != nil {
						status.Valid = false
						bad := ev.SequenceNumber
						status.FirstBadSeq = &bad
						return errStopScan
					}
				}
			}
		}

		prevHash = ev.EventHash
		return nil
	})

	if err != nil && err != errStopScan {
		return nil, err
	}
	return status, nil
}
