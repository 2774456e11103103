package ledgerservice

import (
	"fmt"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// checkTransition enforces the claim lifecycle graph:
//
//	∅ → DECLARED → OPERATIONALIZED → (EVIDENCE_ADDED)* → RESOLVED
//
// EVIDENCE_ADDED is additionally allowed while declared. RESOLVED is
// terminal. "observing" is a projector-only view-model state layered on
// top of operationalized and behaves identically here.
//
// The graph is keyed by the incoming event_type rather than a flat
// from→to table, since "current state" here comes from the claim
// projection rather than a stored status column.
func checkTransition(exists bool, current ledgercore.ClaimStatus, eventType ledgercore.EventType) error {
	switch eventType {
	case ledgercore.ClaimDeclared:
		if exists {
			return fmt.Errorf("%w: claim already declared", ledgercore.ErrIllegalTransition)
		}
		return nil

	case ledgercore.ClaimOperationalized:
		if !exists {
			return fmt.Errorf("%w: cannot operationalize an undeclared claim", ledgercore.ErrIllegalTransition)
		}
		if current != ledgercore.ClaimStatusDeclared {
			return fmt.Errorf("%w: operationalize requires a declared claim, got %s", ledgercore.ErrIllegalTransition, current)
		}
		return nil

	case ledgercore.EvidenceAdded:
		if !exists {
			return fmt.Errorf("%w: cannot add evidence to an undeclared claim", ledgercore.ErrIllegalTransition)
		}
		switch current {
		case ledgercore.ClaimStatusDeclared, ledgercore.ClaimStatusOperationalized, ledgercore.ClaimStatusObserving:
			return nil
		default:
			return fmt.Errorf("%w: cannot add evidence to a resolved claim", ledgercore.ErrIllegalTransition)
		}

	case ledgercore.ClaimResolved:
		if !exists {
			return fmt.Errorf("%w: cannot resolve an undeclared claim", ledgercore.ErrIllegalTransition)
		}
		switch current {
		case ledgercore.ClaimStatusOperationalized, ledgercore.ClaimStatusObserving:
			return nil
		case ledgercore.ClaimStatusResolved:
			return fmt.Errorf("%w: claim is already resolved", ledgercore.ErrIllegalTransition)
		default:
			return fmt.Errorf("%w: resolve requires an operationalized claim, got %s", ledgercore.ErrIllegalTransition, current)
		}

	default:
		return nil // editor lifecycle events are not claim events
	}
}
