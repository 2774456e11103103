package ledgerservice

import (
	"fmt"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
)

// validatePayload enforces the per-event-type payload schema: required
// fields present and in range. Referential integrity (does claim_id
// exist, is the claim in a state that accepts this event) is checked
// separately by the lifecycle graph, not here.
func validatePayload(eventType ledgercore.EventType, payload map[string]interface{}) error {
	switch eventType {
	case ledgercore.ClaimDeclared:
		return validateClaimDeclared(payload)
	case ledgercore.ClaimOperationalized:
		return validateClaimOperationalized(payload)
	case ledgercore.EvidenceAdded:
		return validateEvidenceAdded(payload)
	case ledgercore.ClaimResolved:
		return validateClaimResolved(payload)
	case ledgercore.EditorRegistered:
		return validateEditorRegistered(payload)
	case ledgercore.EditorDeactivated:
		return validateEditorDeactivated(payload)
	default:
		return fmt.Errorf("%w: unknown event type %q", ledgercore.ErrValidation, eventType)
	}
}

func validateClaimDeclared(p map[string]interface{}) error {
	statement, _ := p["statement"].(string)
	if len(statement) < 10 {
		return fmt.Errorf("%w: statement must be at least 10 characters", ledgercore.ErrValidation)
	}
	if claimType, ok := p["claim_type"].(string); ok && claimType != "" {
		if !oneOf(claimType, "predictive", "descriptive", "causal") {
			return fmt.Errorf("%w: claim_type must be predictive, descriptive, or causal", ledgercore.ErrValidation)
		}
	}
	return nil
}

func validateClaimOperationalized(p map[string]interface{}) error {
	if s, _ := p["outcome_description"].(string); s == "" {
		return fmt.Errorf("%w: outcome_description is required", ledgercore.ErrValidation)
	}
	if !nonEmptyList(p["metrics"]) {
		return fmt.Errorf("%w: metrics must be a non-empty list", ledgercore.ErrValidation)
	}
	direction, _ := p["direction_of_change"].(string)
	if !oneOf(direction, "increase", "decrease", "no_change") {
		return fmt.Errorf("%w: direction_of_change must be increase, decrease, or no_change", ledgercore.ErrValidation)
	}
	if s, _ := p["start_date"].(string); s == "" {
		return fmt.Errorf("%w: start_date is required", ledgercore.ErrValidation)
	}
	if s, _ := p["evaluation_date"].(string); s == "" {
		return fmt.Errorf("%w: evaluation_date is required", ledgercore.ErrValidation)
	}
	if !nonEmptyList(p["success_conditions"]) {
		return fmt.Errorf("%w: success_conditions must be a non-empty list", ledgercore.ErrValidation)
	}
	return nil
}

func validateEvidenceAdded(p map[string]interface{}) error {
	if s, _ := p["source_url"].(string); s == "" {
		return fmt.Errorf("%w: source_url is required", ledgercore.ErrValidation)
	}
	if s, _ := p["source_title"].(string); s == "" {
		return fmt.Errorf("%w: source_title is required", ledgercore.ErrValidation)
	}
	if _, ok := p["supports_claim"].(bool); !ok {
		return fmt.Errorf("%w: supports_claim must be a boolean", ledgercore.ErrValidation)
	}
	if raw, ok := p["confidence_score"]; ok && raw != nil {
		score, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: confidence_score must be a decimal string", ledgercore.ErrValidation)
		}
		var f float64
		if _, err := fmt.Sscanf(score, "%f", &f); err != nil || f < 0 || f > 1 {
			return fmt.Errorf("%w: confidence_score must be between 0 and 1", ledgercore.ErrValidation)
		}
	}
	return nil
}

func validateClaimResolved(p map[string]interface{}) error {
	resolution, _ := p["resolution"].(string)
	if !oneOf(resolution, "met", "partially_met", "not_met", "inconclusive") {
		return fmt.Errorf("%w: resolution must be met, partially_met, not_met, or inconclusive", ledgercore.ErrValidation)
	}
	summary, _ := p["resolution_summary"].(string)
	if len(summary) < 20 {
		return fmt.Errorf("%w: resolution_summary must be at least 20 characters", ledgercore.ErrValidation)
	}
	if resolution != "inconclusive" && !nonEmptyList(p["supporting_evidence_ids"]) {
		return fmt.Errorf("%w: supporting_evidence_ids is required unless resolution is inconclusive", ledgercore.ErrValidation)
	}
	return nil
}

func validateEditorRegistered(p map[string]interface{}) error {
	if s, _ := p["username"].(string); s == "" {
		return fmt.Errorf("%w: username is required", ledgercore.ErrValidation)
	}
	if s, _ := p["public_key"].(string); s == "" {
		return fmt.Errorf("%w: public_key is required", ledgercore.ErrValidation)
	}
	return nil
}

func validateEditorDeactivated(p map[string]interface{}) error {
	if s, _ := p["editor_id"].(string); s == "" {
		return fmt.Errorf("%w: editor_id is required", ledgercore.ErrValidation)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func nonEmptyList(v interface{}) bool {
	list, ok := v.([]interface{})
	return ok && len(list) > 0
}
