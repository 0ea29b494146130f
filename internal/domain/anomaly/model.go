// Package anomaly detects and tracks irregularities in claims: the rule
// engine that flags them and the escalation workflow that disposes of them.
package anomaly

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error record types.
const (
	TypeValidation  = "validation"
	TypeDiscrepancy = "discrepancy"
	TypeFraud       = "fraud"
	TypeQuality     = "quality"
)

// Error record categories, one per detection rule.
const (
	CategoryMissingData      = "missing_data"
	CategoryDuplicate        = "duplicate"
	CategoryCostAnomaly      = "cost_anomaly"
	CategoryDecisionMismatch = "decision_mismatch"
)

// Severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Escalation workflow statuses.
const (
	StatusOpen        = "open"
	StatusUnderReview = "under_review"
	StatusResolved    = "resolved"
	StatusIgnored     = "ignored"
	StatusEscalated   = "escalated"
)

// ErrorRecord is one detected irregularity. Records are data, not failures:
// the detection run that produced them always completes. Only administrative
// escalation actions mutate a record after creation.
type ErrorRecord struct {
	ID      uuid.UUID  `db:"id" json:"id"`
	ClaimID *uuid.UUID `db:"claim_id" json:"claim_id,omitempty"`
	BatchID *uuid.UUID `db:"batch_id" json:"batch_id,omitempty"`

	Type        string `db:"error_type" json:"error_type"`
	Category    string `db:"category" json:"category"`
	Severity    string `db:"severity" json:"severity"`
	Description string `db:"description" json:"description"`

	ExpectedAmount *decimal.Decimal `db:"expected_amount" json:"expected_amount,omitempty"`
	ActualAmount   *decimal.Decimal `db:"actual_amount" json:"actual_amount,omitempty"`
	DeviationPct   *float64         `db:"deviation_pct" json:"deviation_pct,omitempty"`

	Status     string     `db:"status" json:"status"`
	Resolution *string    `db:"resolution" json:"resolution,omitempty"`
	ActedBy    *uuid.UUID `db:"acted_by" json:"acted_by,omitempty"`
	ActedAt    *time.Time `db:"acted_at" json:"acted_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var validStatuses = map[string]bool{
	StatusOpen:        true,
	StatusUnderReview: true,
	StatusResolved:    true,
	StatusIgnored:     true,
	StatusEscalated:   true,
}

// statusTransitions is the escalation graph. Escalated and ignored are
// terminal; resolved may reopen to under_review.
var statusTransitions = map[string][]string{
	StatusOpen:        {StatusUnderReview},
	StatusUnderReview: {StatusResolved, StatusEscalated, StatusIgnored},
	StatusResolved:    {StatusUnderReview},
}

// CanTransition reports whether the escalation graph allows from → to.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// noteRequired lists transitions that demand a non-empty note from the actor.
func noteRequired(from, to string) bool {
	if to == StatusEscalated {
		return true
	}
	// Reopening a resolved record requires a fresh note.
	return from == StatusResolved && to == StatusUnderReview
}
