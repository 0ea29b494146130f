package claim

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Claim statuses. The status axis tracks verification/payment progress and is
// independent of the TPA's cost decision.
const (
	StatusSubmitted               = "submitted"
	StatusAwaitingVerification    = "awaiting_verification"
	StatusVerified                = "verified"
	StatusNotVerified             = "not_verified"
	StatusVerifiedAwaitingPayment = "verified_awaiting_payment"
	StatusVerifiedPaid            = "verified_paid"
)

// Decision values. A nil decision means the TPA has not adjudicated yet.
const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Claim maps to the claims table. One episode of care submitted for
// reimbursement.
type Claim struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ClaimNumber     string     `db:"claim_number" json:"claim_number"`
	BeneficiaryID   string     `db:"beneficiary_id" json:"beneficiary_id"`
	BeneficiaryName string     `db:"beneficiary_name" json:"beneficiary_name"`
	FacilityID      uuid.UUID  `db:"facility_id" json:"facility_id"`
	TPAID           uuid.UUID  `db:"tpa_id" json:"tpa_id"`
	BatchID         *uuid.UUID `db:"batch_id" json:"batch_id,omitempty"`

	Procedure      string     `db:"procedure" json:"procedure"`
	Diagnosis      string     `db:"diagnosis" json:"diagnosis"`
	TreatmentStart *time.Time `db:"treatment_start" json:"treatment_start,omitempty"`
	TreatmentEnd   *time.Time `db:"treatment_end" json:"treatment_end,omitempty"`

	InvestigationCost decimal.Decimal `db:"investigation_cost" json:"investigation_cost"`
	ProcedureCost     decimal.Decimal `db:"procedure_cost" json:"procedure_cost"`
	MedicationCost    decimal.Decimal `db:"medication_cost" json:"medication_cost"`
	OtherServicesCost decimal.Decimal `db:"other_services_cost" json:"other_services_cost"`
	TotalCost         decimal.Decimal `db:"total_cost" json:"total_cost"`

	ApprovedTotal   *decimal.Decimal `db:"approved_total" json:"approved_total,omitempty"`
	Status          string           `db:"status" json:"status"`
	Decision        *string          `db:"decision" json:"decision,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PaymentDate     *time.Time       `db:"payment_date" json:"payment_date,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SumCategories returns the sum of the four cost categories.
func (c *Claim) SumCategories() decimal.Decimal {
	return c.InvestigationCost.Add(c.ProcedureCost).Add(c.MedicationCost).Add(c.OtherServicesCost)
}

// DecisionValue returns the decision string, "" when unadjudicated.
func (c *Claim) DecisionValue() string {
	if c.Decision == nil {
		return ""
	}
	return *c.Decision
}

// Adjudicated reports whether the TPA has reached a final decision.
func (c *Claim) Adjudicated() bool {
	d := c.DecisionValue()
	return d == DecisionApproved || d == DecisionRejected
}

var validStatuses = map[string]bool{
	StatusSubmitted:               true,
	StatusAwaitingVerification:    true,
	StatusVerified:                true,
	StatusNotVerified:             true,
	StatusVerifiedAwaitingPayment: true,
	StatusVerifiedPaid:            true,
}

var validDecisions = map[string]bool{
	DecisionPending:  true,
	DecisionApproved: true,
	DecisionRejected: true,
}

// statusTransitions is the legal status graph.
var statusTransitions = map[string][]string{
	StatusSubmitted:               {StatusAwaitingVerification},
	StatusAwaitingVerification:    {StatusVerified, StatusNotVerified},
	StatusVerified:                {StatusVerifiedAwaitingPayment},
	StatusVerifiedAwaitingPayment: {StatusVerifiedPaid},
}

// CanTransition reports whether the status graph allows from → to.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// statusNeedsDecision lists statuses that a claim may only hold once the TPA
// decision is final (approved or rejected).
var statusNeedsDecision = map[string]bool{
	StatusVerifiedAwaitingPayment: true,
	StatusVerifiedPaid:            true,
}

// ValidPair reports whether a (status, decision) combination is legal.
// Decisions may be recorded at any status; payment statuses additionally
// require a final decision.
func ValidPair(status, decision string) bool {
	if !validStatuses[status] {
		return false
	}
	if decision != "" && !validDecisions[decision] {
		return false
	}
	if statusNeedsDecision[status] {
		return decision == DecisionApproved || decision == DecisionRejected
	}
	return true
}
