// Package reconciliation bundles closed batches into reimbursements and
// tracks standalone advance payments to TPAs.
package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reimbursement statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusCompleted = "completed"
	StatusDisputed  = "disputed"
)

// Reimbursement is one payment instrument spanning one or more closed
// batches. A batch is consumed by at most one non-disputed reimbursement.
type Reimbursement struct {
	ID                  uuid.UUID   `db:"id" json:"id"`
	ReimbursementNumber string      `db:"reimbursement_number" json:"reimbursement_number"`
	TPAID               uuid.UUID   `db:"tpa_id" json:"tpa_id"`
	BatchIDs            []uuid.UUID `db:"-" json:"batch_ids"`

	TotalClaimsAmount decimal.Decimal `db:"total_claims_amount" json:"total_claims_amount"`
	AdminFeePct       decimal.Decimal `db:"admin_fee_pct" json:"admin_fee_pct"`
	AdminFeeAmount    decimal.Decimal `db:"admin_fee_amount" json:"admin_fee_amount"`
	NetAmount         decimal.Decimal `db:"net_amount" json:"net_amount"`

	Purpose    string  `db:"purpose" json:"purpose"`
	Notes      *string `db:"notes" json:"notes,omitempty"`
	Status     string  `db:"status" json:"status"`
	ReceiptURL *string `db:"receipt_url" json:"receipt_url,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// statusTransitions is the reimbursement lifecycle. Disputed releases the
// consumed batches; completed is terminal.
var statusTransitions = map[string][]string{
	StatusPending:   {StatusProcessed, StatusDisputed},
	StatusProcessed: {StatusCompleted, StatusDisputed},
}

// CanTransition reports whether the lifecycle allows from → to.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BatchFinancials is the pure fee computation for one batch.
type BatchFinancials struct {
	BatchID        uuid.UUID       `json:"batch_id"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	AdminFeePct    decimal.Decimal `json:"admin_fee_pct"`
	AdminFeeAmount decimal.Decimal `json:"admin_fee_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
}

// Advance payment statuses.
const (
	AdvancePending  = "pending"
	AdvanceApproved = "approved"
	AdvancePaid     = "paid"
)

// AdvancePayment is a batch-independent disbursement to a TPA, kept on its
// own ledger. It is never netted against reimbursements automatically.
type AdvancePayment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AdvanceNumber string          `db:"advance_number" json:"advance_number"`
	TPAID         uuid.UUID       `db:"tpa_id" json:"tpa_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Purpose       string          `db:"purpose" json:"purpose"`
	Status        string          `db:"status" json:"status"`
	Reference     *string         `db:"reference" json:"reference,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

var validAdvanceStatuses = map[string]bool{
	AdvancePending:  true,
	AdvanceApproved: true,
	AdvancePaid:     true,
}
