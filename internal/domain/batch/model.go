package batch

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TPA-track batch statuses.
const (
	StatusDraft              = "draft"
	StatusReadyForSubmission = "ready_for_submission"
	StatusSubmitted          = "submitted"
	StatusClosed             = "closed"
	StatusRejected           = "rejected"
)

// Administrative-track states, applied to closed batches only.
const (
	AdminUnderReview             = "under_review"
	AdminVerified                = "verified"
	AdminVerifiedAwaitingPayment = "verified_awaiting_payment"
	AdminVerifiedPaid            = "verified_paid"
)

// Batch maps to the batches table. A TPA-scoped, time-windowed bundle of
// claims submitted and closed as a unit. Aggregate and financial fields are
// derived, never hand-set.
type Batch struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BatchNumber string     `db:"batch_number" json:"batch_number"`
	TPAID       uuid.UUID  `db:"tpa_id" json:"tpa_id"`
	FacilityID  uuid.UUID  `db:"facility_id" json:"facility_id"`
	WeekStart   *time.Time `db:"week_start" json:"week_start,omitempty"`
	WeekEnd     *time.Time `db:"week_end" json:"week_end,omitempty"`

	Status     string  `db:"status" json:"status"`
	AdminState *string `db:"admin_state" json:"admin_state,omitempty"`

	TotalClaims    int             `db:"total_claims" json:"total_claims"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	ApprovedAmount decimal.Decimal `db:"approved_amount" json:"approved_amount"`

	AdminFeePct    *decimal.Decimal `db:"admin_fee_pct" json:"admin_fee_pct,omitempty"`
	AdminFeeAmount *decimal.Decimal `db:"admin_fee_amount" json:"admin_fee_amount,omitempty"`
	NetAmount      *decimal.Decimal `db:"net_amount" json:"net_amount,omitempty"`

	CoverLetterURL      *string  `db:"cover_letter_url" json:"cover_letter_url,omitempty"`
	CoverLetterFilename *string  `db:"cover_letter_filename" json:"cover_letter_filename,omitempty"`
	SubmissionEmails    []string `db:"submission_emails" json:"submission_emails,omitempty"`
	SubmissionNotes     *string  `db:"submission_notes" json:"submission_notes,omitempty"`

	ReimbursementID *uuid.UUID `db:"reimbursement_id" json:"reimbursement_id,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasCoverLetter reports whether a forwarding letter reference is attached.
func (b *Batch) HasCoverLetter() bool {
	return b.CoverLetterURL != nil && *b.CoverLetterURL != ""
}

// AdminStateValue returns the admin-track state, "" when not started.
func (b *Batch) AdminStateValue() string {
	if b.AdminState == nil {
		return ""
	}
	return *b.AdminState
}

var statusTransitions = map[string][]string{
	StatusDraft:              {StatusReadyForSubmission, StatusRejected},
	StatusReadyForSubmission: {StatusSubmitted, StatusRejected},
	StatusSubmitted:          {StatusClosed, StatusRejected},
}

// CanTransition reports whether the TPA-track graph allows from → to.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// adminTransitions is the oversight track. "" is the not-started state.
var adminTransitions = map[string][]string{
	"":                           {AdminUnderReview},
	AdminUnderReview:             {AdminVerified},
	AdminVerified:                {AdminVerifiedAwaitingPayment},
	AdminVerifiedAwaitingPayment: {AdminVerifiedPaid},
}

// CanAdminTransition reports whether the admin track allows from → to.
func CanAdminTransition(from, to string) bool {
	for _, next := range adminTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RejectionReasonCount is one row of a closure report's rejection breakdown.
type RejectionReasonCount struct {
	Reason string          `json:"reason"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Closure report statuses.
const (
	ReportStatusSubmitted = "submitted"
	ReportStatusReviewed  = "reviewed"
)

// ClosureReport is the attested artifact produced when a batch is closed.
// Exactly one exists per closed batch.
type ClosureReport struct {
	ID      uuid.UUID `db:"id" json:"id"`
	BatchID uuid.UUID `db:"batch_id" json:"batch_id"`

	ReviewSummary        string                 `db:"review_summary" json:"review_summary"`
	PaymentJustification string                 `db:"payment_justification" json:"payment_justification"`
	RejectionBreakdown   []RejectionReasonCount `db:"rejection_breakdown" json:"rejection_breakdown"`

	PaidAmount        decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	PaidClaimsCount   int             `db:"paid_claims_count" json:"paid_claims_count"`
	BeneficiariesPaid int             `db:"beneficiaries_paid" json:"beneficiaries_paid"`
	PaymentDate       time.Time       `db:"payment_date" json:"payment_date"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	PaymentReference  string          `db:"payment_reference" json:"payment_reference"`

	CoverLetterURL      *string `db:"cover_letter_url" json:"cover_letter_url,omitempty"`
	CoverLetterFilename *string `db:"cover_letter_filename" json:"cover_letter_filename,omitempty"`

	Signature string    `db:"signature" json:"signature"`
	SignedAt  time.Time `db:"signed_at" json:"signed_at"`

	AdminSignature  *string    `db:"admin_signature" json:"admin_signature,omitempty"`
	AdminNotes      *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	AdminReviewedAt *time.Time `db:"admin_reviewed_at" json:"admin_reviewed_at,omitempty"`

	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClosureInput carries the four input groups of the closure sequence. Closure
// is atomic: either all groups validate and the batch closes, or nothing is
// persisted.
type ClosureInput struct {
	ReviewSummary        string          `json:"review_summary"`
	PaymentJustification string          `json:"payment_justification"`
	PaidAmount           decimal.Decimal `json:"paid_amount"`
	PaidClaimsCount      int             `json:"paid_claims_count"`
	BeneficiariesPaid    int             `json:"beneficiaries_paid"`
	PaymentDate          time.Time       `json:"payment_date"`
	PaymentMethod        string          `json:"payment_method"`
	PaymentReference     string          `json:"payment_reference"`
	Signature            string          `json:"signature"`
	ConsentGiven         bool            `json:"consent_given"`
}
