package claim

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nhis/claims/pkg/apperror"
)

// BatchAggregates recomputes a batch's derived totals after member claims
// change. Implemented by the batch service; wired after construction to keep
// the dependency one-way.
type BatchAggregates interface {
	Recompute(ctx context.Context, batchID uuid.UUID) error
}

type Service struct {
	repo    Repository
	batches BatchAggregates
	log     zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// SetBatchAggregates attaches the batch recompute hook.
func (s *Service) SetBatchAggregates(b BatchAggregates) {
	s.batches = b
}

// Submit creates a claim in status submitted with no decision. The total is
// derived from the four cost categories, never taken from the caller.
func (s *Service) Submit(ctx context.Context, c *Claim) error {
	if c.BeneficiaryName == "" {
		return apperror.Validation("beneficiary_name", "beneficiary name is required")
	}
	if c.BeneficiaryID == "" {
		return apperror.Validation("beneficiary_id", "beneficiary identifier is required")
	}
	if c.FacilityID == uuid.Nil {
		return apperror.Validation("facility_id", "facility is required")
	}
	if c.TPAID == uuid.Nil {
		return apperror.Validation("tpa_id", "tpa is required")
	}
	for _, cat := range []struct {
		name   string
		amount decimal.Decimal
	}{
		{"investigation_cost", c.InvestigationCost},
		{"procedure_cost", c.ProcedureCost},
		{"medication_cost", c.MedicationCost},
		{"other_services_cost", c.OtherServicesCost},
	} {
		if cat.amount.IsNegative() {
			return apperror.Validation(cat.name, "cost cannot be negative")
		}
	}

	c.TotalCost = c.SumCategories()
	if !c.TotalCost.IsPositive() {
		return apperror.Validation("total_cost", "total cost must be greater than zero")
	}

	c.Status = StatusSubmitted
	c.Decision = nil
	c.ApprovedTotal = nil
	c.RejectionReason = nil

	if err := s.repo.Create(ctx, c); err != nil {
		return err
	}
	s.log.Info().Str("claim_id", c.ID.String()).Str("claim_number", c.ClaimNumber).Msg("claim submitted")
	return nil
}

// DecisionInput carries the TPA's adjudication of a claim.
type DecisionInput struct {
	Decision        string           `json:"decision"`
	ApprovedAmount  *decimal.Decimal `json:"approved_amount,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// RecordDecision adjudicates a claim. Approval requires an approved amount no
// greater than the claim total; rejection requires a reason. Re-submitting an
// identical decision is a no-op. Stale batch aggregates are recomputed.
func (s *Service) RecordDecision(ctx context.Context, id uuid.UUID, in DecisionInput) (*Claim, error) {
	if in.Decision != DecisionApproved && in.Decision != DecisionRejected {
		return nil, apperror.Validation("decision", "decision must be approved or rejected, got %q", in.Decision)
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if sameDecision(c, in) {
		return c, nil
	}
	if statusNeedsDecision[c.Status] {
		return nil, apperror.IllegalTransition("decision is frozen once claim reached %s", c.Status)
	}

	switch in.Decision {
	case DecisionApproved:
		if in.ApprovedAmount == nil {
			return nil, apperror.Validation("approved_amount", "approved amount is required for approval")
		}
		if in.ApprovedAmount.IsNegative() {
			return nil, apperror.Validation("approved_amount", "approved amount cannot be negative")
		}
		if in.ApprovedAmount.GreaterThan(c.TotalCost) {
			return nil, apperror.Validation("approved_amount",
				"approved amount %s exceeds claim total %s", in.ApprovedAmount, c.TotalCost)
		}
		c.ApprovedTotal = in.ApprovedAmount
		c.RejectionReason = nil
	case DecisionRejected:
		if in.RejectionReason == "" {
			return nil, apperror.Validation("rejection_reason", "rejection reason is required")
		}
		reason := in.RejectionReason
		c.RejectionReason = &reason
		c.ApprovedTotal = nil
	}

	decision := in.Decision
	c.Decision = &decision

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	if c.BatchID != nil && s.batches != nil {
		if err := s.batches.Recompute(ctx, *c.BatchID); err != nil {
			s.log.Error().Err(err).Str("batch_id", c.BatchID.String()).Msg("batch aggregate recompute failed")
		}
	}

	s.log.Info().Str("claim_id", c.ID.String()).Str("decision", in.Decision).Msg("claim decision recorded")
	return c, nil
}

func sameDecision(c *Claim, in DecisionInput) bool {
	if c.DecisionValue() != in.Decision {
		return false
	}
	switch in.Decision {
	case DecisionApproved:
		return c.ApprovedTotal != nil && in.ApprovedAmount != nil && c.ApprovedTotal.Equal(*in.ApprovedAmount)
	case DecisionRejected:
		return c.RejectionReason != nil && *c.RejectionReason == in.RejectionReason
	}
	return false
}

// AdvanceVerification resolves the verification step. Only legal from
// awaiting_verification.
func (s *Service) AdvanceVerification(ctx context.Context, id uuid.UUID, outcome string) (*Claim, error) {
	if outcome != StatusVerified && outcome != StatusNotVerified {
		return nil, apperror.Validation("outcome", "outcome must be verified or not_verified, got %q", outcome)
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == outcome {
		return c, nil
	}
	if !CanTransition(c.Status, outcome) {
		return nil, apperror.IllegalTransition("cannot move claim from %s to %s", c.Status, outcome)
	}

	c.Status = outcome
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// QueueForPayment moves a verified claim into the payment queue. Requires a
// final TPA decision.
func (s *Service) QueueForPayment(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusVerifiedAwaitingPayment {
		return c, nil
	}
	if !CanTransition(c.Status, StatusVerifiedAwaitingPayment) {
		return nil, apperror.IllegalTransition("cannot queue claim in status %s for payment", c.Status)
	}
	if !ValidPair(StatusVerifiedAwaitingPayment, c.DecisionValue()) {
		return nil, apperror.IllegalTransition("claim cannot await payment without a final decision")
	}

	c.Status = StatusVerifiedAwaitingPayment
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkPaid settles a claim awaiting payment.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, paymentDate time.Time) (*Claim, error) {
	if paymentDate.IsZero() {
		return nil, apperror.Validation("payment_date", "payment date is required")
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusVerifiedPaid {
		return c, nil
	}
	if !CanTransition(c.Status, StatusVerifiedPaid) {
		return nil, apperror.IllegalTransition("cannot mark claim in status %s as paid", c.Status)
	}

	pd := paymentDate.UTC()
	c.Status = StatusVerifiedPaid
	c.PaymentDate = &pd
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("claim_id", c.ID.String()).Time("payment_date", pd).Msg("claim paid")
	return c, nil
}

// UpdateInput carries facility-editable claim fields.
type UpdateInput struct {
	BeneficiaryID     *string          `json:"beneficiary_id,omitempty"`
	BeneficiaryName   *string          `json:"beneficiary_name,omitempty"`
	Procedure         *string          `json:"procedure,omitempty"`
	Diagnosis         *string          `json:"diagnosis,omitempty"`
	InvestigationCost *decimal.Decimal `json:"investigation_cost,omitempty"`
	ProcedureCost     *decimal.Decimal `json:"procedure_cost,omitempty"`
	MedicationCost    *decimal.Decimal `json:"medication_cost,omitempty"`
	OtherServicesCost *decimal.Decimal `json:"other_services_cost,omitempty"`
}

// Update applies facility edits. Claims are editable only until their batch is
// submitted, which is exactly while status is submitted. The total is
// rederived from the categories.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusSubmitted {
		return nil, apperror.IllegalTransition("claim in status %s is no longer editable", c.Status)
	}

	if in.BeneficiaryID != nil {
		c.BeneficiaryID = *in.BeneficiaryID
	}
	if in.BeneficiaryName != nil {
		c.BeneficiaryName = *in.BeneficiaryName
	}
	if in.Procedure != nil {
		c.Procedure = *in.Procedure
	}
	if in.Diagnosis != nil {
		c.Diagnosis = *in.Diagnosis
	}
	if in.InvestigationCost != nil {
		c.InvestigationCost = *in.InvestigationCost
	}
	if in.ProcedureCost != nil {
		c.ProcedureCost = *in.ProcedureCost
	}
	if in.MedicationCost != nil {
		c.MedicationCost = *in.MedicationCost
	}
	if in.OtherServicesCost != nil {
		c.OtherServicesCost = *in.OtherServicesCost
	}

	if c.BeneficiaryName == "" {
		return nil, apperror.Validation("beneficiary_name", "beneficiary name is required")
	}
	c.TotalCost = c.SumCategories()
	if !c.TotalCost.IsPositive() {
		return nil, apperror.Validation("total_cost", "total cost must be greater than zero")
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	if c.BatchID != nil && s.batches != nil {
		if err := s.batches.Recompute(ctx, *c.BatchID); err != nil {
			s.log.Error().Err(err).Str("batch_id", c.BatchID.String()).Msg("batch aggregate recompute failed")
		}
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}
