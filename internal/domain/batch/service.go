package batch

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nhis/claims/internal/domain/claim"
	"github.com/nhis/claims/internal/platform/notification"
	"github.com/nhis/claims/pkg/apperror"
)

// TxRunner executes a function inside one database transaction. Implemented
// by db.TxManager.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Validator runs the error/validation engine over a batch's member claims at
// closure time. Implemented by the anomaly service.
type Validator interface {
	RunBatchClaims(ctx context.Context, b *Batch, claims []*claim.Claim) (int, error)
}

// Notifier delivers lifecycle notices. Implemented by
// notification.NotificationManager.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type Service struct {
	repo      Repository
	claims    claim.Repository
	tx        TxRunner
	validator Validator
	notifier  Notifier
	log       zerolog.Logger
}

func NewService(repo Repository, claims claim.Repository, tx TxRunner, log zerolog.Logger) *Service {
	return &Service{repo: repo, claims: claims, tx: tx, log: log}
}

// SetValidator attaches the closure-time validation engine.
func (s *Service) SetValidator(v Validator) { s.validator = v }

// SetNotifier attaches the notification sink.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// Create opens a draft batch for a facility/TPA pair.
func (s *Service) Create(ctx context.Context, b *Batch) error {
	if b.TPAID == uuid.Nil {
		return apperror.Validation("tpa_id", "tpa is required")
	}
	if b.FacilityID == uuid.Nil {
		return apperror.Validation("facility_id", "facility is required")
	}
	if b.WeekStart != nil && b.WeekEnd != nil && b.WeekEnd.Before(*b.WeekStart) {
		return apperror.Validation("week_end", "week end precedes week start")
	}

	b.Status = StatusDraft
	b.AdminState = nil
	b.TotalClaims = 0
	b.TotalAmount = decimal.Zero
	b.ApprovedAmount = decimal.Zero
	b.ReimbursementID = nil

	if err := s.repo.Create(ctx, b); err != nil {
		return err
	}
	s.log.Info().Str("batch_id", b.ID.String()).Str("batch_number", b.BatchNumber).Msg("batch created")
	return nil
}

// AddClaim attaches an unassigned claim to a draft batch and recomputes the
// aggregates. The batch row is locked for the duration, so concurrent adds
// serialize; a writer racing on a stale version gets a conflict.
func (s *Service) AddClaim(ctx context.Context, batchID, claimID uuid.UUID) (*Batch, error) {
	var out *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != StatusDraft {
			return apperror.IllegalTransition("claims can only be added while the batch is draft, batch is %s", b.Status)
		}

		c, err := s.claims.GetByID(ctx, claimID)
		if err != nil {
			return err
		}
		if c.BatchID != nil {
			if *c.BatchID == batchID {
				out = b
				return nil
			}
			return apperror.Validation("claim_id", "claim %s is already assigned to another batch", c.ClaimNumber)
		}
		if c.TPAID != b.TPAID || c.FacilityID != b.FacilityID {
			return apperror.Validation("claim_id", "claim %s belongs to a different facility/tpa pair", c.ClaimNumber)
		}

		c.BatchID = &b.ID
		if err := s.claims.Update(ctx, c); err != nil {
			return err
		}
		if err := s.recompute(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// Recompute rederives a batch's aggregates from its member claims. Exposed
// for the claim service's stale-aggregate hook.
func (s *Service) Recompute(ctx context.Context, batchID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		return s.recompute(ctx, b)
	})
}

func (s *Service) recompute(ctx context.Context, b *Batch) error {
	members, err := s.claims.ListByBatch(ctx, b.ID)
	if err != nil {
		return err
	}
	b.TotalClaims = len(members)
	b.TotalAmount = decimal.Zero
	b.ApprovedAmount = decimal.Zero
	for _, c := range members {
		b.TotalAmount = b.TotalAmount.Add(c.TotalCost)
		if c.DecisionValue() == claim.DecisionApproved && c.ApprovedTotal != nil {
			b.ApprovedAmount = b.ApprovedAmount.Add(*c.ApprovedTotal)
		}
	}
	return s.repo.Update(ctx, b)
}

// AttachCoverLetter stores the forwarding-letter reference. Allowed until the
// batch is submitted.
func (s *Service) AttachCoverLetter(ctx context.Context, id uuid.UUID, url, filename string) (*Batch, error) {
	if url == "" {
		return nil, apperror.Validation("url", "cover letter url is required")
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusDraft && b.Status != StatusReadyForSubmission {
		return nil, apperror.IllegalTransition("cover letter cannot change once the batch is %s", b.Status)
	}
	b.CoverLetterURL = &url
	b.CoverLetterFilename = &filename
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// PrepareSubmission moves a non-empty draft to ready_for_submission.
func (s *Service) PrepareSubmission(ctx context.Context, id uuid.UUID) (*Batch, error) {
	var out *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusReadyForSubmission {
			out = b
			return nil
		}
		if !CanTransition(b.Status, StatusReadyForSubmission) {
			return apperror.IllegalTransition("cannot prepare batch in status %s for submission", b.Status)
		}
		if err := s.recompute(ctx, b); err != nil {
			return err
		}
		if b.TotalClaims == 0 {
			return apperror.Validation("total_claims", "batch has no claims")
		}
		b.Status = StatusReadyForSubmission
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// SubmitInput carries the submission metadata.
type SubmitInput struct {
	Emails []string `json:"emails"`
	Notes  string   `json:"notes"`
}

// Submit commits the batch to the TPA. Requires a cover letter and at least
// one submission email; freezes membership and advances every member claim to
// awaiting_verification.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, in SubmitInput) (*Batch, error) {
	var out *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusSubmitted {
			out = b
			return nil
		}
		if !CanTransition(b.Status, StatusSubmitted) {
			return apperror.IllegalTransition("cannot submit batch in status %s", b.Status)
		}
		if !b.HasCoverLetter() {
			return apperror.Validation("cover_letter", "a cover letter must be attached before submission")
		}
		if len(in.Emails) == 0 {
			return apperror.Validation("emails", "at least one submission email is required")
		}

		members, err := s.claims.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, c := range members {
			if c.Status != claim.StatusSubmitted {
				continue
			}
			c.Status = claim.StatusAwaitingVerification
			if err := s.claims.Update(ctx, c); err != nil {
				return err
			}
		}

		b.Status = StatusSubmitted
		b.SubmissionEmails = in.Emails
		if in.Notes != "" {
			notes := in.Notes
			b.SubmissionNotes = &notes
		}
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "batch-submitted", out.SubmissionEmails, map[string]string{
		"batch_number": out.BatchNumber,
		"date":         time.Now().UTC().Format("2006-01-02"),
		"claim_count":  strconv.Itoa(out.TotalClaims),
		"total_amount": out.TotalAmount.String(),
	})
	s.log.Info().Str("batch_id", out.ID.String()).Int("claims", out.TotalClaims).Msg("batch submitted")
	return out, nil
}

// Close runs the atomic closure sequence: validate the four input groups,
// recompute aggregates, write exactly one closure report, and run the
// validation engine over every member claim. A failed precondition leaves the
// batch submitted with nothing persisted.
func (s *Service) Close(ctx context.Context, id uuid.UUID, in ClosureInput) (*Batch, error) {
	if err := validateClosureInput(in); err != nil {
		return nil, err
	}

	var out *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, StatusClosed) {
			return apperror.IllegalTransition("cannot close batch in status %s", b.Status)
		}
		if !b.HasCoverLetter() {
			return apperror.IncompleteClosure("cover_letter", "forwarding letter is missing")
		}

		members, err := s.claims.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}

		// Rederive aggregates from the final decisions.
		b.TotalClaims = len(members)
		b.TotalAmount = decimal.Zero
		b.ApprovedAmount = decimal.Zero
		for _, c := range members {
			b.TotalAmount = b.TotalAmount.Add(c.TotalCost)
			if c.DecisionValue() == claim.DecisionApproved && c.ApprovedTotal != nil {
				b.ApprovedAmount = b.ApprovedAmount.Add(*c.ApprovedTotal)
			}
		}

		if in.PaidAmount.GreaterThan(b.ApprovedAmount) {
			return apperror.Validation("paid_amount",
				"paid amount %s exceeds approved amount %s", in.PaidAmount, b.ApprovedAmount)
		}

		report := &ClosureReport{
			BatchID:              b.ID,
			ReviewSummary:        in.ReviewSummary,
			PaymentJustification: in.PaymentJustification,
			RejectionBreakdown:   rejectionBreakdown(members),
			PaidAmount:           in.PaidAmount,
			PaidClaimsCount:      in.PaidClaimsCount,
			BeneficiariesPaid:    in.BeneficiariesPaid,
			PaymentDate:          in.PaymentDate.UTC(),
			PaymentMethod:        in.PaymentMethod,
			PaymentReference:     in.PaymentReference,
			CoverLetterURL:       b.CoverLetterURL,
			CoverLetterFilename:  b.CoverLetterFilename,
			Signature:            in.Signature,
			SignedAt:             time.Now().UTC(),
			Status:               ReportStatusSubmitted,
		}
		if err := s.repo.CreateClosureReport(ctx, report); err != nil {
			return err
		}

		if s.validator != nil {
			if _, err := s.validator.RunBatchClaims(ctx, b, members); err != nil {
				return err
			}
		}

		b.Status = StatusClosed
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "batch-closed", out.SubmissionEmails, map[string]string{
		"batch_number":    out.BatchNumber,
		"approved_amount": out.ApprovedAmount.String(),
		"rejected_amount": out.TotalAmount.Sub(out.ApprovedAmount).String(),
	})
	s.log.Info().Str("batch_id", out.ID.String()).Str("approved", out.ApprovedAmount.String()).Msg("batch closed")
	return out, nil
}

func validateClosureInput(in ClosureInput) error {
	if in.ReviewSummary == "" {
		return apperror.IncompleteClosure("review_summary", "review summary is required")
	}
	if in.PaymentJustification == "" {
		return apperror.IncompleteClosure("payment_justification", "payment justification is required")
	}
	if !in.PaidAmount.IsPositive() {
		return apperror.IncompleteClosure("paid_amount", "paid amount must be greater than zero")
	}
	if in.BeneficiariesPaid <= 0 {
		return apperror.IncompleteClosure("beneficiaries_paid", "beneficiaries paid must be greater than zero")
	}
	if in.Signature == "" {
		return apperror.IncompleteClosure("signature", "digital signature is required")
	}
	if !in.ConsentGiven {
		return apperror.IncompleteClosure("consent_given", "explicit consent is required")
	}
	return nil
}

func rejectionBreakdown(members []*claim.Claim) []RejectionReasonCount {
	byReason := make(map[string]*RejectionReasonCount)
	for _, c := range members {
		if c.DecisionValue() != claim.DecisionRejected || c.RejectionReason == nil {
			continue
		}
		row, ok := byReason[*c.RejectionReason]
		if !ok {
			row = &RejectionReasonCount{Reason: *c.RejectionReason, Amount: decimal.Zero}
			byReason[*c.RejectionReason] = row
		}
		row.Count++
		row.Amount = row.Amount.Add(c.TotalCost)
	}

	out := make([]RejectionReasonCount, 0, len(byReason))
	for _, row := range byReason {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out
}

// Reject terminates a batch from any pre-closure state.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Batch, error) {
	var out *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusRejected {
			out = b
			return nil
		}
		if !CanTransition(b.Status, StatusRejected) {
			return apperror.IllegalTransition("cannot reject batch in status %s", b.Status)
		}
		b.Status = StatusRejected
		if reason != "" {
			b.SubmissionNotes = &reason
		}
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// AdvanceAdminState moves a closed batch along the oversight track.
func (s *Service) AdvanceAdminState(ctx context.Context, id uuid.UUID, newState string) (*Batch, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusClosed {
		return nil, apperror.IllegalTransition("administrative track applies to closed batches only, batch is %s", b.Status)
	}
	if b.AdminStateValue() == newState {
		return b, nil
	}
	if !CanAdminTransition(b.AdminStateValue(), newState) {
		return nil, apperror.IllegalTransition("cannot move admin state from %q to %q", b.AdminStateValue(), newState)
	}

	b.AdminState = &newState
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReviewClosureReport records the administrative reviewer's annotation
// without reopening the batch.
func (s *Service) ReviewClosureReport(ctx context.Context, batchID uuid.UUID, adminSignature, notes string) (*ClosureReport, error) {
	if adminSignature == "" {
		return nil, apperror.Validation("admin_signature", "admin signature is required")
	}
	rep, err := s.repo.GetClosureReport(ctx, batchID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rep.AdminSignature = &adminSignature
	if notes != "" {
		rep.AdminNotes = &notes
	}
	rep.AdminReviewedAt = &now
	rep.Status = ReportStatusReviewed
	if err := s.repo.UpdateClosureReport(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Batch, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Batch, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) GetClosureReport(ctx context.Context, batchID uuid.UUID) (*ClosureReport, error) {
	return s.repo.GetClosureReport(ctx, batchID)
}

func (s *Service) notify(ctx context.Context, template string, recipients []string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	for _, rcpt := range recipients {
		if _, err := s.notifier.SendFromTemplate(ctx, template, data, rcpt); err != nil {
			s.log.Warn().Err(err).Str("template", template).Str("recipient", rcpt).Msg("notification failed")
		}
	}
}
