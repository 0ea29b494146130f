package reconciliation

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nhis/claims/internal/domain/batch"
	"github.com/nhis/claims/pkg/apperror"
)

// TxRunner executes a function inside one database transaction. Implemented
// by db.TxManager.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo       Repository
	batches    batch.Repository
	tx         TxRunner
	defaultFee decimal.Decimal
	log        zerolog.Logger
}

// NewService wires the reconciliation engine. defaultFeePct applies when
// neither the call nor the batch carries an admin fee percentage.
func NewService(repo Repository, batches batch.Repository, tx TxRunner, defaultFeePct decimal.Decimal, log zerolog.Logger) *Service {
	return &Service{repo: repo, batches: batches, tx: tx, defaultFee: defaultFeePct, log: log}
}

// ComputeBatchFinancials derives the fee split for one batch. Pure and
// idempotent; safe to recompute any time before the batch is consumed.
func (s *Service) ComputeBatchFinancials(b *batch.Batch, feeOverridePct *decimal.Decimal) BatchFinancials {
	pct := s.defaultFee
	if b.AdminFeePct != nil {
		pct = *b.AdminFeePct
	}
	if feeOverridePct != nil {
		pct = *feeOverridePct
	}

	fee := b.ApprovedAmount.Mul(pct).Div(decimal.NewFromInt(100))
	return BatchFinancials{
		BatchID:        b.ID,
		ApprovedAmount: b.ApprovedAmount,
		AdminFeePct:    pct,
		AdminFeeAmount: fee,
		NetAmount:      b.ApprovedAmount.Sub(fee),
	}
}

// CreateInput is the reimbursement bundling request.
type CreateInput struct {
	TPAID          uuid.UUID        `json:"tpa_id"`
	BatchIDs       []uuid.UUID      `json:"batch_ids"`
	FeeOverridePct *decimal.Decimal `json:"fee_override_pct,omitempty"`
	Purpose        string           `json:"purpose"`
	Notes          string           `json:"notes"`
}

// CreateReimbursement bundles closed, unconsumed batches into one
// reimbursement. All-or-nothing: any ineligible batch fails the whole call,
// naming the offending batch.
func (s *Service) CreateReimbursement(ctx context.Context, in CreateInput) (*Reimbursement, error) {
	if in.TPAID == uuid.Nil {
		return nil, apperror.Validation("tpa_id", "tpa is required")
	}
	if len(in.BatchIDs) == 0 {
		return nil, apperror.Validation("batch_ids", "at least one batch is required")
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return nil, apperror.Validation("purpose", "purpose is required")
	}
	if in.FeeOverridePct != nil && in.FeeOverridePct.IsNegative() {
		return nil, apperror.Validation("fee_override_pct", "fee percentage cannot be negative")
	}

	batchIDs := dedupe(in.BatchIDs)
	// Locked in sorted order so concurrent bundles over overlapping sets
	// cannot deadlock.
	sort.Slice(batchIDs, func(i, j int) bool {
		return batchIDs[i].String() < batchIDs[j].String()
	})

	var out *Reimbursement
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		total := decimal.Zero
		fees := decimal.Zero
		net := decimal.Zero
		pct := s.defaultFee

		for _, batchID := range batchIDs {
			b, err := s.batches.GetForUpdate(ctx, batchID)
			if err != nil {
				return err
			}
			if b.Status != batch.StatusClosed {
				return apperror.IneligibleBatch(batchID.String(), "batch %s is %s, not closed", b.BatchNumber, b.Status)
			}
			if b.ReimbursementID != nil {
				return apperror.IneligibleBatch(batchID.String(), "batch %s is already attached to a reimbursement", b.BatchNumber)
			}
			if b.TPAID != in.TPAID {
				return apperror.IneligibleBatch(batchID.String(), "batch %s belongs to a different tpa", b.BatchNumber)
			}

			fin := s.ComputeBatchFinancials(b, in.FeeOverridePct)
			total = total.Add(fin.ApprovedAmount)
			fees = fees.Add(fin.AdminFeeAmount)
			net = net.Add(fin.NetAmount)
			pct = fin.AdminFeePct
		}

		rb := &Reimbursement{
			TPAID:             in.TPAID,
			BatchIDs:          batchIDs,
			TotalClaimsAmount: total,
			AdminFeePct:       pct,
			AdminFeeAmount:    fees,
			NetAmount:         net,
			Purpose:           in.Purpose,
			Status:            StatusPending,
		}
		if in.Notes != "" {
			notes := in.Notes
			rb.Notes = &notes
		}
		if err := s.repo.Create(ctx, rb); err != nil {
			return err
		}

		// Conditional attach is the double-spend guard: a batch consumed by
		// a racing bundle fails here and rolls the whole call back.
		for _, batchID := range batchIDs {
			if err := s.batches.AttachReimbursement(ctx, batchID, rb.ID); err != nil {
				return err
			}
		}
		out = rb
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("reimbursement_id", out.ID.String()).Int("batches", len(out.BatchIDs)).
		Str("net_amount", out.NetAmount.String()).Msg("reimbursement created")
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// UpdateStatus advances a reimbursement. Disputing releases the consumed
// batches so they can be re-bundled.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) (*Reimbursement, error) {
	var out *Reimbursement
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rb, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if rb.Status == newStatus {
			out = rb
			return nil
		}
		if !CanTransition(rb.Status, newStatus) {
			return apperror.IllegalTransition("reimbursement cannot move from %s to %s", rb.Status, newStatus)
		}

		rb.Status = newStatus
		if err := s.repo.Update(ctx, rb); err != nil {
			return err
		}
		if newStatus == StatusDisputed {
			if err := s.batches.ReleaseByReimbursement(ctx, rb.ID); err != nil {
				return err
			}
		}
		out = rb
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Status == StatusDisputed {
		s.log.Warn().Str("reimbursement_id", out.ID.String()).Msg("reimbursement disputed, batches released")
	}
	return out, nil
}

// AttachReceipt stores the payment receipt reference.
func (s *Service) AttachReceipt(ctx context.Context, id uuid.UUID, url string) (*Reimbursement, error) {
	if url == "" {
		return nil, apperror.Validation("url", "receipt url is required")
	}
	rb, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rb.ReceiptURL = &url
	if err := s.repo.Update(ctx, rb); err != nil {
		return nil, err
	}
	return rb, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reimbursement, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Reimbursement, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// CreateAdvancePayment records a working-capital disbursement. Advances live
// on their own ledger and are never netted against reimbursements here.
func (s *Service) CreateAdvancePayment(ctx context.Context, a *AdvancePayment) error {
	if a.TPAID == uuid.Nil {
		return apperror.Validation("tpa_id", "tpa is required")
	}
	if !a.Amount.IsPositive() {
		return apperror.Validation("amount", "amount must be greater than zero")
	}
	if strings.TrimSpace(a.Purpose) == "" {
		return apperror.Validation("purpose", "purpose is required")
	}
	a.Status = AdvancePending
	return s.repo.CreateAdvance(ctx, a)
}

// UpdateAdvanceStatus moves an advance along pending → approved → paid.
func (s *Service) UpdateAdvanceStatus(ctx context.Context, id uuid.UUID, newStatus, reference string) (*AdvancePayment, error) {
	if !validAdvanceStatuses[newStatus] {
		return nil, apperror.Validation("status", "unknown status %q", newStatus)
	}
	a, err := s.repo.GetAdvance(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == newStatus {
		return a, nil
	}
	legal := (a.Status == AdvancePending && newStatus == AdvanceApproved) ||
		(a.Status == AdvanceApproved && newStatus == AdvancePaid)
	if !legal {
		return nil, apperror.IllegalTransition("advance cannot move from %s to %s", a.Status, newStatus)
	}

	a.Status = newStatus
	if reference != "" {
		a.Reference = &reference
	}
	if err := s.repo.UpdateAdvance(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ListAdvances(ctx context.Context, tpaID *uuid.UUID, limit, offset int) ([]*AdvancePayment, int, error) {
	return s.repo.ListAdvances(ctx, tpaID, limit, offset)
}
