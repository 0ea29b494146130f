package reconciliation

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nhis/claims/internal/domain/batch"
	"github.com/nhis/claims/pkg/apperror"
)

type mockRepo struct {
	reimbursements map[uuid.UUID]*Reimbursement
	advances       map[uuid.UUID]*AdvancePayment
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		reimbursements: make(map[uuid.UUID]*Reimbursement),
		advances:       make(map[uuid.UUID]*AdvancePayment),
	}
}

func (m *mockRepo) Create(ctx context.Context, r *Reimbursement) error {
	r.ID = uuid.New()
	r.ReimbursementNumber = "RBM-" + r.ID.String()[:8]
	r.VersionID = 1
	cp := *r
	m.reimbursements[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Reimbursement, error) {
	r, ok := m.reimbursements[id]
	if !ok {
		return nil, apperror.NotFound("reimbursement", id.String())
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) Update(ctx context.Context, r *Reimbursement) error {
	cur, ok := m.reimbursements[r.ID]
	if !ok {
		return apperror.NotFound("reimbursement", r.ID.String())
	}
	if cur.VersionID != r.VersionID {
		return apperror.Conflict(r.ID.String(), "reimbursement was modified concurrently")
	}
	r.VersionID++
	cp := *r
	m.reimbursements[r.ID] = &cp
	return nil
}

func (m *mockRepo) List(ctx context.Context, f Filter, limit, offset int) ([]*Reimbursement, int, error) {
	var out []*Reimbursement
	for _, r := range m.reimbursements {
		if f.TPAID != nil && r.TPAID != *f.TPAID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateAdvance(ctx context.Context, a *AdvancePayment) error {
	a.ID = uuid.New()
	a.AdvanceNumber = "ADV-" + a.ID.String()[:8]
	cp := *a
	m.advances[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetAdvance(ctx context.Context, id uuid.UUID) (*AdvancePayment, error) {
	a, ok := m.advances[id]
	if !ok {
		return nil, apperror.NotFound("advance payment", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) UpdateAdvance(ctx context.Context, a *AdvancePayment) error {
	if _, ok := m.advances[a.ID]; !ok {
		return apperror.NotFound("advance payment", a.ID.String())
	}
	cp := *a
	m.advances[a.ID] = &cp
	return nil
}

func (m *mockRepo) ListAdvances(ctx context.Context, tpaID *uuid.UUID, limit, offset int) ([]*AdvancePayment, int, error) {
	var out []*AdvancePayment
	for _, a := range m.advances {
		if tpaID != nil && a.TPAID != *tpaID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

// mockBatchRepo holds closed batches for bundling.
type mockBatchRepo struct {
	batches map[uuid.UUID]*batch.Batch
}

func newMockBatchRepo() *mockBatchRepo {
	return &mockBatchRepo{batches: make(map[uuid.UUID]*batch.Batch)}
}

func (m *mockBatchRepo) add(b *batch.Batch) {
	cp := *b
	m.batches[b.ID] = &cp
}

func (m *mockBatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	b.ID = uuid.New()
	m.add(b)
	return nil
}

func (m *mockBatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*batch.Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, apperror.NotFound("batch", id.String())
	}
	cp := *b
	return &cp, nil
}

func (m *mockBatchRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*batch.Batch, error) {
	return m.GetByID(ctx, id)
}

func (m *mockBatchRepo) Update(ctx context.Context, b *batch.Batch) error {
	m.add(b)
	return nil
}

func (m *mockBatchRepo) List(ctx context.Context, f batch.Filter, limit, offset int) ([]*batch.Batch, int, error) {
	var out []*batch.Batch
	for _, b := range m.batches {
		cp := *b
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockBatchRepo) CreateClosureReport(ctx context.Context, r *batch.ClosureReport) error {
	return nil
}

func (m *mockBatchRepo) GetClosureReport(ctx context.Context, batchID uuid.UUID) (*batch.ClosureReport, error) {
	return nil, apperror.NotFound("closure report", batchID.String())
}

func (m *mockBatchRepo) UpdateClosureReport(ctx context.Context, r *batch.ClosureReport) error {
	return nil
}

func (m *mockBatchRepo) AttachReimbursement(ctx context.Context, batchID, reimbursementID uuid.UUID) error {
	b, ok := m.batches[batchID]
	if !ok {
		return apperror.NotFound("batch", batchID.String())
	}
	if b.Status != batch.StatusClosed || b.ReimbursementID != nil {
		return apperror.IneligibleBatch(batchID.String(), "batch is not closed or already reimbursed")
	}
	b.ReimbursementID = &reimbursementID
	return nil
}

func (m *mockBatchRepo) ReleaseByReimbursement(ctx context.Context, reimbursementID uuid.UUID) error {
	for _, b := range m.batches {
		if b.ReimbursementID != nil && *b.ReimbursementID == reimbursementID {
			b.ReimbursementID = nil
		}
	}
	return nil
}

type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testTPA = uuid.New()

func newTestService() (*Service, *mockRepo, *mockBatchRepo) {
	repo := newMockRepo()
	batches := newMockBatchRepo()
	svc := NewService(repo, batches, fakeTx{}, decimal.NewFromInt(5), zerolog.New(os.Stderr))
	return svc, repo, batches
}

func closedBatch(batches *mockBatchRepo, approved int64) *batch.Batch {
	b := &batch.Batch{
		ID:             uuid.New(),
		BatchNumber:    "BAT-" + uuid.New().String()[:8],
		TPAID:          testTPA,
		FacilityID:     uuid.New(),
		Status:         batch.StatusClosed,
		ApprovedAmount: decimal.NewFromInt(approved),
		TotalAmount:    decimal.NewFromInt(approved),
		VersionID:      1,
	}
	batches.add(b)
	return b
}

func ineligibleBatchID(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindIneligibleBatch {
		t.Fatalf("expected ineligible batch error, got %v", err)
	}
	return appErr.ID
}

func TestComputeBatchFinancials_DefaultRate(t *testing.T) {
	svc, _, batches := newTestService()
	b := closedBatch(batches, 200000)

	fin := svc.ComputeBatchFinancials(b, nil)
	if !fin.AdminFeePct.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("pct = %s, want 5", fin.AdminFeePct)
	}
	if !fin.AdminFeeAmount.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("fee = %s, want 10000", fin.AdminFeeAmount)
	}
	if !fin.NetAmount.Equal(decimal.NewFromInt(190000)) {
		t.Fatalf("net = %s, want 190000", fin.NetAmount)
	}
}

func TestComputeBatchFinancials_Precedence(t *testing.T) {
	svc, _, batches := newTestService()
	b := closedBatch(batches, 100000)

	batchPct := decimal.NewFromInt(8)
	b.AdminFeePct = &batchPct
	fin := svc.ComputeBatchFinancials(b, nil)
	if !fin.AdminFeeAmount.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("batch rate not used, fee = %s", fin.AdminFeeAmount)
	}

	override := decimal.NewFromInt(10)
	fin = svc.ComputeBatchFinancials(b, &override)
	if !fin.AdminFeeAmount.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("override not used, fee = %s", fin.AdminFeeAmount)
	}
}

func TestCreateReimbursement_BundlesClosedBatches(t *testing.T) {
	svc, _, batches := newTestService()
	b1 := closedBatch(batches, 200000)
	b2 := closedBatch(batches, 100000)

	rb, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{b1.ID, b2.ID},
		Purpose:  "august settlement",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rb.Status != StatusPending {
		t.Fatalf("status = %s, want %s", rb.Status, StatusPending)
	}
	if !rb.TotalClaimsAmount.Equal(decimal.NewFromInt(300000)) {
		t.Fatalf("total = %s, want 300000", rb.TotalClaimsAmount)
	}
	if !rb.AdminFeeAmount.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("fee = %s, want 15000", rb.AdminFeeAmount)
	}
	if !rb.NetAmount.Equal(decimal.NewFromInt(285000)) {
		t.Fatalf("net = %s, want 285000", rb.NetAmount)
	}

	for _, id := range []uuid.UUID{b1.ID, b2.ID} {
		if got := batches.batches[id].ReimbursementID; got == nil || *got != rb.ID {
			t.Fatalf("batch %s not attached", id)
		}
	}
}

func TestCreateReimbursement_NamesIneligibleBatch(t *testing.T) {
	svc, repo, batches := newTestService()
	open := closedBatch(batches, 50000)
	batches.batches[open.ID].Status = batch.StatusSubmitted

	_, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{open.ID},
		Purpose:  "settlement",
	})
	if got := ineligibleBatchID(t, err); got != open.ID.String() {
		t.Fatalf("error names %s, want %s", got, open.ID)
	}
	if len(repo.reimbursements) != 0 {
		t.Fatalf("reimbursement persisted despite ineligible batch")
	}
}

// A batch consumed by one reimbursement cannot enter a second bundle.
func TestCreateReimbursement_NoDoubleSpend(t *testing.T) {
	svc, _, batches := newTestService()
	contested := closedBatch(batches, 200000)

	first, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{contested.ID},
		Purpose:  "first bundle",
	})
	if err != nil {
		t.Fatalf("first bundle: %v", err)
	}

	_, err = svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{contested.ID},
		Purpose:  "second bundle",
	})
	if got := ineligibleBatchID(t, err); got != contested.ID.String() {
		t.Fatalf("error names %s, want %s", got, contested.ID)
	}
	if got := batches.batches[contested.ID].ReimbursementID; got == nil || *got != first.ID {
		t.Fatalf("batch attachment changed by failed bundle")
	}
}

func TestCreateReimbursement_RejectsForeignBatch(t *testing.T) {
	svc, _, batches := newTestService()
	foreign := closedBatch(batches, 50000)
	batches.batches[foreign.ID].TPAID = uuid.New()

	_, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{foreign.ID},
		Purpose:  "settlement",
	})
	if got := ineligibleBatchID(t, err); got != foreign.ID.String() {
		t.Fatalf("error names %s, want %s", got, foreign.ID)
	}
}

func TestUpdateStatus_DisputeReleasesBatches(t *testing.T) {
	svc, _, batches := newTestService()
	b := closedBatch(batches, 200000)

	rb, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{b.ID},
		Purpose:  "settlement",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), rb.ID, StatusCompleted); !apperror.IsKind(err, apperror.KindIllegalTransition) {
		t.Fatalf("pending cannot jump to completed, got %v", err)
	}

	out, err := svc.UpdateStatus(context.Background(), rb.ID, StatusDisputed)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if out.Status != StatusDisputed {
		t.Fatalf("status = %s, want %s", out.Status, StatusDisputed)
	}
	if batches.batches[b.ID].ReimbursementID != nil {
		t.Fatalf("batch not released after dispute")
	}

	// Released batch is eligible for a fresh bundle.
	if _, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{b.ID},
		Purpose:  "rebundle",
	}); err != nil {
		t.Fatalf("rebundle after dispute: %v", err)
	}
}

func TestUpdateStatus_CompletesViaProcessed(t *testing.T) {
	svc, _, batches := newTestService()
	b := closedBatch(batches, 100000)

	rb, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{b.ID},
		Purpose:  "settlement",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, status := range []string{StatusProcessed, StatusCompleted} {
		out, err := svc.UpdateStatus(context.Background(), rb.ID, status)
		if err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
		if out.Status != status {
			t.Fatalf("status = %s, want %s", out.Status, status)
		}
	}
}

func TestAttachReceipt(t *testing.T) {
	svc, _, batches := newTestService()
	b := closedBatch(batches, 100000)

	rb, err := svc.CreateReimbursement(context.Background(), CreateInput{
		TPAID:    testTPA,
		BatchIDs: []uuid.UUID{b.ID},
		Purpose:  "settlement",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := svc.AttachReceipt(context.Background(), rb.ID, "blob://receipts/txn-4521.pdf")
	if err != nil {
		t.Fatalf("attach receipt: %v", err)
	}
	if out.ReceiptURL == nil || *out.ReceiptURL != "blob://receipts/txn-4521.pdf" {
		t.Fatalf("receipt not stored")
	}
}

func TestAdvancePayment_Lifecycle(t *testing.T) {
	svc, _, _ := newTestService()

	a := &AdvancePayment{TPAID: testTPA, Amount: decimal.NewFromInt(500000), Purpose: "working capital"}
	if err := svc.CreateAdvancePayment(context.Background(), a); err != nil {
		t.Fatalf("create advance: %v", err)
	}
	if a.Status != AdvancePending {
		t.Fatalf("status = %s, want %s", a.Status, AdvancePending)
	}

	if _, err := svc.UpdateAdvanceStatus(context.Background(), a.ID, AdvancePaid, ""); !apperror.IsKind(err, apperror.KindIllegalTransition) {
		t.Fatalf("pending cannot jump to paid, got %v", err)
	}
	if _, err := svc.UpdateAdvanceStatus(context.Background(), a.ID, AdvanceApproved, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	out, err := svc.UpdateAdvanceStatus(context.Background(), a.ID, AdvancePaid, "TXN-9001")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if out.Reference == nil || *out.Reference != "TXN-9001" {
		t.Fatalf("payment reference not stored")
	}
}

func TestCreateAdvancePayment_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.CreateAdvancePayment(context.Background(), &AdvancePayment{TPAID: testTPA, Purpose: "x"})
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("zero amount should fail, got %v", err)
	}
	err = svc.CreateAdvancePayment(context.Background(), &AdvancePayment{Amount: decimal.NewFromInt(1000), Purpose: "x"})
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("missing tpa should fail, got %v", err)
	}
}
