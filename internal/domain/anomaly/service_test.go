package anomaly

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhis/claims/internal/domain/claim"
	"github.com/nhis/claims/internal/platform/auth"
	"github.com/nhis/claims/pkg/apperror"
)

type mockRepo struct {
	records map[uuid.UUID]*ErrorRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*ErrorRecord)}
}

func (m *mockRepo) Create(ctx context.Context, r *ErrorRecord) error {
	r.ID = uuid.New()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*ErrorRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, apperror.NotFound("error record", id.String())
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) Update(ctx context.Context, r *ErrorRecord) error {
	if _, ok := m.records[r.ID]; !ok {
		return apperror.NotFound("error record", r.ID.String())
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRepo) List(ctx context.Context, f Filter, limit, offset int) ([]*ErrorRecord, int, error) {
	var out []*ErrorRecord
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockClaimRepo struct {
	claims map[uuid.UUID]*claim.Claim
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{claims: make(map[uuid.UUID]*claim.Claim)}
}

func (m *mockClaimRepo) add(c *claim.Claim) {
	cp := *c
	m.claims[c.ID] = &cp
}

func (m *mockClaimRepo) Create(ctx context.Context, c *claim.Claim) error {
	c.ID = uuid.New()
	m.add(c)
	return nil
}

func (m *mockClaimRepo) GetByID(ctx context.Context, id uuid.UUID) (*claim.Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, apperror.NotFound("claim", id.String())
	}
	cp := *c
	return &cp, nil
}

func (m *mockClaimRepo) GetByClaimNumber(ctx context.Context, number string) (*claim.Claim, error) {
	for _, c := range m.claims {
		if c.ClaimNumber == number {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("claim", number)
}

func (m *mockClaimRepo) Update(ctx context.Context, c *claim.Claim) error {
	m.add(c)
	return nil
}

func (m *mockClaimRepo) List(ctx context.Context, f claim.Filter, limit, offset int) ([]*claim.Claim, int, error) {
	var out []*claim.Claim
	for _, c := range m.claims {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockClaimRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*claim.Claim, error) {
	var out []*claim.Claim
	for _, c := range m.claims {
		if c.BatchID != nil && *c.BatchID == batchID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestServiceWithClaims() (*Service, *mockRepo, *mockClaimRepo) {
	repo := newMockRepo()
	claims := newMockClaimRepo()
	svc := NewService(repo, newTestEngine(), claims, zerolog.New(os.Stderr))
	return svc, repo, claims
}

var (
	adminActor = auth.Actor{ID: uuid.New(), Role: auth.RoleOversight}
	tpaActor   = auth.Actor{ID: uuid.New(), Role: auth.RoleTPA}
)

func openRecord(t *testing.T, svc *Service, repo *mockRepo, claims *mockClaimRepo) *ErrorRecord {
	t.Helper()
	c := cleanClaim()
	c.BeneficiaryName = ""
	claims.add(c)

	recs, err := svc.RunForClaim(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("run validation: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	return recs[0]
}

func TestRunForClaim_PersistsRecords(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()
	rec := openRecord(t, svc, repo, claims)

	stored, err := repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if stored.Status != StatusOpen {
		t.Fatalf("status = %s, want %s", stored.Status, StatusOpen)
	}
}

func TestRunForClaim_UsesBatchPeers(t *testing.T) {
	svc, _, claims := newTestServiceWithClaims()

	bid := uuid.New()
	first := cleanClaim()
	first.BatchID = &bid
	claims.add(first)

	second := cleanClaim()
	second.BatchID = &bid
	second.BeneficiaryID = first.BeneficiaryID
	claims.add(second)

	recs, err := svc.RunForClaim(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("run validation: %v", err)
	}
	if len(recs) != 1 || recs[0].Category != CategoryDuplicate {
		t.Fatalf("duplicate against batch peer not raised: %v", recordCategories(recs))
	}
}

func TestRunForBatch_EvaluatesAllMembers(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()

	bid := uuid.New()
	for i := 0; i < 3; i++ {
		c := cleanClaim()
		c.BatchID = &bid
		c.BeneficiaryID = ""
		claims.add(c)
	}

	recs, err := svc.RunForBatch(context.Background(), bid)
	if err != nil {
		t.Fatalf("run validation: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	if len(repo.records) != 3 {
		t.Fatalf("persisted = %d, want 3", len(repo.records))
	}
}

func TestTransition_RequiresAdministrativeActor(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()
	rec := openRecord(t, svc, repo, claims)

	_, err := svc.Transition(context.Background(), rec.ID, StatusUnderReview, "", tpaActor)
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for non-admin actor, got %v", err)
	}
}

func TestTransition_RecordsActor(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()
	rec := openRecord(t, svc, repo, claims)

	out, err := svc.Transition(context.Background(), rec.ID, StatusUnderReview, "", adminActor)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if out.Status != StatusUnderReview {
		t.Fatalf("status = %s, want %s", out.Status, StatusUnderReview)
	}
	if out.ActedBy == nil || *out.ActedBy != adminActor.ID {
		t.Fatalf("actor id not recorded")
	}
	if out.ActedAt == nil {
		t.Fatalf("timestamp not recorded")
	}
}

func TestTransition_Guards(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()
	rec := openRecord(t, svc, repo, claims)
	ctx := context.Background()

	// open cannot jump straight to resolved.
	if _, err := svc.Transition(ctx, rec.ID, StatusResolved, "", adminActor); !apperror.IsKind(err, apperror.KindIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	if _, err := svc.Transition(ctx, rec.ID, StatusUnderReview, "", adminActor); err != nil {
		t.Fatalf("to under_review: %v", err)
	}

	// Escalation requires a note.
	if _, err := svc.Transition(ctx, rec.ID, StatusEscalated, "", adminActor); !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for missing note, got %v", err)
	}
	out, err := svc.Transition(ctx, rec.ID, StatusEscalated, "needs fraud team review", adminActor)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if out.Resolution == nil || *out.Resolution != "needs fraud team review" {
		t.Fatalf("escalation note not stored")
	}

	// Escalated is terminal.
	if _, err := svc.Transition(ctx, rec.ID, StatusUnderReview, "reopen", adminActor); !apperror.IsKind(err, apperror.KindIllegalTransition) {
		t.Fatalf("escalated record should be terminal, got %v", err)
	}
}

func TestTransition_ReopenRequiresNote(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()
	rec := openRecord(t, svc, repo, claims)
	ctx := context.Background()

	if _, err := svc.Transition(ctx, rec.ID, StatusUnderReview, "", adminActor); err != nil {
		t.Fatalf("to under_review: %v", err)
	}
	if _, err := svc.Transition(ctx, rec.ID, StatusResolved, "amount corrected", adminActor); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := svc.Transition(ctx, rec.ID, StatusUnderReview, "", adminActor); !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("reopen without note should fail, got %v", err)
	}
	out, err := svc.Transition(ctx, rec.ID, StatusUnderReview, "figures still disputed", adminActor)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if out.Status != StatusUnderReview {
		t.Fatalf("status = %s, want %s", out.Status, StatusUnderReview)
	}
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	svc, repo, claims := newTestServiceWithClaims()
	rec := openRecord(t, svc, repo, claims)

	out, err := svc.Transition(context.Background(), rec.ID, StatusOpen, "", adminActor)
	if err != nil {
		t.Fatalf("no-op transition: %v", err)
	}
	if out.ActedBy != nil {
		t.Fatalf("no-op transition should not record an actor")
	}
}
