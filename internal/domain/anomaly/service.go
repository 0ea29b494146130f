package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhis/claims/internal/domain/batch"
	"github.com/nhis/claims/internal/domain/claim"
	"github.com/nhis/claims/internal/platform/auth"
	"github.com/nhis/claims/pkg/apperror"
)

type Service struct {
	repo   Repository
	engine *Engine
	claims claim.Repository
	log    zerolog.Logger
}

func NewService(repo Repository, engine *Engine, claims claim.Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, engine: engine, claims: claims, log: log}
}

// RunForClaim evaluates one claim on demand, persisting a record per firing
// rule. Detection never fails the claim: records are data for the escalation
// workflow.
func (s *Service) RunForClaim(ctx context.Context, claimID uuid.UUID) ([]*ErrorRecord, error) {
	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	var peers []*claim.Claim
	if c.BatchID != nil {
		peers, err = s.claims.ListByBatch(ctx, *c.BatchID)
		if err != nil {
			return nil, err
		}
	}
	return s.persist(ctx, s.engine.EvaluateClaim(c, peers))
}

// RunForBatch evaluates every member claim of a batch.
func (s *Service) RunForBatch(ctx context.Context, batchID uuid.UUID) ([]*ErrorRecord, error) {
	members, err := s.claims.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var all []*ErrorRecord
	for _, c := range members {
		recs, err := s.persist(ctx, s.engine.EvaluateClaim(c, members))
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

// RunBatchClaims is the closure-time hook: it evaluates the already-loaded
// member claims inside the closure transaction and reports how many records
// were raised.
func (s *Service) RunBatchClaims(ctx context.Context, b *batch.Batch, members []*claim.Claim) (int, error) {
	flagged := 0
	for _, c := range members {
		recs, err := s.persist(ctx, s.engine.EvaluateClaim(c, members))
		if err != nil {
			return flagged, err
		}
		flagged += len(recs)
	}
	if flagged > 0 {
		s.log.Info().Str("batch_id", b.ID.String()).Int("records", flagged).Msg("closure validation raised error records")
	}
	return flagged, nil
}

func (s *Service) persist(ctx context.Context, recs []*ErrorRecord) ([]*ErrorRecord, error) {
	for _, rec := range recs {
		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Transition moves an error record along the escalation workflow. Only
// administrative actors may act; escalation and reopening require a note.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, newStatus, note string, actor auth.Actor) (*ErrorRecord, error) {
	if !actor.IsAdministrative() {
		return nil, apperror.Validation("actor", "escalation actions require an administrative actor")
	}
	if !validStatuses[newStatus] {
		return nil, apperror.Validation("status", "unknown status %q", newStatus)
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == newStatus {
		return rec, nil
	}
	if !CanTransition(rec.Status, newStatus) {
		return nil, apperror.IllegalTransition("error record cannot move from %s to %s", rec.Status, newStatus)
	}
	if noteRequired(rec.Status, newStatus) && note == "" {
		return nil, apperror.Validation("note", "a note is required to move to %s", newStatus)
	}

	now := time.Now().UTC()
	rec.Status = newStatus
	if note != "" {
		rec.Resolution = &note
	}
	rec.ActedBy = &actor.ID
	rec.ActedAt = &now

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info().Str("record_id", rec.ID.String()).Str("status", newStatus).Str("actor_id", actor.ID.String()).Msg("error record transitioned")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ErrorRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*ErrorRecord, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}
