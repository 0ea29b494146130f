package anomaly

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nhis/claims/internal/domain/claim"
	"github.com/nhis/claims/internal/domain/costing"
)

// Engine runs the detection rules over claims. Rules are evaluated in a fixed
// order and independently; one claim may yield one record per firing rule and
// no rule suppresses another. The engine never mutates claims.
type Engine struct {
	variance *costing.Engine
}

func NewEngine(variance *costing.Engine) *Engine {
	return &Engine{variance: variance}
}

// EvaluateClaim runs the rule set over one claim. peers are the other claims
// in the same batch, consulted by the duplicate rule.
func (e *Engine) EvaluateClaim(c *claim.Claim, peers []*claim.Claim) []*ErrorRecord {
	var out []*ErrorRecord
	if r := e.structural(c); r != nil {
		out = append(out, r)
	}
	if r := e.duplicate(c, peers); r != nil {
		out = append(out, r)
	}
	if r := e.costAnomaly(c); r != nil {
		out = append(out, r)
	}
	if r := e.decisionMismatch(c); r != nil {
		out = append(out, r)
	}
	return out
}

func newRecord(c *claim.Claim, errType, category, severity, description string) *ErrorRecord {
	id := c.ID
	rec := &ErrorRecord{
		ClaimID:     &id,
		Type:        errType,
		Category:    category,
		Severity:    severity,
		Description: description,
		Status:      StatusOpen,
	}
	if c.BatchID != nil {
		bid := *c.BatchID
		rec.BatchID = &bid
	}
	return rec
}

// structural checks required field presence.
func (e *Engine) structural(c *claim.Claim) *ErrorRecord {
	var missing []string
	if strings.TrimSpace(c.BeneficiaryName) == "" {
		missing = append(missing, "beneficiary name")
	}
	if strings.TrimSpace(c.BeneficiaryID) == "" {
		missing = append(missing, "beneficiary id")
	}
	if c.FacilityID == uuid.Nil {
		missing = append(missing, "facility")
	}
	if !c.TotalCost.IsPositive() {
		missing = append(missing, "positive total cost")
	}
	if len(missing) == 0 {
		return nil
	}
	return newRecord(c, TypeValidation, CategoryMissingData, SeverityHigh,
		fmt.Sprintf("claim %s is missing: %s", c.ClaimNumber, strings.Join(missing, ", ")))
}

// duplicate flags a claim whose beneficiary and procedure match another claim
// in the same batch with an overlapping treatment window. Claims without
// treatment dates fall back to the exact (beneficiary, procedure) match.
func (e *Engine) duplicate(c *claim.Claim, peers []*claim.Claim) *ErrorRecord {
	for _, p := range peers {
		if p.ID == c.ID {
			continue
		}
		if p.BeneficiaryID == "" || p.BeneficiaryID != c.BeneficiaryID {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(p.Procedure), strings.TrimSpace(c.Procedure)) {
			continue
		}
		if !windowsOverlap(c, p) {
			continue
		}
		return newRecord(c, TypeFraud, CategoryDuplicate, SeverityMedium,
			fmt.Sprintf("claim %s duplicates %s: same beneficiary %s and procedure with overlapping treatment window",
				c.ClaimNumber, p.ClaimNumber, c.BeneficiaryID))
	}
	return nil
}

// windowsOverlap reports whether two claims' treatment windows intersect.
// Missing dates widen the window, so undated claims still match.
func windowsOverlap(a, b *claim.Claim) bool {
	if a.TreatmentStart == nil || a.TreatmentEnd == nil || b.TreatmentStart == nil || b.TreatmentEnd == nil {
		return true
	}
	return !a.TreatmentEnd.Before(*b.TreatmentStart) && !b.TreatmentEnd.Before(*a.TreatmentStart)
}

// costAnomaly consumes the variance engine's report and flags claims whose
// overall risk band is medium or above.
func (e *Engine) costAnomaly(c *claim.Claim) *ErrorRecord {
	report := e.variance.Evaluate(costing.ActualCosts{
		Investigation: c.InvestigationCost,
		Procedure:     c.ProcedureCost,
		Medication:    c.MedicationCost,
		OtherServices: c.OtherServicesCost,
	}, c.Procedure, c.Diagnosis)

	var severity string
	switch report.OverallBand {
	case costing.BandMedium:
		severity = SeverityMedium
	case costing.BandHigh:
		severity = SeverityCritical
	default:
		return nil
	}

	rec := newRecord(c, TypeDiscrepancy, CategoryCostAnomaly, severity,
		fmt.Sprintf("claim %s total %s exceeds standard %s (%s) by %.1f%%",
			c.ClaimNumber, report.Total.Actual, report.Total.Standard, report.StandardKey, report.Total.Percentage))
	expected := report.Total.Standard
	actual := report.Total.Actual
	pct := report.Total.Percentage
	rec.ExpectedAmount = &expected
	rec.ActualAmount = &actual
	rec.DeviationPct = &pct
	return rec
}

// decisionMismatch flags inconsistency between the decision and the approved
// amount: an amount without an approval, or an approval without an amount.
func (e *Engine) decisionMismatch(c *claim.Claim) *ErrorRecord {
	hasAmount := c.ApprovedTotal != nil
	approved := c.DecisionValue() == claim.DecisionApproved
	if hasAmount == approved {
		return nil
	}

	var desc string
	if hasAmount {
		desc = fmt.Sprintf("claim %s carries an approved amount but its decision is %q", c.ClaimNumber, c.DecisionValue())
	} else {
		desc = fmt.Sprintf("claim %s is approved but has no approved amount", c.ClaimNumber)
	}
	rec := newRecord(c, TypeQuality, CategoryDecisionMismatch, SeverityHigh, desc)
	if hasAmount {
		amt := *c.ApprovedTotal
		rec.ActualAmount = &amt
	}
	return rec
}
