package costing

import "github.com/shopspring/decimal"

// RiskBand classifies how far a submitted cost sits from its standard.
type RiskBand string

const (
	BandLow    RiskBand = "low"
	BandMedium RiskBand = "medium"
	BandHigh   RiskBand = "high"
)

// Banding thresholds, in percent over standard.
const (
	lowThresholdPct    = 10.0
	mediumThresholdPct = 25.0
)

// Per-category compliance points by band.
const (
	pointsLow    = 25
	pointsMedium = 15
	pointsHigh   = 0
)

// ActualCosts is the submitted cost breakdown of a claim.
type ActualCosts struct {
	Investigation decimal.Decimal `json:"investigation"`
	Procedure     decimal.Decimal `json:"procedure"`
	Medication    decimal.Decimal `json:"medication"`
	OtherServices decimal.Decimal `json:"other_services"`
}

// Total returns the sum of the four categories.
func (a ActualCosts) Total() decimal.Decimal {
	return a.Investigation.Add(a.Procedure).Add(a.Medication).Add(a.OtherServices)
}

// CategoryResult is the variance outcome for one cost category.
type CategoryResult struct {
	Category   string          `json:"category"`
	Actual     decimal.Decimal `json:"actual"`
	Standard   decimal.Decimal `json:"standard"`
	Variance   decimal.Decimal `json:"variance"`
	Percentage float64         `json:"percentage"`
	Band       RiskBand        `json:"band"`
	BandLabel  string          `json:"band_label"`
}

// Report is the full variance evaluation of a claim against a standard.
type Report struct {
	StandardKey     string           `json:"standard_key"`
	Categories      []CategoryResult `json:"categories"`
	Total           CategoryResult   `json:"total"`
	OverallBand     RiskBand         `json:"overall_band"`
	ComplianceScore int              `json:"compliance_score"`
}

// Engine evaluates actual claim costs against the standards registry. It
// never mutates state.
type Engine struct {
	registry *Registry
}

// NewEngine returns an Engine backed by the given registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Evaluate resolves the applicable standard and produces the per-category
// variance report, overall risk band, and compliance score. Pure: identical
// inputs always yield identical reports.
func (e *Engine) Evaluate(actual ActualCosts, procedure, diagnosis string) Report {
	std := e.registry.Resolve(procedure, diagnosis)

	categories := []CategoryResult{
		evaluateCategory(CategoryInvestigation, actual.Investigation, std.Investigation),
		evaluateCategory(CategoryProcedure, actual.Procedure, std.Procedure),
		evaluateCategory(CategoryMedication, actual.Medication, std.Medication),
		evaluateCategory(CategoryOtherServices, actual.OtherServices, std.OtherServices),
	}
	total := evaluateCategory(CategoryTotal, actual.Total(), std.Total())

	score := 0
	for _, c := range categories {
		switch c.Band {
		case BandLow:
			score += pointsLow
		case BandMedium:
			score += pointsMedium
		default:
			score += pointsHigh
		}
	}

	return Report{
		StandardKey:     std.Key,
		Categories:      categories,
		Total:           total,
		OverallBand:     total.Band,
		ComplianceScore: score,
	}
}

func evaluateCategory(name string, actual, standard decimal.Decimal) CategoryResult {
	variance := actual.Sub(standard)

	var pct float64
	if !standard.IsZero() {
		pct, _ = variance.Div(standard).Mul(decimal.NewFromInt(100)).Float64()
	}

	band, label := bandFor(pct)
	return CategoryResult{
		Category:   name,
		Actual:     actual,
		Standard:   standard,
		Variance:   variance,
		Percentage: pct,
		Band:       band,
		BandLabel:  label,
	}
}

func bandFor(pct float64) (RiskBand, string) {
	switch {
	case pct <= lowThresholdPct:
		return BandLow, "within range"
	case pct <= mediumThresholdPct:
		return BandMedium, "requires review"
	default:
		return BandHigh, "above standard"
	}
}
