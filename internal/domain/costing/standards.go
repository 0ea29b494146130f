// Package costing holds the reference cost standards and the variance/risk
// engine that audits submitted claim costs against them.
package costing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Cost categories evaluated by the engine.
const (
	CategoryInvestigation = "investigation"
	CategoryProcedure     = "procedure"
	CategoryMedication    = "medication"
	CategoryOtherServices = "other_services"
	CategoryTotal         = "total"
)

// Standard is the expected cost breakdown for one procedure class.
type Standard struct {
	Key           string          `json:"key"`
	Description   string          `json:"description"`
	Investigation decimal.Decimal `json:"investigation"`
	Procedure     decimal.Decimal `json:"procedure"`
	Medication    decimal.Decimal `json:"medication"`
	OtherServices decimal.Decimal `json:"other_services"`
}

// Total returns the sum of the four category amounts.
func (s Standard) Total() decimal.Decimal {
	return s.Investigation.Add(s.Procedure).Add(s.Medication).Add(s.OtherServices)
}

func nd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// Standard keys.
const (
	KeyEmergencyCS    = "EMERGENCY_CS"
	KeyNormalDelivery = "NORMAL_DELIVERY"
	KeyConsultation   = "CONSULTATION"
	KeyDefault        = "DEFAULT"
)

var defaultStandards = map[string]Standard{
	KeyEmergencyCS: {
		Key:           KeyEmergencyCS,
		Description:   "Emergency caesarean section",
		Investigation: nd(15000),
		Procedure:     nd(120000),
		Medication:    nd(25000),
		OtherServices: nd(10000),
	},
	KeyNormalDelivery: {
		Key:           KeyNormalDelivery,
		Description:   "Normal delivery",
		Investigation: nd(8000),
		Procedure:     nd(50000),
		Medication:    nd(12000),
		OtherServices: nd(5000),
	},
	KeyConsultation: {
		Key:           KeyConsultation,
		Description:   "Outpatient consultation",
		Investigation: nd(5000),
		Procedure:     nd(10000),
		Medication:    nd(8000),
		OtherServices: nd(2000),
	},
	KeyDefault: {
		Key:           KeyDefault,
		Description:   "General admission",
		Investigation: nd(10000),
		Procedure:     nd(60000),
		Medication:    nd(15000),
		OtherServices: nd(8000),
	},
}

// matchRule maps free-text procedure/diagnosis labels to a standard key.
// Rules are evaluated top to bottom; the first hit wins.
type matchRule struct {
	match func(text string) bool
	key   string
}

func containsAny(subs ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range subs {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

var matchRules = []matchRule{
	{containsAny("CS", "CESAREAN", "CAESAREAN"), KeyEmergencyCS},
	{containsAny("DELIVERY"), KeyNormalDelivery},
	{containsAny("CONSULTATION"), KeyConsultation},
}

// Registry resolves procedure/diagnosis labels to cost standards.
type Registry struct {
	standards map[string]Standard
}

// NewRegistry returns a Registry loaded with the built-in standards.
func NewRegistry() *Registry {
	std := make(map[string]Standard, len(defaultStandards))
	for k, v := range defaultStandards {
		std[k] = v
	}
	return &Registry{standards: std}
}

// Register adds or replaces a standard.
func (r *Registry) Register(s Standard) {
	r.standards[s.Key] = s
}

// Get returns the standard for a key.
func (r *Registry) Get(key string) (Standard, bool) {
	s, ok := r.standards[key]
	return s, ok
}

// Resolve maps a procedure and diagnosis label to exactly one standard. It
// first looks for a registered key appearing in the text, then applies the
// heuristic match rules, then falls back to DEFAULT. Resolution is
// deterministic and total.
func (r *Registry) Resolve(procedure, diagnosis string) Standard {
	text := strings.ToUpper(procedure + " " + diagnosis)

	// Sorted so a text matching two registered keys resolves the same way
	// every time.
	keys := make([]string, 0, len(r.standards))
	for key := range r.standards {
		if key != KeyDefault {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.Contains(text, key) {
			return r.standards[key]
		}
	}

	for _, rule := range matchRules {
		if rule.match(text) {
			if s, ok := r.standards[rule.key]; ok {
				return s
			}
		}
	}

	return r.standards[KeyDefault]
}
