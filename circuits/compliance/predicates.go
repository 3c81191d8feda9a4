package compliance

import (
	"fmt"
	"math/big"

	"github.com/attestra/compliance-zkproof/pkg/field"
	"github.com/attestra/compliance-zkproof/pkg/layout"
)

// PredicateKind enumerates the generic, composable predicate forms the
// circuit can evaluate over revealed fields.
type PredicateKind int

const (
	// StatusEquality requires the field to equal one canonical value.
	StatusEquality PredicateKind = iota
	// StatusExclusion requires the field to differ from a forbidden value
	// and (unless AllowEmpty) to be non-empty.
	StatusExclusion
	// TemporalWindow requires the proving time to fall within the window
	// spanned by two date fields. Fails closed when either date is zero.
	TemporalWindow
	// NonEmpty requires a non-empty, non-placeholder string field.
	NonEmpty
	// CountThreshold requires a count-encoded field to be >= a minimum.
	CountThreshold
	// PatternMatch requires a string field to match a fixed structural
	// pattern (fixed length, bounded byte range).
	PatternMatch
)

// PatternSpec describes a fixed structural pattern: exactly Length bytes,
// each within [MinByte, MaxByte].
type PatternSpec struct {
	Length  int
	MinByte byte
	MaxByte byte
}

// Common patterns.
var (
	// TwoLetterUpper matches ISO 3166-1 alpha-2 country codes.
	TwoLetterUpper = PatternSpec{Length: 2, MinByte: 'A', MaxByte: 'Z'}
	// ThreeLetterUpper matches ISO 4217 currency codes.
	ThreeLetterUpper = PatternSpec{Length: 3, MinByte: 'A', MaxByte: 'Z'}
)

// placeholderValue is the encoded "N/A" marker some registries emit instead
// of an empty string; NonEmpty treats it as empty.
var placeholderValue = field.EncodeString("N/A")

// Rule declares one predicate against layout field names. Rules compile
// into a DomainPlan that addresses openings by index.
type Rule struct {
	Name     string
	Kind     PredicateKind
	Field    string
	EndField string // TemporalWindow only: the window end date field
	Value    string // StatusEquality / StatusExclusion canonical value
	Min      int64  // CountThreshold minimum
	Pattern  PatternSpec
	Core     bool
	// AllowEmpty relaxes StatusExclusion to permit an empty field (used
	// for optional flags whose mere presence is not required).
	AllowEmpty bool
}

// SlotOpeningPlan fixes one revealed slot at circuit-compile time: its tree
// index and how many value components its leaf hash absorbs.
type SlotOpeningPlan struct {
	Slot  int
	Width int
}

// Predicate is a compiled rule: opening indices instead of field names,
// targets as encoded field elements.
type Predicate struct {
	Name       string
	Kind       PredicateKind
	Opening    int
	EndOpening int
	Target     *big.Int
	Min        *big.Int
	Pattern    PatternSpec
	Core       bool
	AllowEmpty bool
}

// DomainPlan is the compile-time parameterization of the compliance
// circuit for one document domain. The verifying key is specific to a
// plan; all plan data is baked into constraints, never witnessed.
type DomainPlan struct {
	Domain           string
	Layout           *layout.DocumentLayout
	Openings         []SlotOpeningPlan
	EntityKeyOpening int
	Predicates       []Predicate
}

// CoreCount returns the number of core predicates.
func (p *DomainPlan) CoreCount() int {
	n := 0
	for _, pr := range p.Predicates {
		if pr.Core {
			n++
		}
	}
	return n
}

// EnhancedCount returns the number of enhanced predicates.
func (p *DomainPlan) EnhancedCount() int {
	return len(p.Predicates) - p.CoreCount()
}

// compilePlan resolves rules against a layout: collects the referenced
// slots (plus the entity key slot) into the opening list and rewrites each
// rule into opening-index form.
func compilePlan(domain string, l *layout.DocumentLayout, rules []Rule) (*DomainPlan, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	openingBySlot := make(map[int]int)
	var openings []SlotOpeningPlan

	addField := func(name string) (int, error) {
		spec, ok := l.Field(name)
		if !ok {
			return 0, fmt.Errorf("plan %s: rule references unknown field %q", domain, name)
		}
		if idx, seen := openingBySlot[spec.Slot]; seen {
			return idx, nil
		}
		idx := len(openings)
		openingBySlot[spec.Slot] = idx
		openings = append(openings, SlotOpeningPlan{Slot: spec.Slot, Width: spec.Width()})
		return idx, nil
	}

	entityIdx, err := addField(l.EntityKeyField)
	if err != nil {
		return nil, err
	}

	preds := make([]Predicate, 0, len(rules))
	for _, r := range rules {
		idx, err := addField(r.Field)
		if err != nil {
			return nil, err
		}
		p := Predicate{
			Name:       r.Name,
			Kind:       r.Kind,
			Opening:    idx,
			Target:     field.EncodeString(r.Value),
			Min:        big.NewInt(r.Min),
			Pattern:    r.Pattern,
			Core:       r.Core,
			AllowEmpty: r.AllowEmpty,
		}
		if r.Kind == TemporalWindow {
			if r.EndField == "" {
				return nil, fmt.Errorf("plan %s: temporal rule %s lacks an end field", domain, r.Name)
			}
			endIdx, err := addField(r.EndField)
			if err != nil {
				return nil, err
			}
			p.EndOpening = endIdx
		}
		preds = append(preds, p)
	}

	return &DomainPlan{
		Domain:           domain,
		Layout:           l,
		Openings:         openings,
		EntityKeyOpening: entityIdx,
		Predicates:       preds,
	}, nil
}

// domainRules holds the shipped predicate tables per domain. Core rules
// gate compliance; enhanced rules only feed the enhanced pass count.
var domainRules = map[string][]Rule{
	layout.DomainCorporateRegistration: {
		{Name: "status-active", Kind: StatusEquality, Field: "registrationStatus", Value: "ACTIVE", Core: true},
		{Name: "name-present", Kind: NonEmpty, Field: "companyName", Core: true},
		{Name: "jurisdiction-code", Kind: PatternMatch, Field: "jurisdiction", Pattern: TwoLetterUpper, Core: true},
		{Name: "not-dissolved", Kind: StatusEquality, Field: "dissolutionDate", Value: "", Core: true},
		{Name: "has-officers", Kind: CountThreshold, Field: "officerCount", Min: 1},
		{Name: "has-sic-codes", Kind: CountThreshold, Field: "sicCodes", Min: 1},
	},
	layout.DomainTradeLicense: {
		{Name: "license-issued", Kind: StatusEquality, Field: "licenseStatus", Value: "ISSUED", Core: true},
		{Name: "license-current", Kind: TemporalWindow, Field: "issueDate", EndField: "expiryDate", Core: true},
		{Name: "holder-present", Kind: NonEmpty, Field: "holderName", Core: true},
		{Name: "issue-country-code", Kind: PatternMatch, Field: "countryOfIssue", Pattern: TwoLetterUpper, Core: true},
		{Name: "export-license", Kind: StatusEquality, Field: "licenseType", Value: "EXPORT"},
		{Name: "goods-listed", Kind: CountThreshold, Field: "permittedGoods", Min: 1},
	},
	layout.DomainLegalEntity: {
		{Name: "entity-active", Kind: StatusEquality, Field: "entityStatus", Value: "ACTIVE", Core: true},
		{Name: "registration-issued", Kind: StatusEquality, Field: "registrationStatus", Value: "ISSUED", Core: true},
		{Name: "conformity", Kind: StatusExclusion, Field: "conformityFlag", Value: "NON_CONFORMING", Core: true, AllowEmpty: true},
		{Name: "legal-name-present", Kind: NonEmpty, Field: "legalName", Core: true},
		{Name: "jurisdiction-code", Kind: PatternMatch, Field: "legalJurisdiction", Pattern: TwoLetterUpper, Core: true},
		{Name: "registration-current", Kind: TemporalWindow, Field: "initialRegistrationDate", EndField: "nextRenewalDate", Core: true},
	},
	layout.DomainShippingDocument: {
		{Name: "document-issued", Kind: StatusEquality, Field: "documentStatus", Value: "ISSUED", Core: true},
		{Name: "origin-code", Kind: PatternMatch, Field: "originCountry", Pattern: TwoLetterUpper, Core: true},
		{Name: "destination-code", Kind: PatternMatch, Field: "destinationCountry", Pattern: TwoLetterUpper, Core: true},
		{Name: "cargo-declared", Kind: CountThreshold, Field: "cargoItems", Min: 1, Core: true},
		{Name: "shipper-present", Kind: NonEmpty, Field: "shipperName", Core: true},
		{Name: "consignee-present", Kind: NonEmpty, Field: "consigneeName", Core: true},
		{Name: "not-hazardous", Kind: StatusEquality, Field: "hazardousFlag", Value: ""},
		{Name: "vessel-named", Kind: NonEmpty, Field: "vesselName"},
	},
	layout.DomainLiquidityRisk: {
		{Name: "report-submitted", Kind: StatusEquality, Field: "reportStatus", Value: "SUBMITTED", Core: true},
		{Name: "lcr-present", Kind: NonEmpty, Field: "liquidityCoverageRatio", Core: true},
		{Name: "currency-code", Kind: PatternMatch, Field: "currency", Pattern: ThreeLetterUpper, Core: true},
		{Name: "entries-present", Kind: CountThreshold, Field: "datasetEntries", Min: 1, Core: true},
		{Name: "nsfr-present", Kind: NonEmpty, Field: "netStableFundingRatio"},
		{Name: "period-current", Kind: TemporalWindow, Field: "reportingPeriodStart", EndField: "reportingPeriodEnd"},
	},
}

// PlanFor compiles the shipped rules for a builtin domain.
func PlanFor(domain string) (*DomainPlan, error) {
	l, ok := layout.Builtin(domain)
	if !ok {
		return nil, fmt.Errorf("no builtin layout for domain %q", domain)
	}
	rules, ok := domainRules[domain]
	if !ok {
		return nil, fmt.Errorf("no predicate rules for domain %q", domain)
	}
	return compilePlan(domain, l, rules)
}

// evalOutcome is the native predicate evaluation result, mirrored exactly
// by the in-circuit evaluation.
type evalOutcome struct {
	Compliant    bool
	CorePass     int
	EnhancedPass int
}

// evalNative evaluates the plan's predicates over revealed slot values
// (first component per opening) at the given unix time. It is the native
// mirror of Circuit.Define's predicate section; any divergence between the
// two makes honest proofs unprovable, which the circuit tests guard.
func evalNative(plan *DomainPlan, primary []*big.Int, now int64) evalOutcome {
	var out evalOutcome
	out.Compliant = true
	nowBig := big.NewInt(now)

	for _, p := range plan.Predicates {
		v := primary[p.Opening]
		var ok bool
		switch p.Kind {
		case StatusEquality:
			ok = v.Cmp(p.Target) == 0
		case StatusExclusion:
			ok = v.Cmp(p.Target) != 0
			if !p.AllowEmpty {
				ok = ok && v.Sign() != 0
			}
		case TemporalWindow:
			start, end := v, primary[p.EndOpening]
			ok = start.Sign() != 0 && end.Sign() != 0 &&
				start.Cmp(nowBig) <= 0 && nowBig.Cmp(end) <= 0
		case NonEmpty:
			ok = v.Sign() != 0 && v.Cmp(placeholderValue) != 0
		case CountThreshold:
			ok = v.Cmp(p.Min) >= 0
		case PatternMatch:
			ok = matchPattern(v, p.Pattern)
		}

		if p.Core {
			if ok {
				out.CorePass++
			} else {
				out.Compliant = false
			}
		} else if ok {
			out.EnhancedPass++
		}
	}
	return out
}

// matchPattern checks the fixed structural pattern natively: the value must
// occupy exactly Length bytes, each within [MinByte, MaxByte]. MinByte > 0
// rules out leading-zero ambiguity.
func matchPattern(v *big.Int, p PatternSpec) bool {
	b := v.Bytes()
	if len(b) != p.Length {
		return false
	}
	for _, c := range b {
		if c < p.MinByte || c > p.MaxByte {
			return false
		}
	}
	return true
}
