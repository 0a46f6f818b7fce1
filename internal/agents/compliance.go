package agents

import (
	"fmt"
	"regexp"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
)

const complianceAgentID = "compliance-agent"

var (
	// ISA-style tag: prefix of capitals, dash, three digits.
	tagPattern = regexp.MustCompile(`^[A-Z]{1,5}-[0-9]{3}$`)
	// Reference-data vocabulary URI (POSC Caesar RDL).
	classURIPattern = regexp.MustCompile(`^https?://data\.posccaesar\.org/rdl/RDS[0-9]+$`)
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

type Violation struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type ComplianceReport struct {
	Score      float64     `json:"score"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

const compliancePassScore = 60.0

// ComplianceAgent applies a fixed rule set against a card. It is a pure
// function of its input: the same card always produces the same report.
type ComplianceAgent struct {
	minSpecFields int
}

func NewComplianceAgent(minSpecFields int) *ComplianceAgent {
	if minSpecFields <= 0 {
		minSpecFields = 3
	}
	return &ComplianceAgent{minSpecFields: minSpecFields}
}

func (a *ComplianceAgent) ID() string {
	return complianceAgentID
}

func (a *ComplianceAgent) Execute(card *api.EquipmentCard) (ComplianceReport, error) {
	if card == nil {
		return ComplianceReport{}, NewErrMissingCard(complianceAgentID)
	}

	var violations []Violation
	penalty := 0.0

	if !tagPattern.MatchString(card.Tag) {
		violations = append(violations, Violation{
			RuleID:   "EQP-001",
			Severity: SeverityMajor,
			Message:  fmt.Sprintf("tag %q does not match the ISA tag pattern <PREFIX>-<NNN>", card.Tag),
		})
		penalty += 25
	}

	if !classURIPattern.MatchString(card.ComponentClassURI) {
		violations = append(violations, Violation{
			RuleID:   "EQP-002",
			Severity: SeverityMajor,
			Message:  fmt.Sprintf("componentClassURI %q is not a reference-data vocabulary URI", card.ComponentClassURI),
		})
		penalty += 20
	}

	if len(card.Specifications) < a.minSpecFields {
		violations = append(violations, Violation{
			RuleID:   "EQP-003",
			Severity: SeverityMinor,
			Message:  fmt.Sprintf("card has %d specification fields, at least %d required", len(card.Specifications), a.minSpecFields),
		})
		penalty += 15
	}

	// Design values must dominate operating values. A violation here is a data
	// integrity problem, not something to silently correct.
	oc := card.OperatingConds
	if oc.DesignPressure != nil && oc.OperatingPressure != nil && oc.DesignPressure.Value < oc.OperatingPressure.Value {
		violations = append(violations, Violation{
			RuleID:   "EQP-004",
			Severity: SeverityCritical,
			Message: fmt.Sprintf("design pressure %.4g is below operating pressure %.4g",
				oc.DesignPressure.Value, oc.OperatingPressure.Value),
		})
		penalty += 30
	}
	if oc.DesignTemperature != nil && oc.OperatingTemperature != nil && oc.DesignTemperature.Value < oc.OperatingTemperature.Value {
		violations = append(violations, Violation{
			RuleID:   "EQP-005",
			Severity: SeverityCritical,
			Message: fmt.Sprintf("design temperature %.4g is below operating temperature %.4g",
				oc.DesignTemperature.Value, oc.OperatingTemperature.Value),
		})
		penalty += 30
	}

	score := 100.0 - penalty
	if score < 0 {
		score = 0
	}

	passed := score >= compliancePassScore
	for _, v := range violations {
		if v.Severity == SeverityCritical {
			passed = false
			break
		}
	}

	return ComplianceReport{
		Score:      score,
		Passed:     passed,
		Violations: violations,
	}, nil
}
