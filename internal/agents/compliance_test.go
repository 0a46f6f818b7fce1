package agents_test

import (
	"testing"
	"time"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/agents"
	"github.com/stretchr/testify/require"
)

func quantity(value float64, unit string) *api.Quantity {
	return &api.Quantity{Value: value, Unit: unit}
}

func compliantCard() *api.EquipmentCard {
	return &api.EquipmentCard{
		Tag:               "P-101",
		ComponentClass:    "CentrifugalPump",
		ComponentClassURI: "http://data.posccaesar.org/rdl/RDS416834",
		Facility:          "CHEM-BC-PETRO",
		Specifications: map[string]api.Quantity{
			"ratedFlow":         {Value: 250, Unit: "m3/h"},
			"ratedHead":         {Value: 120, Unit: "m"},
			"designPressureMax": {Value: 25, Unit: "barg"},
		},
		OperatingConds: api.OperatingConditions{
			DesignPressure:       quantity(25, "barg"),
			OperatingPressure:    quantity(16, "barg"),
			DesignTemperature:    quantity(200, "C"),
			OperatingTemperature: quantity(150, "C"),
		},
		Metadata: api.CardMetadata{Version: "1.0.0", Source: "equipment-pipeline", CreatedAt: time.Now().UTC()},
	}
}

func TestComplianceCleanCard(t *testing.T) {
	agent := agents.NewComplianceAgent(3)

	report, err := agent.Execute(compliantCard())
	require.NoError(t, err)
	require.Equal(t, 100.0, report.Score)
	require.True(t, report.Passed)
	require.Empty(t, report.Violations)
}

func TestComplianceViolations(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*api.EquipmentCard)
		ruleID   string
		severity agents.Severity
		score    float64
		passed   bool
	}{
		{
			name:     "malformed tag",
			mutate:   func(c *api.EquipmentCard) { c.Tag = "pump-1" },
			ruleID:   "EQP-001",
			severity: agents.SeverityMajor,
			score:    75,
			passed:   true,
		},
		{
			name:     "non vocabulary uri",
			mutate:   func(c *api.EquipmentCard) { c.ComponentClassURI = "https://example.com/pump" },
			ruleID:   "EQP-002",
			severity: agents.SeverityMajor,
			score:    80,
			passed:   true,
		},
		{
			name:     "too few specifications",
			mutate:   func(c *api.EquipmentCard) { c.Specifications = map[string]api.Quantity{"ratedFlow": {Value: 1}} },
			ruleID:   "EQP-003",
			severity: agents.SeverityMinor,
			score:    85,
			passed:   true,
		},
		{
			name:     "design pressure below operating",
			mutate:   func(c *api.EquipmentCard) { c.OperatingConds.DesignPressure = quantity(10, "barg") },
			ruleID:   "EQP-004",
			severity: agents.SeverityCritical,
			score:    70,
			passed:   false,
		},
		{
			name:     "design temperature below operating",
			mutate:   func(c *api.EquipmentCard) { c.OperatingConds.DesignTemperature = quantity(100, "C") },
			ruleID:   "EQP-005",
			severity: agents.SeverityCritical,
			score:    70,
			passed:   false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			agent := agents.NewComplianceAgent(3)
			card := compliantCard()
			test.mutate(card)

			report, err := agent.Execute(card)
			require.NoError(t, err)
			require.Equal(t, test.score, report.Score)
			require.Equal(t, test.passed, report.Passed)
			require.Len(t, report.Violations, 1)
			require.Equal(t, test.ruleID, report.Violations[0].RuleID)
			require.Equal(t, test.severity, report.Violations[0].Severity)
		})
	}
}

func TestComplianceScoreFloorsAtZero(t *testing.T) {
	agent := agents.NewComplianceAgent(3)
	card := &api.EquipmentCard{
		Tag:               "broken tag",
		ComponentClassURI: "not-a-uri",
		OperatingConds: api.OperatingConditions{
			DesignPressure:       quantity(1, "barg"),
			OperatingPressure:    quantity(10, "barg"),
			DesignTemperature:    quantity(10, "C"),
			OperatingTemperature: quantity(100, "C"),
		},
	}

	report, err := agent.Execute(card)
	require.NoError(t, err)
	require.Equal(t, 0.0, report.Score)
	require.False(t, report.Passed)
	require.Len(t, report.Violations, 5)
}

func TestComplianceIsDeterministic(t *testing.T) {
	agent := agents.NewComplianceAgent(3)
	card := compliantCard()
	card.Tag = "bad"

	first, err := agent.Execute(card)
	require.NoError(t, err)
	second, err := agent.Execute(card)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComplianceNilCard(t *testing.T) {
	agent := agents.NewComplianceAgent(3)
	_, err := agent.Execute(nil)
	require.Error(t, err)
}
