package agents

import (
	"fmt"
	"sort"
	"strings"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
)

const qualityAgentID = "quality-gate-agent"

// The ten scored dimensions. Each contributes 0-10; the total is the 0-100
// quality score.
const (
	dimTag            = "tag"
	dimClassURI       = "classUri"
	dimDescription    = "description"
	dimSpecifications = "specifications"
	dimOperatingConds = "operatingConditions"
	dimMaterials      = "materials"
	dimStandards      = "standards"
	dimManufacturers  = "manufacturers"
	dimNozzles        = "nozzles"
	dimMetadata       = "metadata"
)

// Per-dimension acceptable floors used for rejection reasons.
var dimensionFloors = map[string]float64{
	dimTag:            5,
	dimClassURI:       5,
	dimDescription:    5,
	dimSpecifications: 4,
	dimOperatingConds: 5,
	dimMaterials:      2,
	dimStandards:      2,
	dimManufacturers:  2,
	dimNozzles:        2,
	dimMetadata:       5,
}

type QualityInput struct {
	Card     *api.EquipmentCard
	MinScore float64
}

type QualityReport struct {
	Score            float64            `json:"score"`
	Approved         bool               `json:"approved"`
	Dimensions       map[string]float64 `json:"dimensions"`
	RejectionReasons []string           `json:"rejectionReasons,omitempty"`
}

// QualityGateAgent scores a card across ten independent dimensions. The score
// is normalized to 0-100, so a threshold above 100 can never be satisfied;
// that is the documented contract, not something the agent corrects.
type QualityGateAgent struct{}

func NewQualityGateAgent() *QualityGateAgent {
	return &QualityGateAgent{}
}

func (a *QualityGateAgent) ID() string {
	return qualityAgentID
}

func (a *QualityGateAgent) Execute(input QualityInput) (QualityReport, error) {
	if input.Card == nil {
		return QualityReport{}, NewErrMissingCard(qualityAgentID)
	}
	card := input.Card

	dims := map[string]float64{
		dimTag:            scoreTag(card.Tag),
		dimClassURI:       scoreClassURI(card.ComponentClassURI),
		dimDescription:    scoreDescription(card.Description),
		dimSpecifications: scoreCount(len(card.Specifications)),
		dimOperatingConds: scoreOperatingConds(card.OperatingConds),
		dimMaterials:      scoreCount(len(card.Materials)),
		dimStandards:      scoreCount(len(card.Standards)),
		dimManufacturers:  scoreCount(len(card.Manufacturers)),
		dimNozzles:        scoreNozzles(card.Nozzles),
		dimMetadata:       scoreMetadata(card.Metadata),
	}

	total := 0.0
	for _, v := range dims {
		total += v
	}

	report := QualityReport{
		Score:      total,
		Approved:   total >= input.MinScore,
		Dimensions: dims,
	}

	if !report.Approved {
		names := make([]string, 0, len(dims))
		for name := range dims {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if floor, ok := dimensionFloors[name]; ok && dims[name] < floor {
				report.RejectionReasons = append(report.RejectionReasons,
					fmt.Sprintf("%s scored %.1f, below the acceptable floor of %.1f", name, dims[name], floor))
			}
		}
		if len(report.RejectionReasons) == 0 {
			report.RejectionReasons = append(report.RejectionReasons,
				fmt.Sprintf("aggregate score %.1f is below the required %.1f", total, input.MinScore))
		}
	}

	return report, nil
}

func scoreTag(tag string) float64 {
	switch {
	case tagPattern.MatchString(tag):
		return 10
	case strings.TrimSpace(tag) != "":
		return 5
	default:
		return 0
	}
}

func scoreClassURI(uri string) float64 {
	switch {
	case classURIPattern.MatchString(uri):
		return 10
	case strings.TrimSpace(uri) != "":
		return 5
	default:
		return 0
	}
}

func scoreDescription(description string) float64 {
	trimmed := strings.TrimSpace(description)
	switch {
	case len(trimmed) >= 60:
		return 10
	case len(trimmed) >= 25:
		return 7
	case len(trimmed) > 0:
		return 3
	default:
		return 0
	}
}

// scoreCount rewards richness up to five entries.
func scoreCount(n int) float64 {
	if n > 5 {
		n = 5
	}
	return float64(n) * 2
}

func scoreOperatingConds(oc api.OperatingConditions) float64 {
	populated := 0
	for _, q := range []*api.Quantity{oc.DesignPressure, oc.OperatingPressure, oc.DesignTemperature, oc.OperatingTemperature} {
		if q != nil {
			populated++
		}
	}
	return float64(populated) * 2.5
}

func scoreNozzles(nozzles []api.Nozzle) float64 {
	complete := 0
	for _, n := range nozzles {
		if n.ID != "" && n.Size != "" && n.Service != "" {
			complete++
		}
	}
	if complete > 5 {
		complete = 5
	}
	return float64(complete) * 2
}

func scoreMetadata(m api.CardMetadata) float64 {
	score := 0.0
	if m.Version != "" {
		score += 2.5
	}
	if m.Source != "" {
		score += 2.5
	}
	if !m.CreatedAt.IsZero() {
		score += 2.5
	}
	if m.ValidationScore > 0 {
		score += 2.5
	}
	return score
}
