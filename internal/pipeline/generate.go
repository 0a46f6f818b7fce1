package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
)

const (
	cardVersion    = "1.0.0"
	cardSource     = "equipment-pipeline"
	tagNumberBase  = 101
	defaultPrefix  = "EQ"
	designMarginPa = 1.25
)

// buildCard constructs an equipment card from a research report. Description
// is left for the enrichment agent; the validation score is filled in by the
// compliance check.
func buildCard(report *api.ResearchReport, sector, subSector, facility, equipmentClass string, seq int) api.EquipmentCard {
	prefix := report.IsaTagPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	return api.EquipmentCard{
		ID:                uuid.New().String(),
		Tag:               fmt.Sprintf("%s-%03d", prefix, tagNumberBase+seq),
		ComponentClass:    equipmentClass,
		ComponentClassURI: report.PcaURI,
		Category:          categoryFor(equipmentClass),
		Specifications:    copyQuantities(report.Specifications),
		OperatingConds:    deriveOperatingConditions(report),
		Materials:         copyStrings(report.Materials),
		Standards:         append([]string(nil), report.Standards...),
		Manufacturers:     append([]string(nil), report.Manufacturers...),
		Nozzles:           append([]api.Nozzle(nil), report.NozzleConfigs...),
		Sector:            sector,
		SubSector:         subSector,
		Facility:          facility,
		Metadata: api.CardMetadata{
			Version:   cardVersion,
			Source:    cardSource,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// deriveOperatingConditions synthesizes a consistent process envelope from the
// report's specifications. Design values always dominate operating values.
func deriveOperatingConditions(report *api.ResearchReport) api.OperatingConditions {
	designP := 16.0
	for _, key := range []string{"designPressureMax", "dischargePressure", "designPressure"} {
		if q, ok := report.Specifications[key]; ok && q.Value > 0 {
			designP = q.Value
			break
		}
	}

	designT := 200.0
	if q, ok := report.Specifications["designTemperatureMax"]; ok && q.Value > 0 {
		designT = q.Value
	}

	oc := api.OperatingConditions{
		DesignPressure:       &api.Quantity{Value: designP, Unit: "barg"},
		OperatingPressure:    &api.Quantity{Value: designP / designMarginPa, Unit: "barg"},
		DesignTemperature:    &api.Quantity{Value: designT, Unit: "C"},
		OperatingTemperature: &api.Quantity{Value: designT - 50, Unit: "C"},
	}
	if q, ok := report.Specifications["ratedFlow"]; ok {
		oc.FlowRate = &api.Quantity{Value: q.Value, Unit: q.Unit}
	}
	return oc
}

func categoryFor(equipmentClass string) string {
	class := strings.ToLower(equipmentClass)
	for _, fragment := range []string{"pump", "compressor", "blower", "agitator", "mixer", "turbine"} {
		if strings.Contains(class, fragment) {
			return "rotating"
		}
	}
	if strings.Contains(class, "valve") {
		return "instrumentation"
	}
	return "static"
}

// classFromName normalizes a free-form equipment name into a class name, e.g.
// "centrifugal pump" -> "CentrifugalPump".
func classFromName(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strings.ToUpper(f[:1]))
		b.WriteString(f[1:])
	}
	return b.String()
}

func copyQuantities(in map[string]api.Quantity) map[string]api.Quantity {
	if in == nil {
		return nil
	}
	out := make(map[string]api.Quantity, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
