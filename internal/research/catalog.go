package research

import (
	"context"
	"strings"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"go.uber.org/zap"
)

// CatalogResearcher is the built-in research collaborator: a deterministic
// catalog of common equipment classes with reference-data URIs, ISA tag
// prefixes and typical specifications. It keeps the pipeline runnable without
// an external research service.
type CatalogResearcher struct {
	log *zap.SugaredLogger
}

var _ Researcher = (*CatalogResearcher)(nil)

func NewCatalogResearcher() *CatalogResearcher {
	return &CatalogResearcher{log: zap.S().Named("research_catalog")}
}

func (r *CatalogResearcher) Research(ctx context.Context, equipmentClass string) (*api.ResearchReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if report, ok := catalog[equipmentClass]; ok {
		out := report
		out.EquipmentClass = equipmentClass
		return &out, nil
	}

	// Unknown classes get a best-effort generic report. Scoring downstream
	// decides whether the result is good enough to keep.
	r.log.Debugw("equipment class not in catalog, synthesizing generic report", "class", equipmentClass)
	generic := genericReport(equipmentClass)
	return &generic, nil
}

var commonManufacturers = []string{"Sulzer", "Flowserve", "KSB", "Alfa Laval", "Emerson"}

var catalog = map[string]api.ResearchReport{
	"CentrifugalPump": {
		PcaURI:       "http://data.posccaesar.org/rdl/RDS416834",
		IsaTagPrefix: "P",
		Specifications: map[string]api.Quantity{
			"ratedFlow":          {Value: 250, Unit: "m3/h"},
			"ratedHead":          {Value: 85, Unit: "m"},
			"ratedPower":         {Value: 90, Unit: "kW"},
			"impellerDiameter":   {Value: 320, Unit: "mm"},
			"npshRequired":       {Value: 3.5, Unit: "m"},
			"rotationalSpeed":    {Value: 2950, Unit: "rpm"},
			"efficiencyAtRating": {Value: 78, Unit: "%"},
		},
		Manufacturers: []string{"Sulzer", "Flowserve", "KSB", "Grundfos"},
		Standards:     []string{"API 610", "ISO 13709", "ASME B73.1"},
		Materials:     map[string]string{"casing": "A216 WCB", "impeller": "A743 CF8M", "shaft": "AISI 4140"},
		NozzleConfigs: []api.Nozzle{
			{ID: "N1", Service: "suction", Size: "DN200", Rating: "PN16", Facing: "RF"},
			{ID: "N2", Service: "discharge", Size: "DN150", Rating: "PN40", Facing: "RF"},
		},
		Citations: []string{"API 610 12th edition", "POSC Caesar RDL"},
	},
	"ReciprocatingCompressor": {
		PcaURI:       "http://data.posccaesar.org/rdl/RDS417044",
		IsaTagPrefix: "K",
		Specifications: map[string]api.Quantity{
			"ratedCapacity":     {Value: 1200, Unit: "Nm3/h"},
			"dischargePressure": {Value: 45, Unit: "barg"},
			"ratedPower":        {Value: 350, Unit: "kW"},
			"stages":            {Value: 2, Unit: ""},
			"rotationalSpeed":   {Value: 740, Unit: "rpm"},
		},
		Manufacturers: []string{"Ariel", "Burckhardt Compression", "Dresser-Rand"},
		Standards:     []string{"API 618", "ISO 13707"},
		Materials:     map[string]string{"cylinder": "A278 Class 40", "pistonRod": "AISI 4140 nitrided", "frame": "cast iron"},
		NozzleConfigs: []api.Nozzle{
			{ID: "N1", Service: "suction", Size: "DN250", Rating: "PN40", Facing: "RF"},
			{ID: "N2", Service: "discharge", Size: "DN200", Rating: "PN63", Facing: "RTJ"},
		},
		Citations: []string{"API 618 5th edition"},
	},
	"ShellAndTubeHeatExchanger": {
		PcaURI:       "http://data.posccaesar.org/rdl/RDS414539",
		IsaTagPrefix: "E",
		Specifications: map[string]api.Quantity{
			"heatDuty":          {Value: 2.8, Unit: "MW"},
			"surfaceArea":       {Value: 420, Unit: "m2"},
			"shellDiameter":     {Value: 1200, Unit: "mm"},
			"tubeLength":        {Value: 6000, Unit: "mm"},
			"tubeCount":         {Value: 860, Unit: ""},
			"designPressureMax": {Value: 25, Unit: "barg"},
		},
		Manufacturers: []string{"Alfa Laval", "Kelvion", "SPX Flow"},
		Standards:     []string{"TEMA R", "ASME VIII Div 1", "API 660"},
		Materials:     map[string]string{"shell": "SA-516 Gr 70", "tubes": "SA-179", "tubesheet": "SA-350 LF2"},
		NozzleConfigs: []api.Nozzle{
			{ID: "N1", Service: "shell inlet", Size: "DN300", Rating: "PN25", Facing: "RF"},
			{ID: "N2", Service: "shell outlet", Size: "DN300", Rating: "PN25", Facing: "RF"},
			{ID: "N3", Service: "tube inlet", Size: "DN250", Rating: "PN25", Facing: "RF"},
			{ID: "N4", Service: "tube outlet", Size: "DN250", Rating: "PN25", Facing: "RF"},
		},
		Citations: []string{"TEMA 10th edition", "API 660 9th edition"},
	},
	"PressureVessel": {
		PcaURI:       "http://data.posccaesar.org/rdl/RDS414674",
		IsaTagPrefix: "V",
		Specifications: map[string]api.Quantity{
			"designPressureMax": {Value: 40, Unit: "barg"},
			"volume":            {Value: 25, Unit: "m3"},
			"insideDiameter":    {Value: 2400, Unit: "mm"},
			"tanLength":         {Value: 5500, Unit: "mm"},
			"corrosionAllow":    {Value: 3, Unit: "mm"},
		},
		Manufacturers: []string{"Larsen & Toubro", "Babcock & Wilcox", "IHI"},
		Standards:     []string{"ASME VIII Div 1", "PD 5500", "EN 13445"},
		Materials:     map[string]string{"shell": "SA-516 Gr 70", "heads": "SA-516 Gr 70", "internals": "SA-240 304L"},
		NozzleConfigs: []api.Nozzle{
			{ID: "N1", Service: "inlet", Size: "DN150", Rating: "PN40", Facing: "RF"},
			{ID: "N2", Service: "outlet", Size: "DN150", Rating: "PN40", Facing: "RF"},
			{ID: "N3", Service: "relief", Size: "DN80", Rating: "PN40", Facing: "RF"},
		},
		Citations: []string{"ASME BPVC Section VIII"},
	},
	"StorageTank": {
		PcaURI:       "http://data.posccaesar.org/rdl/RDS416279",
		IsaTagPrefix: "TK",
		Specifications: map[string]api.Quantity{
			"nominalCapacity": {Value: 5000, Unit: "m3"},
			"diameter":        {Value: 22, Unit: "m"},
			"shellHeight":     {Value: 14.6, Unit: "m"},
			"designLiquidSG":  {Value: 0.85, Unit: ""},
		},
		Manufacturers: []string{"CB&I", "McDermott", "Toyo Kanetsu"},
		Standards:     []string{"API 650", "EEMUA 159"},
		Materials:     map[string]string{"shell": "A36", "bottom": "A36", "roof": "A36"},
		NozzleConfigs: []api.Nozzle{
			{ID: "N1", Service: "inlet", Size: "DN200", Rating: "PN16", Facing: "RF"},
			{ID: "N2", Service: "outlet", Size: "DN200", Rating: "PN16", Facing: "RF"},
			{ID: "M1", Service: "manway", Size: "DN600", Rating: "PN16", Facing: "FF"},
		},
		Citations: []string{"API 650 13th edition"},
	},
	"ControlValve": {
		PcaURI:       "http://data.posccaesar.org/rdl/RDS427229",
		IsaTagPrefix: "XV",
		Specifications: map[string]api.Quantity{
			"ratedCv":        {Value: 110, Unit: ""},
			"bodySize":       {Value: 100, Unit: "mm"},
			"ratedTravel":    {Value: 40, Unit: "mm"},
			"shutoffClass":   {Value: 5, Unit: "ANSI class"},
			"actuatorSupply": {Value: 4.5, Unit: "barg"},
		},
		Manufacturers: []string{"Emerson", "Flowserve", "Samson", "IMI CCI"},
		Standards:     []string{"IEC 60534", "ISA 75.01", "API 6D"},
		Materials:     map[string]string{"body": "A216 WCC", "trim": "316 SST", "seat": "Stellite"},
		NozzleConfigs: []api.Nozzle{
			{ID: "N1", Service: "inlet", Size: "DN100", Rating: "ANSI 300", Facing: "RF"},
			{ID: "N2", Service: "outlet", Size: "DN100", Rating: "ANSI 300", Facing: "RF"},
		},
		Citations: []string{"IEC 60534-2-1"},
	},
}

func genericReport(equipmentClass string) api.ResearchReport {
	prefix := "EQ"
	class := strings.ToLower(equipmentClass)
	for fragment, p := range map[string]string{"pump": "P", "compressor": "K", "exchanger": "E", "vessel": "V", "tank": "TK", "valve": "XV"} {
		if strings.Contains(class, fragment) {
			prefix = p
			break
		}
	}
	return api.ResearchReport{
		EquipmentClass: equipmentClass,
		IsaTagPrefix:   prefix,
		Specifications: map[string]api.Quantity{
			"ratedCapacity": {Value: 100, Unit: ""},
			"designLife":    {Value: 25, Unit: "years"},
			"weight":        {Value: 1500, Unit: "kg"},
		},
		Manufacturers: commonManufacturers[:3],
		Standards:     []string{"ISO 9001"},
		Materials:     map[string]string{"body": "carbon steel"},
	}
}
