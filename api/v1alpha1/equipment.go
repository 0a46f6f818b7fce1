package v1alpha1

import (
	"time"
)

// Quantity is a dimensioned value inside a card's specifications.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// OperatingConditions holds the process envelope of a card. Design values must
// dominate operating values when both are present; the compliance rules treat
// a violation as critical.
type OperatingConditions struct {
	DesignPressure       *Quantity `json:"designPressure,omitempty"`
	OperatingPressure    *Quantity `json:"operatingPressure,omitempty"`
	DesignTemperature    *Quantity `json:"designTemperature,omitempty"`
	OperatingTemperature *Quantity `json:"operatingTemperature,omitempty"`
	FlowRate             *Quantity `json:"flowRate,omitempty"`
}

// Nozzle describes one connection point on a piece of equipment.
type Nozzle struct {
	ID      string `json:"id"`
	Service string `json:"service,omitempty"`
	Size    string `json:"size,omitempty"`
	Rating  string `json:"rating,omitempty"`
	Facing  string `json:"facing,omitempty"`
}

// CardMetadata tracks provenance of a card.
type CardMetadata struct {
	Version         string     `json:"version"`
	Source          string     `json:"source"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	ValidationScore float64    `json:"validationScore"`
}

// EquipmentCard is the record produced, validated and stored by the pipeline.
type EquipmentCard struct {
	ID                string              `json:"id"`
	Tag               string              `json:"tag"`
	ComponentClass    string              `json:"componentClass"`
	ComponentClassURI string              `json:"componentClassURI,omitempty"`
	Category          string              `json:"category,omitempty"`
	Description       string              `json:"description,omitempty"`
	Specifications    map[string]Quantity `json:"specifications,omitempty"`
	OperatingConds    OperatingConditions `json:"operatingConditions"`
	Materials         map[string]string   `json:"materials,omitempty"`
	Standards         []string            `json:"standards,omitempty"`
	Manufacturers     []string            `json:"manufacturers,omitempty"`
	Nozzles           []Nozzle            `json:"nozzles,omitempty"`
	Sector            string              `json:"sector,omitempty"`
	SubSector         string              `json:"subSector,omitempty"`
	Facility          string              `json:"facility,omitempty"`
	Metadata          CardMetadata        `json:"metadata"`
}

// ResearchReport is the consumed output of the research collaborator. It is
// untrusted input: the enrichment agent validates fields before use.
type ResearchReport struct {
	EquipmentClass string              `json:"equipmentClass"`
	Specifications map[string]Quantity `json:"specifications,omitempty"`
	Manufacturers  []string            `json:"manufacturers,omitempty"`
	Standards      []string            `json:"standards,omitempty"`
	PcaURI         string              `json:"pcaUri,omitempty"`
	IsaTagPrefix   string              `json:"isaTagPrefix,omitempty"`
	Citations      []string            `json:"citations,omitempty"`
	Materials      map[string]string   `json:"materials,omitempty"`
	NozzleConfigs  []Nozzle            `json:"nozzleConfigs,omitempty"`
}
